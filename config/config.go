// Package config loads and validates training configuration from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the full training-step configuration.
type Config struct {
	Model    Model    `yaml:"model"`
	Loss     Loss     `yaml:"loss"`
	Frontend Frontend `yaml:"frontend"`
	Seed     int64    `yaml:"seed"`
}

// Model describes the network dimensions and vocabulary.
type Model struct {
	TokenList []string `yaml:"token_list"`
	FeatDim   int      `yaml:"feat_dim"`
	EncHidden int      `yaml:"enc_hidden"`
	EncOut    int      `yaml:"enc_out"`
	Context   int      `yaml:"context"`
	Subsample int      `yaml:"subsample"`
	ChunkSize int      `yaml:"chunk_size"`
	EmbedDim  int      `yaml:"embed_dim"`
	DecHidden int      `yaml:"dec_hidden"`
	JointDim  int      `yaml:"joint_dim"`

	LangToken string `yaml:"lang_token"`
	SymSOS    string `yaml:"sym_sos"`
	SymEOS    string `yaml:"sym_eos"`

	ReportCER bool `yaml:"report_cer"`
	ReportWER bool `yaml:"report_wer"`
}

// Loss holds the multi-objective weights and options.
type Loss struct {
	TransducerWeight    float64 `yaml:"transducer_weight"`
	CTCWeight           float64 `yaml:"ctc_weight"`
	LMWeight            float64 `yaml:"lm_weight"`
	AttWeight           float64 `yaml:"att_weight"`
	FastEmitLambda      float64 `yaml:"fastemit_lambda"`
	LabelSmoothing      float64 `yaml:"label_smoothing"`
	ChunkRegularization bool    `yaml:"chunk_regularization"`
	DropoutCTC          float64 `yaml:"dropout_ctc"`
}

// Frontend configures feature extraction from raw speech.
type Frontend struct {
	SampleRate int  `yaml:"sample_rate"`
	FrameLen   int  `yaml:"frame_len"`
	FrameShift int  `yaml:"frame_shift"`
	NumMels    int  `yaml:"num_mels"`
	CMVN       bool `yaml:"cmvn"`

	SpecAugment  bool `yaml:"spec_augment"`
	TimeMasks    int  `yaml:"time_masks"`
	MaxTimeWidth int  `yaml:"max_time_width"`
	FreqMasks    int  `yaml:"freq_masks"`
	MaxFreqWidth int  `yaml:"max_freq_width"`
}

// Default returns a configuration with sensible 16 kHz defaults and no
// auxiliary losses.
func Default() *Config {
	return &Config{
		Model: Model{
			FeatDim:   80,
			EncHidden: 256,
			EncOut:    256,
			Context:   2,
			Subsample: 4,
			ChunkSize: 16,
			EmbedDim:  128,
			DecHidden: 256,
			JointDim:  256,
			SymSOS:    "<s>",
			SymEOS:    "</s>",
			ReportCER: true,
			ReportWER: true,
		},
		Loss: Loss{
			TransducerWeight: 1.0,
			LabelSmoothing:   0.1,
		},
		Frontend: Frontend{
			SampleRate: 16000,
			FrameLen:   400,
			FrameShift: 160,
			NumMels:    80,
		},
		Seed: 1,
	}
}

// Load reads a YAML config file, overlaying it on the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if len(c.Model.TokenList) > 0 && c.Model.TokenList[0] != "<blank>" {
		return fmt.Errorf("config: token_list[0] must be <blank>, got %q", c.Model.TokenList[0])
	}
	if c.Model.FeatDim <= 0 {
		return fmt.Errorf("config: feat_dim must be positive, got %d", c.Model.FeatDim)
	}
	if c.Model.Subsample <= 0 {
		return fmt.Errorf("config: subsample must be positive, got %d", c.Model.Subsample)
	}
	if c.Loss.TransducerWeight <= 0 {
		return fmt.Errorf("config: transducer_weight must be positive, got %g", c.Loss.TransducerWeight)
	}
	for name, w := range map[string]float64{
		"ctc_weight": c.Loss.CTCWeight,
		"lm_weight":  c.Loss.LMWeight,
		"att_weight": c.Loss.AttWeight,
	} {
		if w < 0 {
			return fmt.Errorf("config: %s must be non-negative, got %g", name, w)
		}
	}
	if c.Loss.FastEmitLambda < 0 {
		return fmt.Errorf("config: fastemit_lambda must be non-negative, got %g", c.Loss.FastEmitLambda)
	}
	if c.Loss.LabelSmoothing < 0 || c.Loss.LabelSmoothing >= 1 {
		return fmt.Errorf("config: label_smoothing must be in [0,1), got %g", c.Loss.LabelSmoothing)
	}
	if c.Loss.ChunkRegularization && c.Model.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_regularization requires a positive chunk_size")
	}
	if c.Frontend.FrameShift <= 0 || c.Frontend.FrameLen < c.Frontend.FrameShift {
		return fmt.Errorf("config: frame_len %d and frame_shift %d are inconsistent", c.Frontend.FrameLen, c.Frontend.FrameShift)
	}
	return nil
}
