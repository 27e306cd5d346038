// Package commands implements the rnnt CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	rnnt "github.com/ieee0824/rnnt-go"
	"github.com/ieee0824/rnnt-go/audio"
	"github.com/ieee0824/rnnt-go/config"
	"github.com/ieee0824/rnnt-go/frontend"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

var (
	configPath string
	batchSize  int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "rnnt",
	Short:         "Transducer training-step runner",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "training config YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().IntVarP(&batchSize, "batch-size", "b", 2, "synthetic batch size")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		cfg.Model.TokenList = defaultTokenList()
		return cfg, nil
	}
	return config.Load(configPath)
}

// defaultTokenList is a small demo vocabulary for synthetic runs.
func defaultTokenList() []string {
	tokens := []string{"<blank>"}
	for c := 'a'; c <= 'z'; c++ {
		tokens = append(tokens, string(c))
	}
	tokens = append(tokens, "<space>", "<sos/eos>")
	return tokens
}

func buildModel(cfg *config.Config) (*rnnt.Model, error) {
	opts := []rnnt.Option{
		rnnt.WithFrontend(frontend.NewLogMel(cfg.Frontend.SampleRate, cfg.Frontend.FrameLen, cfg.Frontend.FrameShift, cfg.Frontend.NumMels)),
	}
	if cfg.Frontend.CMVN {
		opts = append(opts, rnnt.WithNormalizer(&frontend.UtteranceCMVN{NormalizeVariance: true}))
	}
	if cfg.Frontend.SpecAugment {
		opts = append(opts, rnnt.WithAugmenter(frontend.NewSpecAugment(
			cfg.Frontend.TimeMasks, cfg.Frontend.MaxTimeWidth,
			cfg.Frontend.FreqMasks, cfg.Frontend.MaxFreqWidth, cfg.Seed)))
	}
	if cfg.Model.FeatDim != cfg.Frontend.NumMels {
		return nil, fmt.Errorf("feat_dim %d does not match num_mels %d", cfg.Model.FeatDim, cfg.Frontend.NumMels)
	}
	return rnnt.New(cfg, opts...)
}

// makeBatch builds a synthetic raw-speech batch with random labels drawn from
// the non-special vocabulary.
func makeBatch(cfg *config.Config, rng *rand.Rand, b int) (*tensor.Tensor, []int, [][]int) {
	maxSamples := cfg.Frontend.FrameLen + 24*cfg.Frontend.FrameShift
	speech := tensor.New(b, maxSamples)
	lens := make([]int, b)
	text := make([][]int, b)
	maxLabels := 6
	for i := 0; i < b; i++ {
		lens[i] = cfg.Frontend.FrameLen + (8+rng.Intn(17))*cfg.Frontend.FrameShift
		if lens[i] > maxSamples {
			lens[i] = maxSamples
		}
		row := speech.Row(i)
		for s := 0; s < lens[i]; s++ {
			row[s] = rng.NormFloat64() * 0.1
		}
		n := 1 + rng.Intn(maxLabels)
		ys := make([]int, maxLabels)
		for u := range ys {
			if u < n {
				// skip blank (0) and the trailing specials
				ys[u] = 1 + rng.Intn(len(cfg.Model.TokenList)-3)
			} else {
				ys[u] = -1
			}
		}
		text[i] = ys
	}
	return speech, lens, text
}

// randomLabels draws padded label rows from the non-special vocabulary for
// batches whose transcripts are not given.
func randomLabels(cfg *config.Config, rng *rand.Rand, b int) [][]int {
	maxLabels := 6
	text := make([][]int, b)
	for i := 0; i < b; i++ {
		n := 1 + rng.Intn(maxLabels)
		ys := make([]int, maxLabels)
		for u := range ys {
			if u < n {
				ys[u] = 1 + rng.Intn(len(cfg.Model.TokenList)-3)
			} else {
				ys[u] = -1
			}
		}
		text[i] = ys
	}
	return text
}

// speedPerturbBatch applies three-way speed perturbation per example and
// repacks the padded tensor.
func speedPerturbBatch(speech *tensor.Tensor, lens []int, rng *rand.Rand) (*tensor.Tensor, []int) {
	B := speech.Dim(0)
	waves := make([][]float64, B)
	outLens := make([]int, B)
	maxLen := 0
	for b := 0; b < B; b++ {
		waves[b] = audio.RandomSpeed(speech.Row(b)[:lens[b]], rng)
		outLens[b] = len(waves[b])
		if outLens[b] > maxLen {
			maxLen = outLens[b]
		}
	}
	out := tensor.New(B, maxLen)
	for b, w := range waves {
		copy(out.Row(b), w)
	}
	return out, outLens
}
