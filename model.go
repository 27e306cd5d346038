// Package rnnt implements the training-time forward pass of an RNN-Transducer
// speech model: feature pipeline, encoder/decoder/joint networks, the
// transducer loss with optional CTC, LM, and attention auxiliary objectives,
// and validation error reporting.
package rnnt

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/ieee0824/rnnt-go/config"
	"github.com/ieee0824/rnnt-go/loss"
	"github.com/ieee0824/rnnt-go/nnet"
	"github.com/ieee0824/rnnt-go/score"
)

// Model is the transducer model with its auxiliary heads.
type Model struct {
	TokenList []string
	Blank     int
	SOS       int
	EOS       int
	IgnoreID  int
	// LangTokenID is prepended to the label sequence for the attention
	// decoder when >= 0.
	LangTokenID int

	// ReportCER and ReportWER gate the validation error rates.
	ReportCER bool
	ReportWER bool

	Frontend   Frontend
	Normalizer Normalizer
	Augmenter  Augmenter

	Encoder *nnet.FFEncoder
	Decoder *nnet.RNNDecoder
	Joint   *nnet.JointNetwork

	CTCHead    *nnet.Linear
	LMHead     *nnet.Linear
	AttDecoder *nnet.AttDecoder
	ErrorCalc  *score.ErrorCalculator

	// TransducerLoss is the alignment primitive. New installs loss.RNNT;
	// a nil value at step time is a fatal configuration error.
	TransducerLoss TransducerLossFunc

	LossCfg config.Loss

	ExtractFeatsInCollectStats bool

	log      *slog.Logger
	seed     int64
	steps    atomic.Int64
	training bool
}

// Option configures a Model.
type Option func(*Model)

// WithFrontend attaches a raw-speech frontend.
func WithFrontend(f Frontend) Option {
	return func(m *Model) { m.Frontend = f }
}

// WithNormalizer attaches feature normalization.
func WithNormalizer(n Normalizer) Option {
	return func(m *Model) { m.Normalizer = n }
}

// WithAugmenter attaches training-time feature augmentation.
func WithAugmenter(a Augmenter) Option {
	return func(m *Model) { m.Augmenter = a }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithExtractFeatsInCollectStats makes CollectFeats run the real frontend
// instead of returning the raw input.
func WithExtractFeatsInCollectStats(v bool) Option {
	return func(m *Model) { m.ExtractFeatsInCollectStats = v }
}

// WithTransducerLoss replaces the alignment primitive.
func WithTransducerLoss(f TransducerLossFunc) Option {
	return func(m *Model) { m.TransducerLoss = f }
}

// New builds a Model from configuration. All networks and every activated
// auxiliary head are constructed here, so a weight change after construction
// never conjures an uninitialized head at step time.
func New(cfg *config.Config, opts ...Option) (*Model, error) {
	if cfg.Loss.TransducerWeight <= 0 {
		return nil, ErrNoTransducerLoss
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vocab := len(cfg.Model.TokenList)
	if vocab < 2 {
		return nil, fmt.Errorf("rnnt: token list must hold at least blank and one label, got %d", vocab)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		TokenList:      cfg.Model.TokenList,
		Blank:          0,
		SOS:            vocab - 1,
		EOS:            vocab - 1,
		IgnoreID:       -1,
		LangTokenID:    -1,
		ReportCER:      cfg.Model.ReportCER,
		ReportWER:      cfg.Model.ReportWER,
		LossCfg:        cfg.Loss,
		TransducerLoss: loss.RNNT,
		log:            slog.Default(),
		seed:           cfg.Seed,
		training:       true,
	}
	symSOS, symEOS := cfg.Model.SymSOS, cfg.Model.SymEOS
	if symSOS == "" {
		symSOS = "<s>"
	}
	if symEOS == "" {
		symEOS = "</s>"
	}
	for i, tok := range cfg.Model.TokenList {
		if tok == symSOS {
			m.SOS = i
		}
		if tok == symEOS {
			m.EOS = i
		}
	}
	if cfg.Model.LangToken != "" {
		for i, tok := range cfg.Model.TokenList {
			if tok == cfg.Model.LangToken {
				m.LangTokenID = i
			}
		}
		if m.LangTokenID < 0 {
			return nil, fmt.Errorf("rnnt: lang_token %q not in token list", cfg.Model.LangToken)
		}
	}

	mc := cfg.Model
	m.Encoder = nnet.NewFFEncoder(mc.FeatDim, mc.EncHidden, mc.EncOut, mc.Context, mc.Subsample, mc.ChunkSize, rng)
	m.Decoder = nnet.NewRNNDecoder(vocab, mc.EmbedDim, mc.DecHidden, rng)
	m.Joint = nnet.NewJointNetwork(mc.EncOut, mc.DecHidden, mc.JointDim, vocab, rng)

	if cfg.Loss.CTCWeight > 0 {
		m.CTCHead = nnet.NewLinear(mc.EncOut, vocab, rng)
	}
	if cfg.Loss.LMWeight > 0 {
		m.LMHead = nnet.NewLinear(mc.DecHidden, vocab, rng)
	}
	if cfg.Loss.AttWeight > 0 {
		m.AttDecoder = nnet.NewAttDecoder(vocab, mc.EmbedDim, mc.EncOut, mc.DecHidden, rng)
	}
	m.ErrorCalc = score.NewErrorCalculator(m.Decoder, m.Joint, cfg.Model.TokenList, "<space>")

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Train puts the model in training mode: augmentation and dropout are active
// and validation error rates are skipped.
func (m *Model) Train() { m.training = true }

// Eval puts the model in evaluation mode.
func (m *Model) Eval() { m.training = false }

// Training reports whether the model is in training mode.
func (m *Model) Training() bool { return m.training }

// VocabSize returns the output vocabulary size including blank.
func (m *Model) VocabSize() int { return len(m.TokenList) }

// Checkpoint packs the model weights for serialization.
func (m *Model) Checkpoint() *nnet.Checkpoint {
	return &nnet.Checkpoint{
		Encoder:    m.Encoder,
		Decoder:    m.Decoder,
		Joint:      m.Joint,
		AttDecoder: m.AttDecoder,
		CTCHead:    m.CTCHead,
		LMHead:     m.LMHead,
	}
}

// Restore replaces the model weights with a loaded checkpoint. Heads absent
// from the checkpoint keep their freshly initialized weights.
func (m *Model) Restore(ck *nnet.Checkpoint) {
	if ck.Encoder != nil {
		m.Encoder = ck.Encoder
	}
	if ck.Decoder != nil {
		m.Decoder = ck.Decoder
	}
	if ck.Joint != nil {
		m.Joint = ck.Joint
	}
	if ck.AttDecoder != nil {
		m.AttDecoder = ck.AttDecoder
	}
	if ck.CTCHead != nil {
		m.CTCHead = ck.CTCHead
	}
	if ck.LMHead != nil {
		m.LMHead = ck.LMHead
	}
	m.ErrorCalc.Decoder = m.Decoder
	m.ErrorCalc.Joint = m.Joint
}
