package rnnt

import (
	"errors"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

var (
	// ErrBatchMismatch reports inputs whose batch dimensions disagree.
	ErrBatchMismatch = errors.New("rnnt: batch size mismatch")
	// ErrNoTransducerLoss reports a model without a usable transducer loss:
	// either the primary weight is not positive or the loss primitive is nil.
	ErrNoTransducerLoss = errors.New("rnnt: no transducer loss available")
)

// Frontend converts raw speech (B, S) into features (B, T, D).
type Frontend interface {
	Extract(speech *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error)
	OutputSize() int
}

// Normalizer rescales features in place.
type Normalizer interface {
	Normalize(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error)
}

// Augmenter perturbs features in place during training.
type Augmenter interface {
	Augment(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error)
}

// TransducerLossFunc evaluates the transducer loss over a log-softmaxed joint
// lattice (B, T, U+1, V). It is the required alignment primitive of the
// model; loss.RNNT is the in-repo implementation.
type TransducerLossFunc func(logProbs *tensor.Tensor, targets [][]int, tLen, uLen []int, blank int, fastemitLambda float64) (float64, error)
