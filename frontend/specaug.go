package frontend

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// SpecAugment masks random time and frequency stripes of the features.
// Lengths are unchanged.
type SpecAugment struct {
	TimeMasks    int
	FreqMasks    int
	MaxTimeWidth int
	MaxFreqWidth int

	seed  int64
	calls atomic.Int64
}

// NewSpecAugment builds an augmenter with the given mask counts and widths.
func NewSpecAugment(timeMasks, maxTimeWidth, freqMasks, maxFreqWidth int, seed int64) *SpecAugment {
	return &SpecAugment{
		TimeMasks:    timeMasks,
		FreqMasks:    freqMasks,
		MaxTimeWidth: maxTimeWidth,
		MaxFreqWidth: maxFreqWidth,
		seed:         seed,
	}
}

// Augment masks the features in place and returns the tensor with the same
// lengths. Masks never extend into padding frames.
func (s *SpecAugment) Augment(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error) {
	// Per-call rng keeps concurrent batches off a shared random stream.
	rng := rand.New(rand.NewSource(s.seed + s.calls.Add(1)))
	if feats.Rank() != 3 {
		return nil, nil, fmt.Errorf("specaug: feats must be rank 3 (B,T,D), got shape %v", feats.Shape)
	}
	B, D := feats.Dim(0), feats.Dim(2)
	if len(lens) != B {
		return nil, nil, fmt.Errorf("specaug: batch mismatch: feats %d, lengths %d", B, len(lens))
	}
	for b := 0; b < B; b++ {
		T := lens[b]
		for i := 0; i < s.TimeMasks && T > 1; i++ {
			w := rng.Intn(s.MaxTimeWidth + 1)
			if w >= T {
				w = T - 1
			}
			if w == 0 {
				continue
			}
			start := rng.Intn(T - w + 1)
			for t := start; t < start+w; t++ {
				row := feats.Row(b, t)
				for d := range row {
					row[d] = 0
				}
			}
		}
		for i := 0; i < s.FreqMasks && D > 1; i++ {
			w := rng.Intn(s.MaxFreqWidth + 1)
			if w >= D {
				w = D - 1
			}
			if w == 0 {
				continue
			}
			start := rng.Intn(D - w + 1)
			for t := 0; t < T; t++ {
				row := feats.Row(b, t)
				for d := start; d < start+w; d++ {
					row[d] = 0
				}
			}
		}
	}
	return feats, lens, nil
}
