package frontend

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// UtteranceCMVN normalizes each utterance to zero mean (and optionally unit
// variance) over its valid frames.
type UtteranceCMVN struct {
	NormalizeVariance bool
}

// Normalize applies per-utterance mean/variance normalization in place and
// returns the tensor. Padding frames are left untouched.
func (c *UtteranceCMVN) Normalize(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error) {
	if feats.Rank() != 3 {
		return nil, nil, fmt.Errorf("cmvn: feats must be rank 3 (B,T,D), got shape %v", feats.Shape)
	}
	B, D := feats.Dim(0), feats.Dim(2)
	if len(lens) != B {
		return nil, nil, fmt.Errorf("cmvn: batch mismatch: feats %d, lengths %d", B, len(lens))
	}
	mean := make([]float64, D)
	variance := make([]float64, D)
	for b := 0; b < B; b++ {
		n := float64(lens[b])
		if n == 0 {
			continue
		}
		for d := range mean {
			mean[d] = 0
			variance[d] = 0
		}
		for t := 0; t < lens[b]; t++ {
			floats.Add(mean, feats.Row(b, t))
		}
		floats.Scale(1/n, mean)
		if c.NormalizeVariance {
			for t := 0; t < lens[b]; t++ {
				row := feats.Row(b, t)
				for d, v := range row {
					diff := v - mean[d]
					variance[d] += diff * diff
				}
			}
		}
		for t := 0; t < lens[b]; t++ {
			row := feats.Row(b, t)
			for d := range row {
				row[d] -= mean[d]
				if c.NormalizeVariance {
					sd := sqrtFloor(variance[d]/n, 1e-10)
					row[d] /= sd
				}
			}
		}
	}
	return feats, lens, nil
}

// GlobalCMVN normalizes with precomputed corpus statistics.
type GlobalCMVN struct {
	Mean []float64
	Std  []float64
}

// Normalize applies (x - mean) / std in place over valid frames.
func (c *GlobalCMVN) Normalize(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error) {
	if feats.Rank() != 3 {
		return nil, nil, fmt.Errorf("cmvn: feats must be rank 3 (B,T,D), got shape %v", feats.Shape)
	}
	B, D := feats.Dim(0), feats.Dim(2)
	if len(c.Mean) != D || len(c.Std) != D {
		return nil, nil, fmt.Errorf("cmvn: stats dim %d does not match feature dim %d", len(c.Mean), D)
	}
	if len(lens) != B {
		return nil, nil, fmt.Errorf("cmvn: batch mismatch: feats %d, lengths %d", B, len(lens))
	}
	for b := 0; b < B; b++ {
		for t := 0; t < lens[b]; t++ {
			row := feats.Row(b, t)
			for d := range row {
				row[d] = (row[d] - c.Mean[d]) / c.Std[d]
			}
		}
	}
	return feats, lens, nil
}

func sqrtFloor(v, floor float64) float64 {
	if v < floor {
		v = floor
	}
	return math.Sqrt(v)
}
