package loss

import (
	"math"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// SmoothedDistribution writes a label-smoothed one-hot distribution into dst:
// the target entry receives 1-smoothing and the remaining mass is spread
// uniformly over the other len(dst)-1 entries. The row sums to 1.
func SmoothedDistribution(dst []float64, target int, smoothing float64) {
	uniform := smoothing / float64(len(dst)-1)
	for i := range dst {
		dst[i] = uniform
	}
	dst[target] = 1 - smoothing
}

// LabelSmoothingLoss is the label-smoothed cross-entropy criterion used by
// the attention auxiliary path: KL divergence between a smoothed one-hot
// target distribution and the softmax of the decoder logits.
type LabelSmoothingLoss struct {
	Size            int     // vocabulary size
	PaddingIdx      int     // target entries with this value are masked out
	Smoothing       float64 // smoothing mass, e.g. 0.1
	NormalizeLength bool    // divide by token count instead of batch size
}

// Forward computes the smoothed cross-entropy of logits (B, U, V) against
// target (B rows of label IDs, padded with PaddingIdx).
func (c *LabelSmoothingLoss) Forward(logits *tensor.Tensor, target [][]int) float64 {
	B := logits.Dim(0)
	U := logits.Dim(1)
	V := logits.Dim(2)

	trueDist := make([]float64, V)
	logp := make([]float64, V)

	total := 0.0
	tokens := 0
	for b := 0; b < B; b++ {
		for u := 0; u < U && u < len(target[b]); u++ {
			tgt := target[b][u]
			if tgt == c.PaddingIdx {
				continue
			}
			tokens++
			copy(logp, logits.Row(b, u))
			mathutil.LogSoftmax(logp)
			SmoothedDistribution(trueDist, tgt, c.Smoothing)
			for j := 0; j < V; j++ {
				p := trueDist[j]
				if p > 0 {
					total += p * (math.Log(p) - logp[j])
				}
			}
		}
	}

	denom := float64(B)
	if c.NormalizeLength {
		denom = float64(tokens)
	}
	if denom == 0 {
		return 0
	}
	return total / denom
}

// LMLoss computes the decoder LM auxiliary loss: KL divergence between a
// label-smoothed one-hot distribution over non-blank targets and the softmax
// of the projected decoder output. Positions whose target is blank (which
// includes right-padding) contribute nothing. The sum is divided by the
// batch size.
func LMLoss(logits *tensor.Tensor, target [][]int, blank int, smoothing float64) float64 {
	B := logits.Dim(0)
	U := logits.Dim(1)
	V := logits.Dim(2)

	trueDist := make([]float64, V)
	logp := make([]float64, V)

	total := 0.0
	for b := 0; b < B; b++ {
		for u := 0; u < U && u < len(target[b]); u++ {
			tgt := target[b][u]
			if tgt == blank {
				continue
			}
			copy(logp, logits.Row(b, u))
			mathutil.LogSoftmax(logp)
			SmoothedDistribution(trueDist, tgt, smoothing)
			for j := 0; j < V; j++ {
				p := trueDist[j]
				if p > 0 {
					total += p * (math.Log(p) - logp[j])
				}
			}
		}
	}
	return total / float64(B)
}
