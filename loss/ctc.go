package loss

import (
	"fmt"
	"math"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// CTC computes the Connectionist Temporal Classification loss over a batch:
// the forward algorithm over the blank-extended label sequence, summed across
// the batch and divided by the batch size.
//
// logProbs is the log-softmaxed frame classification lattice (B, T, V).
// Only the first uLen[b] entries of targets[b] are read.
//
// An example whose lattice admits no valid alignment (e.g. tLen < uLen)
// produces an infinite negative log-likelihood; such contributions are
// clamped to zero rather than propagated, matching zero_infinity semantics.
func CTC(logProbs *tensor.Tensor, targets [][]int, tLen, uLen []int, blank int) (float64, error) {
	if logProbs.Rank() != 3 {
		return 0, fmt.Errorf("ctc loss: log-probs must be rank 3 (B,T,V), got shape %v", logProbs.Shape)
	}
	B := logProbs.Dim(0)
	maxT := logProbs.Dim(1)
	V := logProbs.Dim(2)
	if len(targets) != B || len(tLen) != B || len(uLen) != B {
		return 0, fmt.Errorf("ctc loss: batch mismatch: lattice %d, targets %d, tLen %d, uLen %d",
			B, len(targets), len(tLen), len(uLen))
	}

	total := 0.0
	for b := 0; b < B; b++ {
		T, U := tLen[b], uLen[b]
		if T < 1 || T > maxT {
			return 0, fmt.Errorf("ctc loss: example %d: source length %d outside [1,%d]", b, T, maxT)
		}
		for u := 0; u < U; u++ {
			if y := targets[b][u]; y < 0 || y >= V {
				return 0, fmt.Errorf("ctc loss: example %d: target[%d] = %d outside vocabulary [0,%d)", b, u, y, V)
			}
		}
		nll := ctcExample(logProbs, targets[b], b, T, U, blank)
		// Zero-floor pathological examples instead of poisoning the batch.
		if math.IsInf(nll, 0) || math.IsNaN(nll) {
			continue
		}
		total += nll
	}
	return total / float64(B), nil
}

// ctcExample computes the forward algorithm for one example over the extended
// sequence blank, y1, blank, y2, ..., yU, blank (length 2U+1).
func ctcExample(lp *tensor.Tensor, target []int, b, T, U, blank int) float64 {
	S := 2*U + 1
	ext := make([]int, S)
	for i := range ext {
		if i%2 == 0 {
			ext[i] = blank
		} else {
			ext[i] = target[i/2]
		}
	}

	prev := mathutil.NewVecFill(S, mathutil.LogZero)
	curr := mathutil.NewVecFill(S, mathutil.LogZero)

	prev[0] = lp.At(b, 0, ext[0])
	if S > 1 {
		prev[1] = lp.At(b, 0, ext[1])
	}

	for t := 1; t < T; t++ {
		mathutil.FillVec(curr, mathutil.LogZero)
		for s := 0; s < S; s++ {
			a := prev[s]
			if s > 0 {
				a = mathutil.LogAdd(a, prev[s-1])
			}
			// Skip transition allowed across a blank between distinct labels.
			if s > 1 && ext[s] != blank && ext[s] != ext[s-2] {
				a = mathutil.LogAdd(a, prev[s-2])
			}
			if a > mathutil.LogZero+1 {
				curr[s] = a + lp.At(b, t, ext[s])
			}
		}
		prev, curr = curr, prev
	}

	ll := prev[S-1]
	if S > 1 {
		ll = mathutil.LogAdd(ll, prev[S-2])
	}
	if ll <= mathutil.LogZero+1 {
		return math.Inf(1)
	}
	return -ll
}
