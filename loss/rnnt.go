// Package loss implements the alignment losses and label-target utilities for
// transducer training: the RNN-Transducer forward-backward loss with FastEmit
// regularization, CTC, label-smoothed cross-entropy, the LM KL-divergence
// loss, and sos/eos sequence helpers.
package loss

import (
	"fmt"
	"math"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// RNNT computes the RNN-Transducer negative log-likelihood by the
// forward-backward algorithm over the (T, U) alignment lattice, averaged over
// the batch (mean reduction).
//
// logProbs is the log-softmaxed joint lattice (B, T, U+1, V). targets holds
// the label IDs per example; only the first uLen[b] entries of row b are read.
// tLen and uLen are the per-example valid encoder and label lengths. blank is
// the null-emission symbol ID.
//
// fastemitLambda > 0 adds a FastEmit latency regularizer: lambda times the
// expected normalized emission time under the alignment posterior, which
// penalizes probability mass on alignments that delay label emission behind
// blank transitions. lambda = 0 recovers the plain transducer loss.
func RNNT(logProbs *tensor.Tensor, targets [][]int, tLen, uLen []int, blank int, fastemitLambda float64) (float64, error) {
	if logProbs.Rank() != 4 {
		return 0, fmt.Errorf("rnnt loss: log-probs must be rank 4 (B,T,U+1,V), got shape %v", logProbs.Shape)
	}
	B := logProbs.Dim(0)
	maxT := logProbs.Dim(1)
	maxU1 := logProbs.Dim(2)
	V := logProbs.Dim(3)
	if len(targets) != B || len(tLen) != B || len(uLen) != B {
		return 0, fmt.Errorf("rnnt loss: batch mismatch: lattice %d, targets %d, tLen %d, uLen %d",
			B, len(targets), len(tLen), len(uLen))
	}
	if blank < 0 || blank >= V {
		return 0, fmt.Errorf("rnnt loss: blank ID %d outside vocabulary [0,%d)", blank, V)
	}

	total := 0.0
	for b := 0; b < B; b++ {
		T, U := tLen[b], uLen[b]
		if T < 1 || T > maxT {
			return 0, fmt.Errorf("rnnt loss: example %d: source length %d outside [1,%d]", b, T, maxT)
		}
		if U < 0 || U+1 > maxU1 {
			return 0, fmt.Errorf("rnnt loss: example %d: target length %d outside [0,%d]", b, U, maxU1-1)
		}
		for u := 0; u < U; u++ {
			if y := targets[b][u]; y < 0 || y >= V {
				return 0, fmt.Errorf("rnnt loss: example %d: target[%d] = %d outside vocabulary [0,%d)", b, u, y, V)
			}
		}
		nll, err := rnntExample(logProbs, targets[b], b, T, U, blank, fastemitLambda)
		if err != nil {
			return 0, err
		}
		total += nll
	}
	return total / float64(B), nil
}

// rnntExample runs forward (and, when FastEmit is active, backward) over one
// example's lattice and returns its loss contribution.
func rnntExample(lp *tensor.Tensor, target []int, b, T, U, blank int, lambda float64) (float64, error) {
	// blankLP and emitLP address the two outgoing arcs of lattice node (t, u):
	// advance time via blank, or emit label u+1 and advance the label axis.
	blankLP := func(t, u int) float64 { return lp.At(b, t, u, blank) }
	emitLP := func(t, u int) float64 { return lp.At(b, t, u, target[u]) }

	alpha := mathutil.NewMatFill(T, U+1, mathutil.LogZero)
	alpha[0][0] = 0
	for t := 1; t < T; t++ {
		alpha[t][0] = alpha[t-1][0] + blankLP(t-1, 0)
	}
	for u := 1; u <= U; u++ {
		alpha[0][u] = alpha[0][u-1] + emitLP(0, u-1)
	}
	for t := 1; t < T; t++ {
		for u := 1; u <= U; u++ {
			alpha[t][u] = mathutil.LogAdd(
				alpha[t-1][u]+blankLP(t-1, u),
				alpha[t][u-1]+emitLP(t, u-1),
			)
		}
	}
	ll := alpha[T-1][U] + blankLP(T-1, U)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, fmt.Errorf("rnnt loss: example %d: degenerate log-likelihood %v", b, ll)
	}
	nll := -ll
	if lambda == 0 || U == 0 {
		return nll, nil
	}

	// Backward pass for the emission posterior gamma(t, u), the probability
	// that the alignment emits label u+1 at encoder step t.
	beta := mathutil.NewMatFill(T, U+1, mathutil.LogZero)
	beta[T-1][U] = blankLP(T-1, U)
	for t := T - 2; t >= 0; t-- {
		beta[t][U] = beta[t+1][U] + blankLP(t, U)
	}
	for u := U - 1; u >= 0; u-- {
		beta[T-1][u] = beta[T-1][u+1] + emitLP(T-1, u)
	}
	for t := T - 2; t >= 0; t-- {
		for u := U - 1; u >= 0; u-- {
			beta[t][u] = mathutil.LogAdd(
				beta[t+1][u]+blankLP(t, u),
				beta[t][u+1]+emitLP(t, u),
			)
		}
	}

	// Expected normalized emission time: sum_t,u gamma(t,u) * t/T.
	// Every alignment emits each label exactly once, so the posterior over t
	// sums to 1 per label; mass at late t means delayed emission.
	delay := 0.0
	invT := 1.0 / float64(T)
	for t := 0; t < T; t++ {
		for u := 0; u < U; u++ {
			g := alpha[t][u] + emitLP(t, u) + beta[t][u+1] - ll
			if g > mathutil.LogZero+1 {
				delay += math.Exp(g) * float64(t) * invT
			}
		}
	}
	return nll + lambda*delay, nil
}
