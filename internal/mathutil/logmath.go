package mathutil

import "math"

// LogZero represents log(0), used as negative infinity in log-domain arithmetic.
const LogZero = -1e30

// LogAdd returns log(exp(a) + exp(b)) in a numerically stable way.
// Uses threshold-based early exit to skip expensive exp/log1p when the
// smaller value contributes less than float64 precision (exp(-36) ≈ 2.3e-16).
func LogAdd(a, b float64) float64 {
	if a > b {
		if b == LogZero {
			return a
		}
		d := b - a
		if d < -36.0 {
			return a
		}
		return a + math.Log1p(math.Exp(d))
	}
	if a == LogZero {
		return b
	}
	d := a - b
	if d < -36.0 {
		return b
	}
	return b + math.Log1p(math.Exp(d))
}

// LogSumExp returns log(Σ exp(v[i])) over a slice in a numerically stable way.
func LogSumExp(v []float64) float64 {
	maxVal := math.Inf(-1)
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	if math.IsInf(maxVal, -1) || maxVal <= LogZero {
		return LogZero
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

// LogSoftmax normalizes logits into log-probabilities in place:
// v[i] ← v[i] - log(Σ exp(v[j])).
func LogSoftmax(v []float64) {
	lse := LogSumExp(v)
	for i := range v {
		v[i] -= lse
	}
}
