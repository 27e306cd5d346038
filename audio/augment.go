package audio

import "math/rand"

// SpeedPerturb resamples the audio by the given speed factor using linear
// interpolation. A factor > 1.0 shortens the audio, < 1.0 lengthens it; the
// sample rate is unchanged and the result has length int(len(samples)/factor).
func SpeedPerturb(samples []float64, factor float64) []float64 {
	if len(samples) == 0 || factor <= 0 {
		return nil
	}
	origLen := len(samples)
	newLen := int(float64(origLen) / factor)
	if newLen == 0 {
		return nil
	}

	result := make([]float64, newLen)
	for i := 0; i < newLen; i++ {
		srcIdx := float64(i) * factor
		idx0 := int(srcIdx)
		frac := srcIdx - float64(idx0)
		if idx0+1 < origLen {
			result[i] = samples[idx0]*(1.0-frac) + samples[idx0+1]*frac
		} else if idx0 < origLen {
			result[i] = samples[idx0]
		}
	}
	return result
}

// speedFactors are the standard three-way perturbation choices.
var speedFactors = []float64{0.9, 1.0, 1.1}

// RandomSpeed applies a randomly chosen standard speed factor.
func RandomSpeed(samples []float64, rng *rand.Rand) []float64 {
	return SpeedPerturb(samples, speedFactors[rng.Intn(len(speedFactors))])
}
