package rnnt

import "sort"

// Scalar is a reported statistic. Present distinguishes a genuinely computed
// zero from a statistic that was not produced this step.
type Scalar struct {
	Value   float64
	Present bool
}

// Stats maps statistic names to values for one forward step.
type Stats map[string]Scalar

// Set records a present value.
func (s Stats) Set(name string, v float64) {
	s[name] = Scalar{Value: v, Present: true}
}

// StepResult is what one forward pass over a batch produces: the total loss
// to optimize, the diagnostics, and the batch size used as reduction weight.
type StepResult struct {
	Loss      float64
	Stats     Stats
	BatchSize int
}

// Reduce combines per-worker step results into batch-size-weighted means.
// A statistic absent from some workers is averaged over the workers that
// produced it.
func Reduce(results []StepResult) Stats {
	weights := make(map[string]float64)
	sums := make(map[string]float64)
	for _, r := range results {
		w := float64(r.BatchSize)
		if w <= 0 {
			continue
		}
		for name, sc := range r.Stats {
			if !sc.Present {
				continue
			}
			sums[name] += sc.Value * w
			weights[name] += w
		}
	}
	out := make(Stats, len(sums))
	for name, sum := range sums {
		out.Set(name, sum/weights[name])
	}
	return out
}

// Names returns the present statistic names in sorted order.
func (s Stats) Names() []string {
	names := make([]string, 0, len(s))
	for name, sc := range s {
		if sc.Present {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
