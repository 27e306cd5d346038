package loss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

func randomFrameLattice(rng *rand.Rand, B, T, V int) *tensor.Tensor {
	lp := tensor.New(B, T, V)
	for i := range lp.Data {
		lp.Data[i] = rng.NormFloat64()
	}
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			mathutil.LogSoftmax(lp.Row(b, t))
		}
	}
	return lp
}

// collapse removes repeated symbols and then blanks, the CTC many-to-one map.
func collapse(frames []int, blank int) []int {
	var out []int
	prev := -1
	for _, s := range frames {
		if s != prev && s != blank {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

func equalSeq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// enumerateCTC sums the probability of every frame labeling that collapses to
// the target.
func enumerateCTC(lp *tensor.Tensor, target []int, b, T, V, blank int) float64 {
	total := mathutil.LogZero
	frames := make([]int, T)
	var walk func(t int, acc float64)
	walk = func(t int, acc float64) {
		if t == T {
			if equalSeq(collapse(frames, blank), target) {
				total = mathutil.LogAdd(total, acc)
			}
			return
		}
		for v := 0; v < V; v++ {
			frames[t] = v
			walk(t+1, acc+lp.At(b, t, v))
		}
	}
	walk(0, 0)
	return total
}

func TestCTCMatchesEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	T, V := 4, 3
	lp := randomFrameLattice(rng, 1, T, V)
	target := []int{1, 2}

	got, err := CTC(lp, [][]int{target}, []int{T}, []int{len(target)}, 0)
	if err != nil {
		t.Fatalf("CTC: %v", err)
	}
	want := -enumerateCTC(lp, target, 0, T, V, 0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("forward loss = %.12f, enumeration = %.12f", got, want)
	}
}

func TestCTCRepeatedLabel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	T, V := 5, 3
	lp := randomFrameLattice(rng, 1, T, V)
	// Repeated labels force a separating blank; the skip transition must not
	// shortcut across it.
	target := []int{2, 2}

	got, err := CTC(lp, [][]int{target}, []int{T}, []int{2}, 0)
	if err != nil {
		t.Fatalf("CTC: %v", err)
	}
	want := -enumerateCTC(lp, target, 0, T, V, 0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("repeated-label loss = %.12f, enumeration = %.12f", got, want)
	}
}

func TestCTCNonNegativeAndFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	B, T, V := 3, 6, 5
	lp := randomFrameLattice(rng, B, T, V)
	targets := [][]int{{1, 2}, {3}, {4, 1, 2}}
	uLen := []int{2, 1, 3}
	tLen := []int{6, 5, 6}

	got, err := CTC(lp, targets, tLen, uLen, 0)
	if err != nil {
		t.Fatalf("CTC: %v", err)
	}
	if got < 0 || math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("loss = %v, want finite and >= 0", got)
	}
}

func TestCTCInfeasibleExampleZeroFloored(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	// One frame cannot carry two labels: no valid alignment exists.
	lp := randomFrameLattice(rng, 1, 1, 4)
	got, err := CTC(lp, [][]int{{1, 2}}, []int{1}, []int{2}, 0)
	if err != nil {
		t.Fatalf("CTC: %v", err)
	}
	if got != 0 {
		t.Errorf("infeasible batch loss = %v, want 0 (zero-floored)", got)
	}
}

func TestCTCBatchMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	lp := randomFrameLattice(rng, 2, 3, 4)
	if _, err := CTC(lp, [][]int{{1}}, []int{3, 3}, []int{1, 1}, 0); err == nil {
		t.Error("expected error for batch mismatch")
	}
}
