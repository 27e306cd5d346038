package loss

import (
	"math/rand"
	"testing"
)

func BenchmarkRNNT(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	B, T, U, V := 4, 50, 12, 64
	lp := randomLattice(rng, B, T, U+1, V)
	targets := make([][]int, B)
	tLen := make([]int, B)
	uLen := make([]int, B)
	for i := 0; i < B; i++ {
		tLen[i] = T
		uLen[i] = U
		targets[i] = make([]int, U)
		for u := range targets[i] {
			targets[i][u] = 1 + rng.Intn(V-1)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := RNNT(lp, targets, tLen, uLen, 0, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRNNTFastEmit(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	B, T, U, V := 4, 50, 12, 64
	lp := randomLattice(rng, B, T, U+1, V)
	targets := make([][]int, B)
	tLen := make([]int, B)
	uLen := make([]int, B)
	for i := 0; i < B; i++ {
		tLen[i] = T
		uLen[i] = U
		targets[i] = make([]int, U)
		for u := range targets[i] {
			targets[i][u] = 1 + rng.Intn(V-1)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := RNNT(lp, targets, tLen, uLen, 0, 0.01); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCTC(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	B, T, V := 4, 100, 64
	lp := randomFrameLattice(rng, B, T, V)
	targets := make([][]int, B)
	tLen := make([]int, B)
	uLen := make([]int, B)
	for i := 0; i < B; i++ {
		tLen[i] = T
		uLen[i] = 20
		targets[i] = make([]int, 20)
		for u := range targets[i] {
			targets[i][u] = 1 + rng.Intn(V-1)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := CTC(lp, targets, tLen, uLen, 0); err != nil {
			b.Fatal(err)
		}
	}
}
