// Package nnet provides the reference neural collaborators for transducer
// training: linear projections, an embedding prediction network, a
// feedforward context encoder with an optional constrained-lookahead chunked
// pass, an additive joint network, and a small attention decoder.
//
// These are deliberately compact CPU implementations; the training core only
// depends on their interfaces and any drop-in replacement with the same
// shapes works.
package nnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// Linear is a fully-connected layer y = x·Wᵀ + b applied over the last axis.
// W is (Out, In).
type Linear struct {
	W   *mat.Dense
	B   []float64
	In  int
	Out int
}

// NewLinear creates a layer with Xavier-initialized weights.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	w := mat.NewDense(out, in, nil)
	xavierFill(w, in, out, rng)
	return &Linear{
		W:   w,
		B:   make([]float64, out),
		In:  in,
		Out: out,
	}
}

// Forward applies the layer over the last axis of x, preserving every leading
// dimension: (..., In) → (..., Out).
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	rows := x.Size() / l.In
	outShape := append([]int{}, x.Shape...)
	outShape[len(outShape)-1] = l.Out
	y := tensor.New(outShape...)

	xm := mat.NewDense(rows, l.In, x.Data)
	ym := mat.NewDense(rows, l.Out, y.Data)
	ym.Mul(xm, l.W.T())
	for r := 0; r < rows; r++ {
		floats.Add(y.Data[r*l.Out:(r+1)*l.Out], l.B)
	}
	return y
}

// xavierFill initializes weights uniformly in ±sqrt(6/(fanIn+fanOut)).
func xavierFill(m *mat.Dense, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
}

// Dropout applies inverted dropout to a copy of x. rate <= 0 or a nil rng
// returns x unchanged (evaluation mode).
func Dropout(x *tensor.Tensor, rate float64, rng *rand.Rand) *tensor.Tensor {
	if rate <= 0 || rng == nil {
		return x
	}
	out := x.Clone()
	scale := 1.0 / (1.0 - rate)
	for i := range out.Data {
		if rng.Float64() < rate {
			out.Data[i] = 0
		} else {
			out.Data[i] *= scale
		}
	}
	return out
}
