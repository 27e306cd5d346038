// Package tensor provides a minimal row-major strided float64 tensor used for
// batched sequence data (padded speech, features, encoder/decoder outputs and
// the transducer joint lattice).
package tensor

import "fmt"

// Tensor is a dense row-major multi-dimensional array.
type Tensor struct {
	Data    []float64
	Shape   []int
	Strides []int
}

// computeStrides calculates strides for row-major layout.
func computeStrides(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	strides := make([]int, len(shape))
	strides[len(shape)-1] = 1
	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}
	return strides
}

// New creates a zero-initialized tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return &Tensor{
		Data:    make([]float64, size),
		Shape:   append([]int{}, shape...),
		Strides: computeStrides(shape),
	}
}

// FromData wraps an existing flat buffer. len(data) must equal the shape product.
func FromData(data []float64, shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if len(data) != size {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{
		Data:    data,
		Shape:   append([]int{}, shape...),
		Strides: computeStrides(shape),
	}
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

// Offset returns the flat index of the element at the given coordinates.
// Fewer coordinates than dimensions address the start of a sub-block.
func (t *Tensor) Offset(ix ...int) int {
	off := 0
	for i, x := range ix {
		off += x * t.Strides[i]
	}
	return off
}

// At returns the element at the given coordinates.
func (t *Tensor) At(ix ...int) float64 { return t.Data[t.Offset(ix...)] }

// Set stores v at the given coordinates.
func (t *Tensor) Set(v float64, ix ...int) { t.Data[t.Offset(ix...)] = v }

// Row returns the last-axis vector at the given leading coordinates as a
// mutable view. For a (B, T, V) tensor, Row(b, t) is the length-V slice.
func (t *Tensor) Row(ix ...int) []float64 {
	if len(ix) != len(t.Shape)-1 {
		panic(fmt.Sprintf("tensor: Row wants %d coordinates, got %d", len(t.Shape)-1, len(ix)))
	}
	off := t.Offset(ix...)
	n := t.Shape[len(t.Shape)-1]
	return t.Data[off : off+n]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// NarrowTime returns a copy of the tensor truncated to the first n entries of
// axis 1 (the time axis of a (B, T, ...) tensor).
func (t *Tensor) NarrowTime(n int) *Tensor {
	if n >= t.Shape[1] {
		return t
	}
	shape := append([]int{}, t.Shape...)
	shape[1] = n
	out := New(shape...)
	blockLen := n * t.Strides[1]
	for b := 0; b < t.Shape[0]; b++ {
		src := t.Data[b*t.Strides[0] : b*t.Strides[0]+blockLen]
		copy(out.Data[b*out.Strides[0]:], src)
	}
	return out
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}
