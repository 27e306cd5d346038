package nnet

import (
	"fmt"
	"math/rand"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// FFEncoder is a feedforward context encoder: each subsampled frame is
// classified from a symmetric context window of input frames, projected
// through a hidden ReLU layer. When ChunkSize > 0 the encoder can also
// produce a second, constrained-lookahead encoding in which the right
// context of a frame never crosses its chunk boundary. That is the streaming
// re-encoding used for consistency regularization.
type FFEncoder struct {
	Proj      *Linear // ((2*Context+1)*featDim, Hidden)
	Out       *Linear // (Hidden, OutDim)
	FeatDim   int
	Context   int // context window half-size, in subsampled frames
	Subsample int // time subsampling factor
	ChunkSize int // chunk length in output frames (0 = offline only)
}

// NewFFEncoder creates an encoder. outDim is the encoder output size consumed
// by the joint network.
func NewFFEncoder(featDim, hidden, outDim, context, subsample, chunkSize int, rng *rand.Rand) *FFEncoder {
	in := (2*context + 1) * featDim
	return &FFEncoder{
		Proj:      NewLinear(in, hidden, rng),
		Out:       NewLinear(hidden, outDim, rng),
		FeatDim:   featDim,
		Context:   context,
		Subsample: subsample,
		ChunkSize: chunkSize,
	}
}

// OutputSize returns the encoder output dimensionality.
func (e *FFEncoder) OutputSize() int { return e.Out.Out }

// Encode runs the offline (full-context) pass.
func (e *FFEncoder) Encode(feats *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error) {
	out, _, outLens, err := e.encode(feats, lens, false)
	return out, outLens, err
}

// EncodeChunked runs the offline pass and the constrained-lookahead pass over
// the same input, returning both encodings with shared lengths.
func (e *FFEncoder) EncodeChunked(feats *tensor.Tensor, lens []int) (*tensor.Tensor, *tensor.Tensor, []int, error) {
	if e.ChunkSize <= 0 {
		return nil, nil, nil, fmt.Errorf("encoder: chunked pass requires ChunkSize > 0")
	}
	return e.encode(feats, lens, true)
}

func (e *FFEncoder) encode(feats *tensor.Tensor, lens []int, chunked bool) (*tensor.Tensor, *tensor.Tensor, []int, error) {
	if feats.Rank() != 3 {
		return nil, nil, nil, fmt.Errorf("encoder: feats must be rank 3 (B,T,D), got shape %v", feats.Shape)
	}
	if feats.Dim(2) != e.FeatDim {
		return nil, nil, nil, fmt.Errorf("encoder: feature dim %d, want %d", feats.Dim(2), e.FeatDim)
	}
	B := feats.Dim(0)

	outLens := make([]int, B)
	maxOut := 0
	for b, l := range lens {
		outLens[b] = (l + e.Subsample - 1) / e.Subsample
		if outLens[b] > maxOut {
			maxOut = outLens[b]
		}
	}
	if maxOut == 0 {
		return nil, nil, nil, fmt.Errorf("encoder: all input lengths are zero")
	}

	full := e.contextPass(feats, lens, outLens, maxOut, 0)
	var chunk *tensor.Tensor
	if chunked {
		chunk = e.contextPass(feats, lens, outLens, maxOut, e.ChunkSize)
	}
	return full, chunk, outLens, nil
}

// contextPass gathers the context window for every valid output frame and
// projects it. chunkSize > 0 clamps right context at chunk boundaries.
func (e *FFEncoder) contextPass(feats *tensor.Tensor, lens, outLens []int, maxOut, chunkSize int) *tensor.Tensor {
	B := feats.Dim(0)
	winDim := (2*e.Context + 1) * e.FeatDim
	window := tensor.New(B, maxOut, winDim)

	for b := 0; b < B; b++ {
		last := lens[b] - 1
		for ot := 0; ot < outLens[b]; ot++ {
			center := ot * e.Subsample
			rightLimit := last
			if chunkSize > 0 {
				// Right context may not look past the end of this chunk.
				boundary := ((ot/chunkSize)+1)*chunkSize*e.Subsample - 1
				if boundary < rightLimit {
					rightLimit = boundary
				}
			}
			dst := window.Row(b, ot)
			for c := -e.Context; c <= e.Context; c++ {
				src := center + c*e.Subsample
				if src < 0 {
					src = 0
				}
				if src > rightLimit {
					src = rightLimit
				}
				copy(dst[(c+e.Context)*e.FeatDim:(c+e.Context+1)*e.FeatDim], feats.Row(b, src))
			}
		}
	}

	hidden := e.Proj.Forward(window)
	for i, v := range hidden.Data {
		if v < 0 {
			hidden.Data[i] = 0
		}
	}
	return e.Out.Forward(hidden)
}
