package nnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// Embedding maps token IDs to dense vectors. Table is (V, D).
type Embedding struct {
	Table *mat.Dense
	V     int
	D     int
}

// NewEmbedding creates an embedding table with Xavier-initialized rows.
func NewEmbedding(vocabSize, dim int, rng *rand.Rand) *Embedding {
	t := mat.NewDense(vocabSize, dim, nil)
	xavierFill(t, vocabSize, dim, rng)
	return &Embedding{Table: t, V: vocabSize, D: dim}
}

// Lookup gathers embeddings for a padded batch of ID sequences into a
// (B, L, D) tensor. All rows of ids must share the same length.
func (e *Embedding) Lookup(ids [][]int) *tensor.Tensor {
	B := len(ids)
	L := len(ids[0])
	out := tensor.New(B, L, e.D)
	for b := 0; b < B; b++ {
		for l := 0; l < L; l++ {
			copy(out.Row(b, l), e.Table.RawRowView(ids[b][l]))
		}
	}
	return out
}

// RNNDecoder is the transducer prediction network: an embedding followed by a
// single tanh recurrence, teacher-forced over the blank-prepended label
// sequence.
type RNNDecoder struct {
	Embed  *Embedding
	Wx     *mat.Dense // (H, D_emb)
	Wh     *mat.Dense // (H, H)
	Bias   []float64
	Hidden int
}

// NewRNNDecoder creates a prediction network with hidden size hidden.
func NewRNNDecoder(vocabSize, embedDim, hidden int, rng *rand.Rand) *RNNDecoder {
	wx := mat.NewDense(hidden, embedDim, nil)
	wh := mat.NewDense(hidden, hidden, nil)
	xavierFill(wx, embedDim, hidden, rng)
	xavierFill(wh, hidden, hidden, rng)
	return &RNNDecoder{
		Embed:  NewEmbedding(vocabSize, embedDim, rng),
		Wx:     wx,
		Wh:     wh,
		Bias:   make([]float64, hidden),
		Hidden: hidden,
	}
}

// OutputSize returns the decoder output dimensionality.
func (d *RNNDecoder) OutputSize() int { return d.Hidden }

// Forward runs the recurrence over decoderIn (B rows of equal length) and
// returns (B, U, Hidden). uLen is accepted for interface parity; padded steps
// are computed like any other (their joint cells are masked by the loss).
func (d *RNNDecoder) Forward(decoderIn [][]int, uLen []int) *tensor.Tensor {
	B := len(decoderIn)
	U := len(decoderIn[0])
	emb := d.Embed.Lookup(decoderIn)
	out := tensor.New(B, U, d.Hidden)

	h := make([]float64, d.Hidden)
	hPrev := make([]float64, d.Hidden)
	for b := 0; b < B; b++ {
		for i := range hPrev {
			hPrev[i] = 0
		}
		for u := 0; u < U; u++ {
			x := emb.Row(b, u)
			for i := 0; i < d.Hidden; i++ {
				sum := d.Bias[i]
				wx := d.Wx.RawRowView(i)
				for j, xv := range x {
					sum += wx[j] * xv
				}
				wh := d.Wh.RawRowView(i)
				for j, hv := range hPrev {
					sum += wh[j] * hv
				}
				h[i] = math.Tanh(sum)
			}
			copy(out.Row(b, u), h)
			copy(hPrev, h)
		}
	}
	return out
}
