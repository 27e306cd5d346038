package nnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// AttDecoder is a compact attention decoder used for the auxiliary attention
// loss: an embedding recurrence conditioned on a length-masked mean-pooled
// encoder context, projecting to vocabulary logits at every output position.
type AttDecoder struct {
	Embed  *Embedding
	Wx     *mat.Dense // (H, D_emb)
	Wh     *mat.Dense // (H, H)
	Wc     *mat.Dense // (H, D_enc)
	Bias   []float64
	Out    *Linear // (H, V)
	Hidden int
}

// NewAttDecoder creates an attention decoder over encDim-sized encoder states.
func NewAttDecoder(vocabSize, embedDim, encDim, hidden int, rng *rand.Rand) *AttDecoder {
	wx := mat.NewDense(hidden, embedDim, nil)
	wh := mat.NewDense(hidden, hidden, nil)
	wc := mat.NewDense(hidden, encDim, nil)
	xavierFill(wx, embedDim, hidden, rng)
	xavierFill(wh, hidden, hidden, rng)
	xavierFill(wc, encDim, hidden, rng)
	return &AttDecoder{
		Embed:  NewEmbedding(vocabSize, embedDim, rng),
		Wx:     wx,
		Wh:     wh,
		Wc:     wc,
		Bias:   make([]float64, hidden),
		Out:    NewLinear(hidden, vocabSize, rng),
		Hidden: hidden,
	}
}

// Forward teacher-forces ysIn against the encoder output and returns
// vocabulary logits (B, U, V) and the attention weights (B, U, T).
func (d *AttDecoder) Forward(encOut *tensor.Tensor, encLens []int, ysIn [][]int, ysInLens []int) (*tensor.Tensor, *tensor.Tensor, error) {
	B := encOut.Dim(0)
	T := encOut.Dim(1)
	D := encOut.Dim(2)
	U := len(ysIn[0])

	emb := d.Embed.Lookup(ysIn)
	hiddenSeq := tensor.New(B, U, d.Hidden)
	attW := tensor.New(B, U, T)

	ctx := make([]float64, D)
	h := make([]float64, d.Hidden)
	hPrev := make([]float64, d.Hidden)
	for b := 0; b < B; b++ {
		// Mean-pooled context over the valid encoder frames.
		for i := range ctx {
			ctx[i] = 0
		}
		L := encLens[b]
		for t := 0; t < L; t++ {
			row := encOut.Row(b, t)
			for i, v := range row {
				ctx[i] += v
			}
		}
		invL := 1.0 / float64(L)
		for i := range ctx {
			ctx[i] *= invL
		}

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
				wc := d.Wc.RawRowView(i)
				for j, cv := range ctx {
					sum += wc[j] * cv
				}
				h[i] = math.Tanh(sum)
			}
			copy(hiddenSeq.Row(b, u), h)
			copy(hPrev, h)

			w := attW.Row(b, u)
			for t := 0; t < L; t++ {
				w[t] = invL
			}
		}
	}
	return d.Out.Forward(hiddenSeq), attW, nil
}
