package nnet

import (
	"encoding/gob"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Checkpoint bundles the learned collaborator parameters for persistence.
// Optional members (AttDecoder, the auxiliary heads) may be nil.
type Checkpoint struct {
	Encoder    *FFEncoder
	Decoder    *RNNDecoder
	Joint      *JointNetwork
	AttDecoder *AttDecoder
	CTCHead    *Linear
	LMHead     *Linear
}

// serializable mirror types for gob encoding (dense matrices carry
// unexported fields, so raw buffers are stored instead)

type serializedDense struct {
	Rows, Cols int
	Data       []float64
}

type serializedLinear struct {
	W       serializedDense
	B       []float64
	In, Out int
}

type serializedEmbedding struct {
	Table serializedDense
	V, D  int
}

type serializedEncoder struct {
	Proj, Out                             serializedLinear
	FeatDim, Context, Subsample, ChunkSize int
}

type serializedDecoder struct {
	Embed  serializedEmbedding
	Wx, Wh serializedDense
	Bias   []float64
	Hidden int
}

type serializedJoint struct {
	EncProj, DecProj, Out serializedLinear
}

type serializedAttDecoder struct {
	Embed      serializedEmbedding
	Wx, Wh, Wc serializedDense
	Bias       []float64
	Out        serializedLinear
	Hidden     int
}

type serializedCheckpoint struct {
	Encoder    *serializedEncoder
	Decoder    *serializedDecoder
	Joint      *serializedJoint
	AttDecoder *serializedAttDecoder
	CTCHead    *serializedLinear
	LMHead     *serializedLinear
}

func packDense(m *mat.Dense) serializedDense {
	r, c := m.Dims()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		copy(data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return serializedDense{Rows: r, Cols: c, Data: data}
}

func unpackDense(s serializedDense) *mat.Dense {
	return mat.NewDense(s.Rows, s.Cols, s.Data)
}

func packLinear(l *Linear) serializedLinear {
	return serializedLinear{W: packDense(l.W), B: l.B, In: l.In, Out: l.Out}
}

func unpackLinear(s serializedLinear) *Linear {
	return &Linear{W: unpackDense(s.W), B: s.B, In: s.In, Out: s.Out}
}

func packEmbedding(e *Embedding) serializedEmbedding {
	return serializedEmbedding{Table: packDense(e.Table), V: e.V, D: e.D}
}

func unpackEmbedding(s serializedEmbedding) *Embedding {
	return &Embedding{Table: unpackDense(s.Table), V: s.V, D: s.D}
}

// Save serializes the checkpoint with gob.
func (c *Checkpoint) Save(w io.Writer) error {
	sc := serializedCheckpoint{}
	if c.Encoder != nil {
		sc.Encoder = &serializedEncoder{
			Proj:      packLinear(c.Encoder.Proj),
			Out:       packLinear(c.Encoder.Out),
			FeatDim:   c.Encoder.FeatDim,
			Context:   c.Encoder.Context,
			Subsample: c.Encoder.Subsample,
			ChunkSize: c.Encoder.ChunkSize,
		}
	}
	if c.Decoder != nil {
		sc.Decoder = &serializedDecoder{
			Embed:  packEmbedding(c.Decoder.Embed),
			Wx:     packDense(c.Decoder.Wx),
			Wh:     packDense(c.Decoder.Wh),
			Bias:   c.Decoder.Bias,
			Hidden: c.Decoder.Hidden,
		}
	}
	if c.Joint != nil {
		sc.Joint = &serializedJoint{
			EncProj: packLinear(c.Joint.EncProj),
			DecProj: packLinear(c.Joint.DecProj),
			Out:     packLinear(c.Joint.Out),
		}
	}
	if c.AttDecoder != nil {
		sc.AttDecoder = &serializedAttDecoder{
			Embed:  packEmbedding(c.AttDecoder.Embed),
			Wx:     packDense(c.AttDecoder.Wx),
			Wh:     packDense(c.AttDecoder.Wh),
			Wc:     packDense(c.AttDecoder.Wc),
			Bias:   c.AttDecoder.Bias,
			Out:    packLinear(c.AttDecoder.Out),
			Hidden: c.AttDecoder.Hidden,
		}
	}
	if c.CTCHead != nil {
		sl := packLinear(c.CTCHead)
		sc.CTCHead = &sl
	}
	if c.LMHead != nil {
		sl := packLinear(c.LMHead)
		sc.LMHead = &sl
	}
	return gob.NewEncoder(w).Encode(sc)
}

// LoadCheckpoint deserializes a checkpoint written by Save.
func LoadCheckpoint(r io.Reader) (*Checkpoint, error) {
	var sc serializedCheckpoint
	if err := gob.NewDecoder(r).Decode(&sc); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	c := &Checkpoint{}
	if sc.Encoder != nil {
		c.Encoder = &FFEncoder{
			Proj:      unpackLinear(sc.Encoder.Proj),
			Out:       unpackLinear(sc.Encoder.Out),
			FeatDim:   sc.Encoder.FeatDim,
			Context:   sc.Encoder.Context,
			Subsample: sc.Encoder.Subsample,
			ChunkSize: sc.Encoder.ChunkSize,
		}
	}
	if sc.Decoder != nil {
		c.Decoder = &RNNDecoder{
			Embed:  unpackEmbedding(sc.Decoder.Embed),
			Wx:     unpackDense(sc.Decoder.Wx),
			Wh:     unpackDense(sc.Decoder.Wh),
			Bias:   sc.Decoder.Bias,
			Hidden: sc.Decoder.Hidden,
		}
	}
	if sc.Joint != nil {
		c.Joint = &JointNetwork{
			EncProj: unpackLinear(sc.Joint.EncProj),
			DecProj: unpackLinear(sc.Joint.DecProj),
			Out:     unpackLinear(sc.Joint.Out),
		}
	}
	if sc.AttDecoder != nil {
		c.AttDecoder = &AttDecoder{
			Embed:  unpackEmbedding(sc.AttDecoder.Embed),
			Wx:     unpackDense(sc.AttDecoder.Wx),
			Wh:     unpackDense(sc.AttDecoder.Wh),
			Wc:     unpackDense(sc.AttDecoder.Wc),
			Bias:   sc.AttDecoder.Bias,
			Out:    unpackLinear(sc.AttDecoder.Out),
			Hidden: sc.AttDecoder.Hidden,
		}
	}
	if sc.CTCHead != nil {
		c.CTCHead = unpackLinear(*sc.CTCHead)
	}
	if sc.LMHead != nil {
		c.LMHead = unpackLinear(*sc.LMHead)
	}
	return c, nil
}
