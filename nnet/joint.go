package nnet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// JointNetwork combines encoder and decoder representations over the
// alignment lattice: joint(t, u) = Out(tanh(EncProj(enc_t) + DecProj(dec_u))),
// the additive broadcast join of the transducer architecture.
type JointNetwork struct {
	EncProj *Linear // (D_enc, JointDim)
	DecProj *Linear // (D_dec, JointDim)
	Out     *Linear // (JointDim, V)
}

// NewJointNetwork creates a joint network projecting to vocabSize logits.
func NewJointNetwork(encDim, decDim, jointDim, vocabSize int, rng *rand.Rand) *JointNetwork {
	return &JointNetwork{
		EncProj: NewLinear(encDim, jointDim, rng),
		DecProj: NewLinear(decDim, jointDim, rng),
		Out:     NewLinear(jointDim, vocabSize, rng),
	}
}

// VocabSize returns the size of the output logit axis.
func (j *JointNetwork) VocabSize() int { return j.Out.Out }

// Joint broadcasts encOut (B, T, D_enc) against decOut (B, U, D_dec) and
// returns the lattice logits (B, T, U, V).
func (j *JointNetwork) Joint(encOut, decOut *tensor.Tensor) (*tensor.Tensor, error) {
	if encOut.Rank() != 3 || decOut.Rank() != 3 {
		return nil, fmt.Errorf("joint: want rank-3 inputs, got shapes %v and %v", encOut.Shape, decOut.Shape)
	}
	if encOut.Dim(0) != decOut.Dim(0) {
		return nil, fmt.Errorf("joint: batch mismatch: encoder %d, decoder %d", encOut.Dim(0), decOut.Dim(0))
	}
	B, T, U := encOut.Dim(0), encOut.Dim(1), decOut.Dim(1)
	J := j.EncProj.Out

	encProj := j.EncProj.Forward(encOut) // (B, T, J)
	decProj := j.DecProj.Forward(decOut) // (B, U, J)

	hidden := tensor.New(B, T, U, J)
	for b := 0; b < B; b++ {
		for t := 0; t < T; t++ {
			eRow := encProj.Row(b, t)
			for u := 0; u < U; u++ {
				dRow := decProj.Row(b, u)
				h := hidden.Row(b, t, u)
				for k := 0; k < J; k++ {
					h[k] = math.Tanh(eRow[k] + dRow[k])
				}
			}
		}
	}
	return j.Out.Forward(hidden), nil
}
