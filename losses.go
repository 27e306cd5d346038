package rnnt

import (
	"fmt"
	"math/rand"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
	"github.com/ieee0824/rnnt-go/loss"
	"github.com/ieee0824/rnnt-go/nnet"
)

// transducerLoss builds the joint lattice, normalizes it, and evaluates the
// transducer loss with the configured FastEmit weight.
func (m *Model) transducerLoss(encOut, decOut *tensor.Tensor, io *TaskIO) (float64, error) {
	if m.TransducerLoss == nil {
		m.log.Error("no transducer loss primitive installed")
		return 0, ErrNoTransducerLoss
	}
	lattice, err := m.Joint.Joint(encOut, decOut)
	if err != nil {
		return 0, fmt.Errorf("joint: %w", err)
	}
	logSoftmaxLastAxis(lattice)
	v, err := m.TransducerLoss(lattice, io.Labels, io.TLen, io.ULen, m.Blank, m.LossCfg.FastEmitLambda)
	if err != nil {
		return 0, fmt.Errorf("transducer loss: %w", err)
	}
	return v, nil
}

// ctcLoss projects the encoder output to vocabulary log-probabilities and
// evaluates the CTC auxiliary loss. Dropout is active in training mode only.
func (m *Model) ctcLoss(encOut *tensor.Tensor, io *TaskIO, rng *rand.Rand) (float64, error) {
	in := encOut
	if m.training {
		in = nnet.Dropout(encOut, m.LossCfg.DropoutCTC, rng)
	}
	logits := m.CTCHead.Forward(in)
	logSoftmaxLastAxis(logits)
	v, err := loss.CTC(logits, io.Labels, io.TLen, io.ULen, m.Blank)
	if err != nil {
		return 0, fmt.Errorf("ctc loss: %w", err)
	}
	return v, nil
}

// lmLoss evaluates the label-smoothed LM auxiliary loss on the prediction
// network output. The last decoder position predicts nothing and is dropped.
func (m *Model) lmLoss(decOut *tensor.Tensor, io *TaskIO) float64 {
	U := decOut.Dim(1) - 1
	if U == 0 {
		return 0
	}
	logits := m.LMHead.Forward(decOut.NarrowTime(U))
	return loss.LMLoss(logits, io.Target, m.Blank, m.LossCfg.LabelSmoothing)
}

// attLoss runs the attention decoder over sos/eos-wrapped labels and returns
// the label-smoothed cross-entropy plus the masked token accuracy. A
// configured language token is prepended to every label sequence first, so
// it shows up in the teacher-forcing target as well.
func (m *Model) attLoss(encOut *tensor.Tensor, encLens []int, io *TaskIO) (float64, float64, error) {
	labels, uLen := m.attLabels(io)
	ysIn, ysOut, ysInLens := loss.AddSOSEOS(labels, uLen, m.SOS, m.EOS, m.IgnoreID)
	logits, _, err := m.AttDecoder.Forward(encOut, encLens, ysIn, ysInLens)
	if err != nil {
		return 0, 0, fmt.Errorf("attention decoder: %w", err)
	}
	crit := &loss.LabelSmoothingLoss{
		Size:       m.VocabSize(),
		PaddingIdx: m.IgnoreID,
		Smoothing:  m.LossCfg.LabelSmoothing,
	}
	return crit.Forward(logits, ysOut), loss.Accuracy(logits, ysOut, m.IgnoreID), nil
}

// attLabels returns the label sequences the attention decoder trains on.
// A configured language token extends every sequence by one.
func (m *Model) attLabels(io *TaskIO) ([][]int, []int) {
	if m.LangTokenID < 0 {
		return io.Labels, io.ULen
	}
	labels := make([][]int, len(io.Labels))
	uLen := make([]int, len(io.ULen))
	for b := range io.Labels {
		labels[b] = append([]int{m.LangTokenID}, io.Labels[b]...)
		uLen[b] = io.ULen[b] + 1
	}
	return labels, uLen
}

// logSoftmaxLastAxis normalizes every last-axis row of t in place.
func logSoftmaxLastAxis(t *tensor.Tensor) {
	V := t.Dim(t.Rank() - 1)
	for i := 0; i+V <= len(t.Data); i += V {
		mathutil.LogSoftmax(t.Data[i : i+V])
	}
}
