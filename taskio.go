package rnnt

import (
	"fmt"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
)

// TaskIO holds the aligned sequences a transducer training step consumes.
// Labels are the per-example token sequences with padding stripped.
// DecoderIn is each label sequence prefixed with blank and padded with blank.
// Target is each label sequence padded with blank to the batch maximum.
type TaskIO struct {
	Labels    [][]int
	DecoderIn [][]int
	Target    [][]int
	TLen      []int
	ULen      []int
}

// BuildTaskIO derives decoder input, padded targets, and length vectors from
// padded label sequences and the encoder output lengths. Entries equal to
// ignoreID mark label padding.
func BuildTaskIO(text [][]int, encOutLens []int, blank, ignoreID int) (*TaskIO, error) {
	if len(text) != len(encOutLens) {
		return nil, fmt.Errorf("%w: text %d, encoder lengths %d", ErrBatchMismatch, len(text), len(encOutLens))
	}
	B := len(text)
	io := &TaskIO{
		Labels:    make([][]int, B),
		DecoderIn: make([][]int, B),
		Target:    make([][]int, B),
		TLen:      append([]int(nil), encOutLens...),
		ULen:      make([]int, B),
	}

	for b, ys := range text {
		label := make([]int, 0, len(ys))
		for _, y := range ys {
			if y == ignoreID {
				continue
			}
			if y == blank {
				return nil, fmt.Errorf("task io: example %d contains blank (%d) as a label", b, blank)
			}
			label = append(label, y)
		}
		io.Labels[b] = label
		io.ULen[b] = len(label)
	}
	uMax := mathutil.MaxInt(io.ULen)

	for b := range text {
		in := make([]int, uMax+1)
		tgt := make([]int, uMax)
		in[0] = blank
		copy(in[1:], io.Labels[b])
		copy(tgt, io.Labels[b])
		for u := io.ULen[b]; u < uMax; u++ {
			in[u+1] = blank
			tgt[u] = blank
		}
		io.DecoderIn[b] = in
		io.Target[b] = tgt
	}
	return io, nil
}
