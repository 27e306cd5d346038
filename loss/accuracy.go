package loss

import "github.com/ieee0824/rnnt-go/internal/tensor"

// Accuracy computes masked top-1 accuracy of logits (B, U, V) against target
// label sequences, ignoring positions whose target equals ignoreID. Returns a
// value in [0, 1]; 0 when no position is scored.
func Accuracy(logits *tensor.Tensor, target [][]int, ignoreID int) float64 {
	B := logits.Dim(0)
	U := logits.Dim(1)

	correct, counted := 0, 0
	for b := 0; b < B; b++ {
		for u := 0; u < U && u < len(target[b]); u++ {
			tgt := target[b][u]
			if tgt == ignoreID {
				continue
			}
			counted++
			row := logits.Row(b, u)
			best := 0
			for j := 1; j < len(row); j++ {
				if row[j] > row[best] {
					best = j
				}
			}
			if best == tgt {
				correct++
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(correct) / float64(counted)
}
