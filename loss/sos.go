package loss

// AddSOSEOS builds teacher-forcing input and output sequences for the
// attention decoder: ysIn prepends sos to each label sequence (right-padded
// with eos), ysOut appends eos (right-padded with ignoreID). ysInLens holds
// the extended lengths yLens[b]+1, which also apply to ysOut.
func AddSOSEOS(ys [][]int, yLens []int, sos, eos, ignoreID int) (ysIn, ysOut [][]int, ysInLens []int) {
	B := len(ys)
	maxLen := 0
	for _, l := range yLens {
		if l > maxLen {
			maxLen = l
		}
	}

	ysIn = make([][]int, B)
	ysOut = make([][]int, B)
	ysInLens = make([]int, B)
	for b := 0; b < B; b++ {
		L := yLens[b]
		in := make([]int, maxLen+1)
		out := make([]int, maxLen+1)
		in[0] = sos
		copy(in[1:1+L], ys[b][:L])
		for i := 1 + L; i < len(in); i++ {
			in[i] = eos
		}
		copy(out[:L], ys[b][:L])
		out[L] = eos
		for i := L + 1; i < len(out); i++ {
			out[i] = ignoreID
		}
		ysIn[b] = in
		ysOut[b] = out
		ysInLens[b] = L + 1
	}
	return ysIn, ysOut, ysInLens
}
