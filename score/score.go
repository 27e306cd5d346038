// Package score provides greedy transducer decoding and character/word error
// rate computation for validation reporting.
package score

import (
	"fmt"
	"strings"

	"github.com/ieee0824/rnnt-go/internal/tensor"
	"github.com/ieee0824/rnnt-go/nnet"
)

// ErrorCalculator decodes encoder output greedily and scores hypotheses
// against references.
type ErrorCalculator struct {
	Decoder *nnet.RNNDecoder
	Joint   *nnet.JointNetwork

	TokenList   []string
	SpaceSymbol string
	Blank       int
	// MaxSymbols caps symbol emissions per encoder frame so a degenerate
	// joint cannot loop forever.
	MaxSymbols int
}

// NewErrorCalculator wires the decoder and joint network used by the model.
func NewErrorCalculator(dec *nnet.RNNDecoder, joint *nnet.JointNetwork, tokens []string, spaceSymbol string) *ErrorCalculator {
	return &ErrorCalculator{
		Decoder:     dec,
		Joint:       joint,
		TokenList:   tokens,
		SpaceSymbol: spaceSymbol,
		Blank:       0,
		MaxSymbols:  3,
	}
}

// Decode runs greedy transducer decoding over each example's valid frames.
func (e *ErrorCalculator) Decode(encOut *tensor.Tensor, encLens []int) ([][]int, error) {
	if encOut.Rank() != 3 {
		return nil, fmt.Errorf("score: encoder output must be rank 3 (B,T,D), got shape %v", encOut.Shape)
	}
	B, D := encOut.Dim(0), encOut.Dim(2)
	if len(encLens) != B {
		return nil, fmt.Errorf("score: batch mismatch: encoder %d, lengths %d", B, len(encLens))
	}

	hyps := make([][]int, B)
	for b := 0; b < B; b++ {
		var hyp []int
		for t := 0; t < encLens[b]; t++ {
			encFrame := tensor.FromData(append([]float64(nil), encOut.Row(b, t)...), 1, 1, D)
			for emitted := 0; emitted < e.MaxSymbols; emitted++ {
				decIn := [][]int{append([]int{e.Blank}, hyp...)}
				decOut := e.Decoder.Forward(decIn, []int{len(hyp) + 1})
				last := decOut.Row(0, len(hyp))
				decFrame := tensor.FromData(append([]float64(nil), last...), 1, 1, len(last))

				logits, err := e.Joint.Joint(encFrame, decFrame)
				if err != nil {
					return nil, fmt.Errorf("score: joint: %w", err)
				}
				tok := argmax(logits.Row(0, 0, 0))
				if tok == e.Blank {
					break
				}
				hyp = append(hyp, tok)
			}
		}
		hyps[b] = hyp
	}
	return hyps, nil
}

// CalculateErrors returns (cer, wer) for hypotheses against references.
// Blank and negative ids in the references are ignored.
func (e *ErrorCalculator) CalculateErrors(hyps, refs [][]int) (float64, float64, error) {
	if len(hyps) != len(refs) {
		return 0, 0, fmt.Errorf("score: batch mismatch: hyps %d, refs %d", len(hyps), len(refs))
	}
	var charErrs, charTotal, wordErrs, wordTotal int
	for b := range hyps {
		hypTokens, err := e.tokens(hyps[b])
		if err != nil {
			return 0, 0, err
		}
		refTokens, err := e.tokens(refs[b])
		if err != nil {
			return 0, 0, err
		}

		hypChars := splitChars(strings.Join(hypTokens, ""), e.SpaceSymbol)
		refChars := splitChars(strings.Join(refTokens, ""), e.SpaceSymbol)
		charErrs += EditDistance(hypChars, refChars)
		charTotal += len(refChars)

		hypWords := splitWords(hypTokens, e.SpaceSymbol)
		refWords := splitWords(refTokens, e.SpaceSymbol)
		wordErrs += EditDistance(hypWords, refWords)
		wordTotal += len(refWords)
	}
	cer, wer := 0.0, 0.0
	if charTotal > 0 {
		cer = float64(charErrs) / float64(charTotal)
	}
	if wordTotal > 0 {
		wer = float64(wordErrs) / float64(wordTotal)
	}
	return cer, wer, nil
}

func (e *ErrorCalculator) tokens(ids []int) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == e.Blank || id < 0 {
			continue
		}
		if id >= len(e.TokenList) {
			return nil, fmt.Errorf("score: token id %d outside token list of size %d", id, len(e.TokenList))
		}
		out = append(out, e.TokenList[id])
	}
	return out, nil
}

// splitChars removes the space symbol and splits the remainder into runes.
func splitChars(s, space string) []string {
	if space != "" {
		s = strings.ReplaceAll(s, space, "")
	}
	chars := make([]string, 0, len(s))
	for _, r := range s {
		chars = append(chars, string(r))
	}
	return chars
}

// splitWords joins tokens and splits on the space symbol.
func splitWords(tokens []string, space string) []string {
	joined := strings.Join(tokens, "")
	if space == "" {
		if joined == "" {
			return nil
		}
		return []string{joined}
	}
	var words []string
	for _, w := range strings.Split(joined, space) {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
