package audio

import (
	"fmt"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// LoadBatch reads WAV utterances and pads them into a (B, S) speech tensor
// with per-example sample counts. Every file must carry the wanted sample
// rate.
func LoadBatch(paths []string, sampleRate int) (*tensor.Tensor, []int, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("audio: empty batch")
	}
	waves := make([][]float64, len(paths))
	lens := make([]int, len(paths))
	maxLen := 0
	for i, path := range paths {
		samples, info, err := DecodeFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("audio: %s: %w", path, err)
		}
		if info.SampleRate != sampleRate {
			return nil, nil, fmt.Errorf("audio: %s: sample rate %d, want %d", path, info.SampleRate, sampleRate)
		}
		waves[i] = samples
		lens[i] = len(samples)
		if lens[i] > maxLen {
			maxLen = lens[i]
		}
	}
	speech := tensor.New(len(paths), maxLen)
	for i, w := range waves {
		copy(speech.Row(i), w)
	}
	return speech, lens, nil
}
