// Package frontend provides the feature-extraction collaborators of the
// training pipeline: a log-Mel filterbank frontend, cepstral mean/variance
// normalization, and SpecAugment-style masking.
package frontend

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// LogMel converts raw waveforms into log-Mel filterbank features.
type LogMel struct {
	SampleRate int
	FrameLen   int // window length in samples
	FrameShift int // hop length in samples
	NumMels    int
	LowFreq    float64
	HighFreq   float64 // 0 means Nyquist

	fftSize int
	fb      [][]float64 // [NumMels][fftSize/2+1]
}

// NewLogMel builds a frontend. Typical 16 kHz settings: frameLen 400 (25 ms),
// frameShift 160 (10 ms), 80 mels.
func NewLogMel(sampleRate, frameLen, frameShift, numMels int) *LogMel {
	f := &LogMel{
		SampleRate: sampleRate,
		FrameLen:   frameLen,
		FrameShift: frameShift,
		NumMels:    numMels,
		LowFreq:    20,
		HighFreq:   float64(sampleRate) / 2,
	}
	f.fftSize = 1
	for f.fftSize < frameLen {
		f.fftSize <<= 1
	}
	f.fb = melFilterbank(numMels, f.fftSize, sampleRate, f.LowFreq, f.HighFreq)
	return f
}

// OutputSize returns the feature dimensionality.
func (f *LogMel) OutputSize() int { return f.NumMels }

// Extract converts padded speech (B, S) with valid lengths into features
// (B, T, NumMels) with per-example frame counts.
func (f *LogMel) Extract(speech *tensor.Tensor, lens []int) (*tensor.Tensor, []int, error) {
	if speech.Rank() != 2 {
		return nil, nil, fmt.Errorf("frontend: speech must be rank 2 (B,S), got shape %v", speech.Shape)
	}
	B := speech.Dim(0)
	if len(lens) != B {
		return nil, nil, fmt.Errorf("frontend: batch mismatch: speech %d, lengths %d", B, len(lens))
	}

	featLens := make([]int, B)
	maxFrames := 0
	for b, l := range lens {
		if l < f.FrameLen {
			return nil, nil, fmt.Errorf("frontend: example %d: %d samples shorter than one frame (%d)", b, l, f.FrameLen)
		}
		featLens[b] = 1 + (l-f.FrameLen)/f.FrameShift
		if featLens[b] > maxFrames {
			maxFrames = featLens[b]
		}
	}

	feats := tensor.New(B, maxFrames, f.NumMels)
	buf := make([]float64, f.fftSize)
	for b := 0; b < B; b++ {
		samples := preEmphasize(speech.Row(b)[:lens[b]], 0.97)
		for t := 0; t < featLens[b]; t++ {
			start := t * f.FrameShift
			copy(buf, samples[start:start+f.FrameLen])
			for i := f.FrameLen; i < f.fftSize; i++ {
				buf[i] = 0
			}
			window.Apply(buf[:f.FrameLen], window.Hamming)

			spec := fft.FFTReal(buf)
			dst := feats.Row(b, t)
			nBins := f.fftSize/2 + 1
			for m := 0; m < f.NumMels; m++ {
				e := 0.0
				filt := f.fb[m]
				for k := 0; k < nBins; k++ {
					if filt[k] == 0 {
						continue
					}
					re, im := real(spec[k]), imag(spec[k])
					e += filt[k] * (re*re + im*im)
				}
				dst[m] = math.Log(e + 1e-10)
			}
		}
	}
	return feats, featLens, nil
}

// preEmphasize applies a first-order high-pass filter y[n] = x[n] - a*x[n-1].
func preEmphasize(samples []float64, alpha float64) []float64 {
	out := make([]float64, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - alpha*samples[i-1]
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds triangular filters equally spaced on the Mel scale.
func melFilterbank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	nBins := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	binIndices := make([]int, numFilters+2)
	step := (highMel - lowMel) / float64(numFilters+1)
	for i := range binIndices {
		freq := melToHz(lowMel + float64(i)*step)
		binIndices[i] = int(math.Floor(freq * float64(fftSize+1) / float64(sampleRate)))
	}

	filters := make([][]float64, numFilters)
	for i := 0; i < numFilters; i++ {
		filters[i] = make([]float64, nBins)
		left, center, right := binIndices[i], binIndices[i+1], binIndices[i+2]
		for j := left; j < center && j < nBins; j++ {
			if center != left {
				filters[i][j] = float64(j-left) / float64(center-left)
			}
		}
		for j := center; j <= right && j < nBins; j++ {
			if right != center {
				filters[i][j] = float64(right-j) / float64(right-center)
			}
		}
	}
	return filters
}
