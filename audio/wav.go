// Package audio reads PCM WAV utterances and assembles padded waveform
// batches for the training pipeline.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Info holds the parsed RIFF/WAV header fields.
type Info struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	Samples       int
}

// Decode reads a 16-bit PCM mono WAV stream and returns normalized float64
// samples in [-1.0, 1.0].
func Decode(r io.ReadSeeker) ([]float64, Info, error) {
	var info Info

	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, info, fmt.Errorf("read RIFF ID: %w", err)
	}
	if string(magic[:]) != "RIFF" {
		return nil, info, errors.New("not a RIFF file")
	}
	var fileSize uint32
	if err := binary.Read(r, binary.LittleEndian, &fileSize); err != nil {
		return nil, info, fmt.Errorf("read file size: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, info, fmt.Errorf("read WAVE ID: %w", err)
	}
	if string(magic[:]) != "WAVE" {
		return nil, info, errors.New("not a WAVE file")
	}

	var fmtFound, dataFound bool
	var samples []float64
	for !(fmtFound && dataFound) {
		var chunkID [4]byte
		if err := binary.Read(r, binary.LittleEndian, &chunkID); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, info, fmt.Errorf("read chunk ID: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, info, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if err := readFmtChunk(r, chunkSize, &info); err != nil {
				return nil, info, err
			}
			fmtFound = true
		case "data":
			if !fmtFound {
				return nil, info, errors.New("data chunk before fmt chunk")
			}
			var err error
			samples, err = readDataChunk(r, chunkSize, &info)
			if err != nil {
				return nil, info, err
			}
			dataFound = true
		default:
			// Skip unknown chunks; align to even boundary.
			skip := int64(chunkSize)
			if chunkSize%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, info, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}

	if !fmtFound {
		return nil, info, errors.New("missing fmt chunk")
	}
	if !dataFound {
		return nil, info, errors.New("missing data chunk")
	}
	return samples, info, nil
}

// DecodeFile is a convenience wrapper that opens a file path.
func DecodeFile(path string) ([]float64, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	defer f.Close()
	return Decode(f)
}

func readFmtChunk(r io.ReadSeeker, size uint32, info *Info) error {
	var audioFormat, channels uint16
	var sampleRate uint32
	if err := binary.Read(r, binary.LittleEndian, &audioFormat); err != nil {
		return fmt.Errorf("read audio format: %w", err)
	}
	if audioFormat != 1 {
		return fmt.Errorf("unsupported audio format %d (only PCM=1 supported)", audioFormat)
	}
	if err := binary.Read(r, binary.LittleEndian, &channels); err != nil {
		return fmt.Errorf("read num channels: %w", err)
	}
	if channels != 1 {
		return fmt.Errorf("unsupported channel count %d (only mono supported)", channels)
	}
	if err := binary.Read(r, binary.LittleEndian, &sampleRate); err != nil {
		return fmt.Errorf("read sample rate: %w", err)
	}

	// Skip byteRate (4 bytes) and blockAlign (2 bytes).
	if _, err := r.Seek(6, io.SeekCurrent); err != nil {
		return fmt.Errorf("skip byte rate / block align: %w", err)
	}
	var bits uint16
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return fmt.Errorf("read bits per sample: %w", err)
	}
	if bits != 16 {
		return fmt.Errorf("unsupported bits per sample %d (only 16 supported)", bits)
	}

	info.Channels = int(channels)
	info.SampleRate = int(sampleRate)
	info.BitsPerSample = int(bits)

	// Skip any extra fmt bytes.
	consumed := uint32(16)
	if size > consumed {
		if _, err := r.Seek(int64(size-consumed), io.SeekCurrent); err != nil {
			return fmt.Errorf("skip extra fmt bytes: %w", err)
		}
	}
	return nil
}

func readDataChunk(r io.Reader, size uint32, info *Info) ([]float64, error) {
	bytesPerSample := info.BitsPerSample / 8
	numSamples := int(size) / bytesPerSample
	info.Samples = numSamples

	raw := make([]int16, numSamples)
	if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("read PCM data: %w", err)
	}
	samples := make([]float64, numSamples)
	for i, s := range raw {
		samples[i] = float64(s) / 32768.0
	}
	return samples, nil
}
