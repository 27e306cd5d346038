package rnnt

import (
	"fmt"
	"math/rand"

	"github.com/ieee0824/rnnt-go/internal/mathutil"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

// ForwardStep runs one training or validation step over a padded batch:
// feature pipeline, encoder, prediction network, joint lattice, the
// transducer loss, and every activated auxiliary objective. text rows are
// padded with IgnoreID.
func (m *Model) ForwardStep(speech *tensor.Tensor, speechLens []int, text [][]int) (*StepResult, error) {
	B := speech.Dim(0)
	if len(speechLens) != B || len(text) != B {
		return nil, fmt.Errorf("%w: speech %d, lengths %d, text %d", ErrBatchMismatch, B, len(speechLens), len(text))
	}

	feats, featLens, err := m.extractFeats(speech, speechLens, m.training)
	if err != nil {
		return nil, err
	}

	var encOut, encChunk *tensor.Tensor
	var encLens []int
	if m.LossCfg.ChunkRegularization {
		encOut, encChunk, encLens, err = m.Encoder.EncodeChunked(feats, featLens)
	} else {
		encOut, encLens, err = m.Encoder.Encode(feats, featLens)
	}
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	io, err := BuildTaskIO(text, encLens, m.Blank, m.IgnoreID)
	if err != nil {
		return nil, err
	}

	decInLens := make([]int, B)
	for b, u := range io.ULen {
		decInLens[b] = u + 1
	}
	decOut := m.Decoder.Forward(io.DecoderIn, decInLens)

	stats := make(Stats)

	lossTrans, err := m.transducerLoss(encOut, decOut, io)
	if err != nil {
		return nil, err
	}
	stats.Set("loss_transducer", lossTrans)
	if m.LossCfg.ChunkRegularization {
		// The chunked pass is a streaming-consistency regularizer; its
		// loss adds to the offline term rather than replacing it.
		lossChunk, err := m.transducerLoss(encChunk, decOut, io)
		if err != nil {
			return nil, err
		}
		stats.Set("loss_transducer_chunk", lossChunk)
		lossTrans += lossChunk
	}

	total := m.LossCfg.TransducerWeight * lossTrans

	if m.LossCfg.CTCWeight > 0 {
		// Per-step rng keeps ForwardStep safe for concurrent batches.
		rng := rand.New(rand.NewSource(m.seed + m.steps.Add(1)))
		lossCTC, err := m.ctcLoss(encOut, io, rng)
		if err != nil {
			return nil, err
		}
		stats.Set("aux_ctc_loss", lossCTC)
		if m.LossCfg.ChunkRegularization {
			lossCTCChunk, err := m.ctcLoss(encChunk, io, rng)
			if err != nil {
				return nil, err
			}
			stats.Set("aux_ctc_loss_chunk", lossCTCChunk)
			lossCTC += lossCTCChunk
		}
		total += m.LossCfg.CTCWeight * lossCTC
	}
	if m.LossCfg.LMWeight > 0 {
		lossLM := m.lmLoss(decOut, io)
		stats.Set("aux_lm_loss", lossLM)
		total += m.LossCfg.LMWeight * lossLM
	}
	if m.LossCfg.AttWeight > 0 {
		lossAtt, accAtt, err := m.attLoss(encOut, encLens, io)
		if err != nil {
			return nil, err
		}
		stats.Set("aux_att_loss", lossAtt)
		stats.Set("acc_att", accAtt)
		if m.LossCfg.ChunkRegularization {
			lossAttChunk, _, err := m.attLoss(encChunk, encLens, io)
			if err != nil {
				return nil, err
			}
			stats.Set("aux_att_loss_chunk", lossAttChunk)
			lossAtt += lossAttChunk
		}
		total += m.LossCfg.AttWeight * lossAtt
	}

	if !m.training && (m.ReportCER || m.ReportWER) {
		if err := m.reportErrorRates(encOut, encLens, io, stats, ""); err != nil {
			return nil, err
		}
		if m.LossCfg.ChunkRegularization {
			if err := m.reportErrorRates(encChunk, encLens, io, stats, "_chunk"); err != nil {
				return nil, err
			}
		}
	}

	stats.Set("loss", total)
	return &StepResult{Loss: total, Stats: stats, BatchSize: B}, nil
}

// reportErrorRates greedy-decodes the given encoding and records the enabled
// error rates under cer_transducer/wer_transducer plus the given suffix.
func (m *Model) reportErrorRates(encOut *tensor.Tensor, encLens []int, io *TaskIO, stats Stats, suffix string) error {
	hyps, err := m.ErrorCalc.Decode(encOut, encLens)
	if err != nil {
		return err
	}
	cer, wer, err := m.ErrorCalc.CalculateErrors(hyps, io.Labels)
	if err != nil {
		return err
	}
	if m.ReportCER {
		stats.Set("cer_transducer"+suffix, cer)
	}
	if m.ReportWER {
		stats.Set("wer_transducer"+suffix, wer)
	}
	return nil
}

// Encode runs the feature pipeline and the offline encoder, returning the
// encoder output and its valid lengths.
func (m *Model) Encode(speech *tensor.Tensor, speechLens []int) (*tensor.Tensor, []int, error) {
	feats, featLens, err := m.extractFeats(speech, speechLens, m.training)
	if err != nil {
		return nil, nil, err
	}
	encOut, encLens, err := m.Encoder.Encode(feats, featLens)
	if err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	return encOut, encLens, nil
}

// CollectFeats returns the features used for statistics collection. Without
// WithExtractFeatsInCollectStats the raw input is returned unchanged, which
// matches computing statistics over the waveform domain.
func (m *Model) CollectFeats(speech *tensor.Tensor, speechLens []int) (*tensor.Tensor, []int, error) {
	if m.ExtractFeatsInCollectStats {
		if m.Frontend == nil {
			return nil, nil, fmt.Errorf("rnnt: collect feats: no frontend attached")
		}
		feats, featLens, err := m.Frontend.Extract(speech, speechLens)
		if err != nil {
			return nil, nil, fmt.Errorf("collect feats: %w", err)
		}
		return feats, featLens, nil
	}
	m.log.Warn("collecting stats over raw input, not extracted features",
		"reason", "extract_feats_in_collect_stats is disabled")
	return speech, append([]int(nil), speechLens...), nil
}

// extractFeats runs frontend, augmentation, and normalization. Rank-2 input
// is raw speech and requires a frontend; rank-3 input is treated as
// precomputed features.
func (m *Model) extractFeats(speech *tensor.Tensor, lens []int, training bool) (*tensor.Tensor, []int, error) {
	if speech.Rank() >= 2 && len(lens) > 0 {
		// Trailing padding beyond the longest valid sequence carries no
		// information, drop it before the pipeline sees it.
		speech = speech.NarrowTime(mathutil.MaxInt(lens))
	}
	var feats *tensor.Tensor
	var featLens []int
	var err error
	switch speech.Rank() {
	case 2:
		if m.Frontend == nil {
			return nil, nil, fmt.Errorf("rnnt: raw speech input but no frontend attached")
		}
		feats, featLens, err = m.Frontend.Extract(speech, lens)
		if err != nil {
			return nil, nil, fmt.Errorf("extract features: %w", err)
		}
	case 3:
		feats, featLens = speech, append([]int(nil), lens...)
	default:
		return nil, nil, fmt.Errorf("rnnt: speech must be rank 2 (B,S) or rank 3 (B,T,D), got shape %v", speech.Shape)
	}

	if training && m.Augmenter != nil {
		feats, featLens, err = m.Augmenter.Augment(feats, featLens)
		if err != nil {
			return nil, nil, fmt.Errorf("augment: %w", err)
		}
	}
	if m.Normalizer != nil {
		feats, featLens, err = m.Normalizer.Normalize(feats, featLens)
		if err != nil {
			return nil, nil, fmt.Errorf("normalize: %w", err)
		}
	}
	return feats, featLens, nil
}
