package rnnt

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ieee0824/rnnt-go/config"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.TokenList = []string{"<blank>", "a", "b", "c", "<sos/eos>"}
	cfg.Model.FeatDim = 6
	cfg.Model.EncHidden = 8
	cfg.Model.EncOut = 8
	cfg.Model.Context = 1
	cfg.Model.Subsample = 2
	cfg.Model.ChunkSize = 2
	cfg.Model.EmbedDim = 4
	cfg.Model.DecHidden = 8
	cfg.Model.JointDim = 8
	cfg.Seed = 42
	return cfg
}

// testBatch returns precomputed features (B=2, T=8, D=6), lengths, and padded
// labels.
func testBatch() (*tensor.Tensor, []int, [][]int) {
	feats := tensor.New(2, 8, 6)
	rng := rand.New(rand.NewSource(5))
	for i := range feats.Data {
		feats.Data[i] = rng.NormFloat64()
	}
	lens := []int{8, 6}
	text := [][]int{{1, 2, 3, -1}, {1, 2, -1, -1}}
	return feats, lens, text
}

func TestBuildTaskIO(t *testing.T) {
	io, err := BuildTaskIO([][]int{{1, 2, 3, -1}, {1, 2, -1, -1}}, []int{4, 3}, 0, -1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if diff := cmp.Diff([]int{3, 2}, io.ULen); diff != "" {
		t.Fatalf("ULen (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 3}, io.TLen); diff != "" {
		t.Fatalf("TLen (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{0, 1, 2, 3}, {0, 1, 2, 0}}, io.DecoderIn); diff != "" {
		t.Fatalf("DecoderIn (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1, 2, 3}, {1, 2, 0}}, io.Target); diff != "" {
		t.Fatalf("Target (-want +got):\n%s", diff)
	}
}

func TestBuildTaskIORejectsBlankLabel(t *testing.T) {
	if _, err := BuildTaskIO([][]int{{1, 0, 2}}, []int{4}, 0, -1); err == nil {
		t.Fatal("expected error for blank used as label")
	}
}

func TestBuildTaskIOBatchMismatch(t *testing.T) {
	_, err := BuildTaskIO([][]int{{1}}, []int{4, 3}, 0, -1)
	if !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("err = %v, want ErrBatchMismatch", err)
	}
}

func TestNewRejectsZeroTransducerWeight(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.TransducerWeight = 0
	if _, err := New(cfg); !errors.Is(err, ErrNoTransducerLoss) {
		t.Fatalf("err = %v, want ErrNoTransducerLoss", err)
	}
}

func TestForwardStepNilLossPrimitive(t *testing.T) {
	m, err := New(testConfig(), WithTransducerLoss(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()
	_, err = m.ForwardStep(feats, lens, text)
	if !errors.Is(err, ErrNoTransducerLoss) {
		t.Fatalf("err = %v, want ErrNoTransducerLoss", err)
	}
}

func TestNewResolvesSOSEOS(t *testing.T) {
	cfg := testConfig()
	cfg.Model.TokenList = []string{"<blank>", "<s>", "a", "b", "</s>"}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.SOS != 1 || m.EOS != 4 {
		t.Fatalf("sos/eos = %d/%d, want 1/4", m.SOS, m.EOS)
	}

	cfg = testConfig()
	cfg.Model.TokenList = []string{"<blank>", "a", "b", "<sos/eos>"}
	cfg.Model.SymSOS = "<sos/eos>"
	cfg.Model.SymEOS = "<sos/eos>"
	m, err = New(cfg)
	if err != nil {
		t.Fatalf("new with shared symbol: %v", err)
	}
	if m.SOS != 3 || m.EOS != 3 {
		t.Fatalf("sos/eos = %d/%d, want 3/3", m.SOS, m.EOS)
	}

	cfg = testConfig()
	cfg.Model.TokenList = []string{"<blank>", "a", "b"}
	m, err = New(cfg)
	if err != nil {
		t.Fatalf("new without sos/eos tokens: %v", err)
	}
	if m.SOS != 2 || m.EOS != 2 {
		t.Fatalf("fallback sos/eos = %d/%d, want vocab-1 = 2", m.SOS, m.EOS)
	}
}

func TestNewRejectsUnknownLangToken(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.AttWeight = 0.3
	cfg.Model.LangToken = "<en>"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for lang token missing from token list")
	}
}

func TestNewBuildsHeadsByActivation(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.CTCHead != nil || m.LMHead != nil || m.AttDecoder != nil {
		t.Fatal("inactive auxiliary heads must not be constructed")
	}

	cfg := testConfig()
	cfg.Loss.CTCWeight = 0.5
	cfg.Loss.LMWeight = 0.2
	cfg.Loss.AttWeight = 0.3
	m, err = New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.CTCHead == nil || m.LMHead == nil || m.AttDecoder == nil {
		t.Fatal("active auxiliary heads must be constructed eagerly")
	}
}

func TestForwardStepTransducerOnly(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.BatchSize != 2 {
		t.Fatalf("batch size = %d, want 2", res.BatchSize)
	}
	trans := res.Stats["loss_transducer"]
	if !trans.Present {
		t.Fatal("loss_transducer missing")
	}
	if trans.Value <= 0 || math.IsInf(trans.Value, 0) || math.IsNaN(trans.Value) {
		t.Fatalf("loss_transducer = %g, want finite positive", trans.Value)
	}
	// With all aux weights zero the total is exactly the transducer loss.
	if res.Loss != trans.Value {
		t.Fatalf("loss = %g, want %g", res.Loss, trans.Value)
	}
	for _, name := range []string{"aux_ctc_loss", "aux_lm_loss", "aux_att_loss", "cer_transducer", "wer_transducer"} {
		if res.Stats[name].Present {
			t.Fatalf("%s must be absent", name)
		}
	}
}

func TestForwardStepDeterministic(t *testing.T) {
	feats, lens, text := testBatch()
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ra, err := a.ForwardStep(feats.Clone(), lens, text)
	if err != nil {
		t.Fatalf("forward a: %v", err)
	}
	rb, err := b.ForwardStep(feats.Clone(), lens, text)
	if err != nil {
		t.Fatalf("forward b: %v", err)
	}
	if ra.Loss != rb.Loss {
		t.Fatalf("same seed gave different losses: %g vs %g", ra.Loss, rb.Loss)
	}
}

func TestForwardStepCTCWeighting(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.CTCWeight = 0.5
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	ctc := res.Stats["aux_ctc_loss"]
	if !ctc.Present {
		t.Fatal("aux_ctc_loss missing")
	}
	want := res.Stats["loss_transducer"].Value + 0.5*ctc.Value
	if math.Abs(res.Loss-want) > 1e-12 {
		t.Fatalf("loss = %g, want transducer + 0.5*ctc = %g", res.Loss, want)
	}
}

func TestForwardStepAllAuxLosses(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.CTCWeight = 0.5
	cfg.Loss.LMWeight = 0.2
	cfg.Loss.AttWeight = 0.3
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := res.Stats["loss_transducer"].Value
	for name, w := range map[string]float64{
		"aux_ctc_loss": 0.5, "aux_lm_loss": 0.2, "aux_att_loss": 0.3,
	} {
		sc := res.Stats[name]
		if !sc.Present {
			t.Fatalf("%s missing", name)
		}
		if math.IsNaN(sc.Value) || math.IsInf(sc.Value, 0) {
			t.Fatalf("%s = %g, want finite", name, sc.Value)
		}
		want += w * sc.Value
	}
	if math.Abs(res.Loss-want) > 1e-12 {
		t.Fatalf("loss = %g, want weighted sum %g", res.Loss, want)
	}
	acc := res.Stats["acc_att"]
	if !acc.Present || acc.Value < 0 || acc.Value > 1 {
		t.Fatalf("acc_att = %+v, want present in [0,1]", acc)
	}
}

func TestForwardStepChunkRegularization(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.ChunkRegularization = true
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	chunk := res.Stats["loss_transducer_chunk"]
	if !chunk.Present {
		t.Fatal("loss_transducer_chunk missing")
	}
	if math.IsNaN(chunk.Value) || math.IsInf(chunk.Value, 0) {
		t.Fatalf("loss_transducer_chunk = %g, want finite", chunk.Value)
	}
	// Both passes add into the transducer term.
	want := res.Stats["loss_transducer"].Value + chunk.Value
	if math.Abs(res.Loss-want) > 1e-12 {
		t.Fatalf("loss = %g, want full + chunk = %g", res.Loss, want)
	}
}

func TestForwardStepChunkAuxLosses(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.ChunkRegularization = true
	cfg.Loss.CTCWeight = 0.5
	cfg.Loss.AttWeight = 0.3
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for _, name := range []string{"aux_ctc_loss_chunk", "aux_att_loss_chunk"} {
		sc := res.Stats[name]
		if !sc.Present {
			t.Fatalf("%s missing", name)
		}
		if math.IsNaN(sc.Value) || math.IsInf(sc.Value, 0) {
			t.Fatalf("%s = %g, want finite", name, sc.Value)
		}
	}
	want := res.Stats["loss_transducer"].Value + res.Stats["loss_transducer_chunk"].Value +
		0.5*(res.Stats["aux_ctc_loss"].Value+res.Stats["aux_ctc_loss_chunk"].Value) +
		0.3*(res.Stats["aux_att_loss"].Value+res.Stats["aux_att_loss_chunk"].Value)
	if math.Abs(res.Loss-want) > 1e-12 {
		t.Fatalf("loss = %g, want summed dual-pass terms %g", res.Loss, want)
	}
}

func TestForwardStepChunkEvalErrorRates(t *testing.T) {
	cfg := testConfig()
	cfg.Loss.ChunkRegularization = true
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Eval()
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for _, name := range []string{"cer_transducer", "wer_transducer", "cer_transducer_chunk", "wer_transducer_chunk"} {
		if !res.Stats[name].Present {
			t.Fatalf("%s missing in eval mode", name)
		}
	}
}

func TestForwardStepEvalReportsErrorRates(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Eval()
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	cer := res.Stats["cer_transducer"]
	wer := res.Stats["wer_transducer"]
	if !cer.Present || !wer.Present {
		t.Fatal("cer/wer must be present in eval mode")
	}
	if cer.Value < 0 || wer.Value < 0 {
		t.Fatalf("cer = %g, wer = %g, want non-negative", cer.Value, wer.Value)
	}
}

func TestAttLabelsPrependLangToken(t *testing.T) {
	cfg := testConfig()
	cfg.Model.TokenList = []string{"<blank>", "a", "b", "c", "<en>", "<sos/eos>"}
	cfg.Model.LangToken = "<en>"
	cfg.Loss.AttWeight = 0.3
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	io, err := BuildTaskIO([][]int{{1, 2, 3, -1}, {1, 2, -1, -1}}, []int{4, 3}, 0, -1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	labels, uLen := m.attLabels(io)
	if diff := cmp.Diff([][]int{{4, 1, 2, 3}, {4, 1, 2}}, labels); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 3}, uLen); diff != "" {
		t.Fatalf("uLen (-want +got):\n%s", diff)
	}
	// The transducer sequences stay untouched.
	if diff := cmp.Diff([][]int{{1, 2, 3}, {1, 2}}, io.Labels); diff != "" {
		t.Fatalf("io.Labels (-want +got):\n%s", diff)
	}
}

func TestForwardStepIgnoresTrailingPadding(t *testing.T) {
	feats, lens, text := testBatch()
	padded := tensor.New(2, 10, 6)
	for b := 0; b < 2; b++ {
		for ft := 0; ft < 10; ft++ {
			row := padded.Row(b, ft)
			if ft < 8 {
				copy(row, feats.Row(b, ft))
				continue
			}
			for d := range row {
				row[d] = math.NaN()
			}
		}
	}

	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	encA, lensA, err := a.Encode(feats, lens)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encB, lensB, err := b.Encode(padded, lens)
	if err != nil {
		t.Fatalf("encode padded: %v", err)
	}
	if encB.Dim(1) != encA.Dim(1) {
		t.Fatalf("padded encoder time dim = %d, want %d", encB.Dim(1), encA.Dim(1))
	}
	if diff := cmp.Diff(lensA, lensB); diff != "" {
		t.Fatalf("lens (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(encA.Data, encB.Data); diff != "" {
		t.Fatalf("encoder output (-want +got):\n%s", diff)
	}

	ra, err := a.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	rb, err := b.ForwardStep(padded, lens, text)
	if err != nil {
		t.Fatalf("forward padded: %v", err)
	}
	if ra.Loss != rb.Loss {
		t.Fatalf("trailing padding changed the loss: %g vs %g", ra.Loss, rb.Loss)
	}
}

func TestForwardStepEvalReportFlags(t *testing.T) {
	cfg := testConfig()
	cfg.Model.ReportCER = false
	cfg.Model.ReportWER = false
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Eval()
	feats, lens, text := testBatch()

	res, err := m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if res.Stats["cer_transducer"].Present || res.Stats["wer_transducer"].Present {
		t.Fatal("error rates must be absent when reporting is disabled")
	}

	cfg = testConfig()
	cfg.Model.ReportWER = false
	m, err = New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Eval()
	res, err = m.ForwardStep(feats, lens, text)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if !res.Stats["cer_transducer"].Present {
		t.Fatal("cer_transducer missing with report_cer enabled")
	}
	if res.Stats["wer_transducer"].Present {
		t.Fatal("wer_transducer must be absent with report_wer disabled")
	}
}

func TestForwardStepBatchMismatch(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, _ := testBatch()
	_, err = m.ForwardStep(feats, lens, [][]int{{1}})
	if !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("err = %v, want ErrBatchMismatch", err)
	}
}

func TestCollectFeatsPassthrough(t *testing.T) {
	m, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	feats, lens, _ := testBatch()
	out, outLens, err := m.CollectFeats(feats, lens)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out != feats {
		t.Fatal("passthrough must return the input tensor")
	}
	if diff := cmp.Diff(lens, outLens); diff != "" {
		t.Fatalf("lens (-want +got):\n%s", diff)
	}
}

func TestReduceWeightedMean(t *testing.T) {
	a := StepResult{BatchSize: 2, Stats: Stats{}}
	a.Stats.Set("loss", 4)
	a.Stats.Set("aux_ctc_loss", 1)
	b := StepResult{BatchSize: 6, Stats: Stats{}}
	b.Stats.Set("loss", 8)

	red := Reduce([]StepResult{a, b})
	if got := red["loss"].Value; got != 7 {
		t.Fatalf("loss = %g, want weighted mean 7", got)
	}
	// Only worker a produced the CTC stat.
	if got := red["aux_ctc_loss"].Value; got != 1 {
		t.Fatalf("aux_ctc_loss = %g, want 1", got)
	}
	if red["missing"].Present {
		t.Fatal("absent stat must stay absent")
	}
}

func TestStatsNamesSorted(t *testing.T) {
	s := Stats{}
	s.Set("loss", 1)
	s.Set("aux_ctc_loss", 2)
	s["skipped"] = Scalar{}
	if diff := cmp.Diff([]string{"aux_ctc_loss", "loss"}, s.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}
