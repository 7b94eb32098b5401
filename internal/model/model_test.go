package model

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/safetensors"
	"github.com/samcharles93/sparsevit/internal/tensor"
	"github.com/samcharles93/sparsevit/internal/vision"
)

func newTestModel(t *testing.T, cfg config.Model, seed int64) *Model {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Init(seed)
	return m
}

func testImages(cfg config.Model, b int, seed int64) vision.Images {
	im := vision.NewImages(b, cfg.ImageSize, cfg.ImageSize, cfg.Channels)
	tensor.FillRandVec(im.Data, seed, 1)
	return im
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.KeyDim = 7
	if _, err := New(cfg); !errors.Is(err, attention.ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}

func TestForwardProbabilities(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 1)
	probs, tr, err := m.ForwardTrace(context.Background(), testImages(cfg, 3, 2))
	if err != nil {
		t.Fatalf("ForwardTrace: %v", err)
	}
	if probs.R != 3 || probs.C != cfg.NumClasses {
		t.Fatalf("probs shape = (%d, %d), want (3, %d)", probs.R, probs.C, cfg.NumClasses)
	}
	for b := 0; b < probs.R; b++ {
		var sum float64
		for _, v := range probs.Row(b) {
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("row %d sums to %v", b, sum)
		}
	}
	want := [3]int{3, cfg.GlobalTokens, cfg.Heads * cfg.KeyDim}
	if got := tr.Output().Shape(); got != want {
		t.Fatalf("stack output = %v, want %v", got, want)
	}
	if got := tr.Stages[0].N; got != cfg.NumPatches() {
		t.Fatalf("S0 has %d tokens, want %d", got, cfg.NumPatches())
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 4)
	images := testImages(cfg, 2, 5)
	a, err := m.Forward(context.Background(), images)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Forward(context.Background(), images)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Data, b.Data); diff != "" {
		t.Fatalf("second forward differs:\n%s", diff)
	}
}

func TestForwardRejectsWrongImages(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 1)
	cases := map[string]vision.Images{
		"empty":    vision.NewImages(0, cfg.ImageSize, cfg.ImageSize, cfg.Channels),
		"size":     vision.NewImages(1, cfg.ImageSize/2, cfg.ImageSize, cfg.Channels),
		"channels": vision.NewImages(1, cfg.ImageSize, cfg.ImageSize, 1),
	}
	for name, im := range cases {
		if _, err := m.Forward(context.Background(), im); !errors.Is(err, attention.ErrShapeMismatch) {
			t.Fatalf("%s: got %v, want ErrShapeMismatch", name, err)
		}
	}
}

func TestForwardHonoursCancellation(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Forward(ctx, testImages(cfg, 1, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestForwardLogsTiming(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 1)
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.JSON(&buf, slog.LevelDebug))
	if _, err := m.Forward(ctx, testImages(cfg, 1, 1)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"forward"`) || !strings.Contains(out, `"selected":8`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	m := newTestModel(t, cfg, 3)
	preds, err := m.Classify(context.Background(), testImages(cfg, 2, 9), 3)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("got %d results, want 2", len(preds))
	}
	for i, p := range preds {
		if len(p) != 3 {
			t.Fatalf("image %d: %d predictions, want 3", i, len(p))
		}
		if p[0].Prob < p[1].Prob || p[1].Prob < p[2].Prob {
			t.Fatalf("image %d: predictions not sorted: %+v", i, p)
		}
	}
}

func TestTopClasses(t *testing.T) {
	t.Parallel()
	probs := []float32{0.1, 0.4, 0.1, 0.4}
	want := []Prediction{{1, 0.4}, {3, 0.4}, {0, 0.1}}
	if diff := cmp.Diff(want, TopClasses(probs, 3)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if got := TopClasses(probs, 0); len(got) != 4 {
		t.Fatalf("k=0 returned %d classes, want 4", len(got))
	}
	withNaN := []float32{float32(math.NaN()), 0.2, 0.7}
	if got := TopClasses(withNaN, 2); got[0].Class != 2 || got[1].Class != 1 {
		t.Fatalf("NaN not ranked last: %+v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.StridedDilation = true
	cfg.NumClasses = 4
	m := newTestModel(t, cfg, 21)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := safetensors.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Metadata[MetaFormat] != "sparsevit" || f.Metadata[MetaConfig] == "" {
		t.Fatalf("metadata = %v", f.Metadata)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded.Config()); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
	images := testImages(cfg, 2, 8)
	want, err := m.Forward(context.Background(), images)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Forward(context.Background(), images)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want.Data, got.Data); diff != "" {
		t.Fatalf("loaded model differs:\n%s", diff)
	}
}

func TestLoadWeightsShapeMismatchLeavesModelUnchanged(t *testing.T) {
	t.Parallel()
	small := config.Default()
	small.NumClasses = 3
	path := filepath.Join(t.TempDir(), "small.safetensors")
	if err := newTestModel(t, small, 1).Save(path); err != nil {
		t.Fatal(err)
	}

	m := newTestModel(t, config.Default(), 2)
	before := append([]float32(nil), m.Params()[0].Data...)
	if err := m.LoadWeights(path); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if diff := cmp.Diff(before, m.Params()[0].Data); diff != "" {
		t.Fatalf("failed load modified weights:\n%s", diff)
	}
}

func TestLoadWithoutConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bare.safetensors")
	tensors := []safetensors.Tensor{{Name: "x", Shape: []int{1}, Data: []float32{1}}}
	if err := safetensors.WriteFile(path, tensors, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("got %v, want ErrMissingConfig", err)
	}
}

func TestParamsAreUniqueAndNamed(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, config.Default(), 1)
	seen := map[string]bool{}
	for _, p := range m.Params() {
		if seen[p.Name] {
			t.Fatalf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, name := range []string{"extractor.0.kernel", "embed.position", "stack.sparse.0.query.weight", "stack.dilated.1.value.bias", "head.out.weight"} {
		if _, ok := m.Param(name); !ok {
			t.Fatalf("missing parameter %q", name)
		}
	}
	if m.NumParams() <= 0 {
		t.Fatal("NumParams should be positive")
	}
}

func BenchmarkForward(b *testing.B) {
	cfg := config.Default()
	m, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	m.Init(1)
	images := vision.NewImages(4, cfg.ImageSize, cfg.ImageSize, cfg.Channels)
	tensor.FillRandVec(images.Data, 1, 1)
	ctx := logger.WithContext(context.Background(), logger.Discard())
	for b.Loop() {
		if _, err := m.Forward(ctx, images); err != nil {
			b.Fatal(err)
		}
	}
}
