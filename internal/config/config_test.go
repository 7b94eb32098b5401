package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/sparsevit/internal/attention"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	m := Default()
	if err := m.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if got := m.NumPatches(); got != 16 {
		t.Fatalf("NumPatches = %d, want 16", got)
	}
	if got := m.PatchDim(); got != 12 {
		t.Fatalf("PatchDim = %d, want 12", got)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*Model){
		"zero heads":            func(m *Model) { m.Heads = 0 },
		"negative classes":      func(m *Model) { m.NumClasses = -1 },
		"zero global tokens":    func(m *Model) { m.GlobalTokens = 0 },
		"patch does not divide": func(m *Model) { m.PatchSize = 3 },
		"image too small":       func(m *Model) { m.ImageSize = 6 },
		"heads x key_dim":       func(m *Model) { m.KeyDim = 8 },
		"over token limit":      func(m *Model) { m.MaxGlobalTokens = 4 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := Default()
			mutate(&m)
			if err := m.Validate(); !errors.Is(err, attention.ErrConfiguration) {
				t.Fatalf("got %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
model:
  num_classes: 3
  strided_dilation: true
labels: [cat, dog, bird]
seed: 11
log_level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.NumClasses != 3 || !cfg.Model.StridedDilation {
		t.Fatalf("file values not applied: %+v", cfg.Model)
	}
	if cfg.Model.EmbedDim != Default().EmbedDim {
		t.Fatalf("embed_dim = %d, want default %d", cfg.Model.EmbedDim, Default().EmbedDim)
	}
	if cfg.Seed == nil || *cfg.Seed != 11 {
		t.Fatalf("seed = %v, want 11", cfg.Seed)
	}
	if cfg.Label(1) != "dog" || cfg.Label(7) != "class_7" {
		t.Fatalf("labels: %q %q", cfg.Label(1), cfg.Label(7))
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadBadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
