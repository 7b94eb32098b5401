package model

import (
	"errors"
	"fmt"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/safetensors"
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// Header metadata keys written by Save.
const (
	MetaFormat = "format"
	MetaConfig = "sparsevit.config"

	formatName = "sparsevit"
)

// ErrMissingConfig is returned by Load for weight files written without an
// embedded model configuration.
var ErrMissingConfig = errors.New("weights file has no embedded model config")

type tensorSource interface {
	ReadTensorF32(name string) ([]float32, safetensors.TensorInfo, error)
	Tensor(name string) (safetensors.TensorInfo, bool)
}

// Save writes every parameter as F32 safetensors, with the model
// configuration stored in the header metadata.
func (m *Model) Save(path string) error {
	cfgJSON, err := json.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	params := m.Params()
	tensors := make([]safetensors.Tensor, len(params))
	for i, p := range params {
		tensors[i] = safetensors.Tensor{Name: p.Name, Shape: p.Shape, Data: p.Data}
	}
	meta := map[string]string{
		MetaFormat: formatName,
		MetaConfig: string(cfgJSON),
	}
	if err := safetensors.WriteFile(path, tensors, meta); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Load builds a model from a weights file written by Save.
func Load(path string) (*Model, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	raw, ok := f.Metadata[MetaConfig]
	if !ok {
		return nil, ErrMissingConfig
	}
	cfg := config.Default()
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode embedded config: %w", err)
	}
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.loadFrom(f); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadWeights replaces every parameter of m with the tensors in path. The
// file must hold every parameter with a matching shape; extra tensors are
// ignored.
func (m *Model) LoadWeights(path string) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return fmt.Errorf("open weights: %w", err)
	}
	return m.loadFrom(f)
}

func (m *Model) loadFrom(src tensorSource) error {
	params := m.Params()
	// Check every shape before touching any weight so a bad file leaves the
	// model unchanged.
	for _, p := range params {
		info, ok := src.Tensor(p.Name)
		if !ok {
			return fmt.Errorf("missing tensor %s", p.Name)
		}
		if !slices.Equal(info.Shape, p.Shape) {
			return fmt.Errorf("tensor %s: shape %v, want %v", p.Name, info.Shape, p.Shape)
		}
	}
	loaded := make([][]float32, len(params))
	for i, p := range params {
		data, _, err := src.ReadTensorF32(p.Name)
		if err != nil {
			return err
		}
		if len(data) != len(p.Data) {
			return fmt.Errorf("tensor %s: %d values, want %d", p.Name, len(data), len(p.Data))
		}
		loaded[i] = data
	}
	for i, p := range params {
		copy(p.Data, loaded[i])
	}
	return nil
}

// Param returns the parameter called name.
func (m *Model) Param(name string) (tensor.Param, bool) {
	for _, p := range m.Params() {
		if p.Name == name {
			return p, true
		}
	}
	return tensor.Param{}, false
}
