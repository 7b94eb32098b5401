package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/vision"
)

// Model holds the construction-time hyperparameters of the pipeline. They
// are immutable once a model is built.
type Model struct {
	ImageSize        int  `yaml:"image_size" json:"image_size"`
	Channels         int  `yaml:"channels" json:"channels"`
	PatchSize        int  `yaml:"patch_size" json:"patch_size"`
	EmbedDim         int  `yaml:"embed_dim" json:"embed_dim"`
	Heads            int  `yaml:"heads" json:"heads"`
	KeyDim           int  `yaml:"key_dim" json:"key_dim"`
	GlobalTokens     int  `yaml:"global_tokens" json:"global_tokens"`
	MaxGlobalTokens  int  `yaml:"max_global_tokens" json:"max_global_tokens"`
	DilationRate     int  `yaml:"dilation_rate" json:"dilation_rate"`
	StridedDilation  bool `yaml:"strided_dilation" json:"strided_dilation"`
	ScorerHidden     int  `yaml:"scorer_hidden" json:"scorer_hidden"`
	ClassifierHidden int  `yaml:"classifier_hidden" json:"classifier_hidden"`
	NumClasses       int  `yaml:"num_classes" json:"num_classes"`
}

// Config is the sparsevit configuration file
// (~/.config/sparsevit/config.yaml or --config).
type Config struct {
	Model Model `yaml:"model"`

	Weights string   `yaml:"weights"`
	Labels  []string `yaml:"labels"`
	Seed    *int64   `yaml:"seed"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

// Default returns a small, valid model configuration.
func Default() Model {
	return Model{
		ImageSize:        64,
		Channels:         3,
		PatchSize:        2,
		EmbedDim:         64,
		Heads:            4,
		KeyDim:           16,
		GlobalTokens:     8,
		MaxGlobalTokens:  attention.DefaultMaxGlobalTokens,
		DilationRate:     2,
		ScorerHidden:     32,
		ClassifierHidden: 64,
		NumClasses:       10,
	}
}

// FeatureSize is the spatial side of the extractor output.
func (m Model) FeatureSize() int {
	return vision.OutputSize(m.ImageSize)
}

// NumPatches is the token count N of S0.
func (m Model) NumPatches() int {
	g := m.FeatureSize() / m.PatchSize
	return g * g
}

// PatchDim is the flattened width of one patch.
func (m Model) PatchDim() int {
	return m.PatchSize * m.PatchSize * m.Channels
}

// Stack returns the attention stack portion of the configuration.
func (m Model) Stack() attention.StackConfig {
	return attention.StackConfig{
		EmbedDim:        m.EmbedDim,
		Heads:           m.Heads,
		KeyDim:          m.KeyDim,
		GlobalTokens:    m.GlobalTokens,
		MaxGlobalTokens: m.MaxGlobalTokens,
		ScorerHidden:    m.ScorerHidden,
		DilationRate:    m.DilationRate,
		StridedDilation: m.StridedDilation,
	}
}

// Validate reports the first invalid or inconsistent hyperparameter as an
// error matching attention.ErrConfiguration.
func (m Model) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"image_size", m.ImageSize},
		{"channels", m.Channels},
		{"patch_size", m.PatchSize},
		{"embed_dim", m.EmbedDim},
		{"heads", m.Heads},
		{"key_dim", m.KeyDim},
		{"global_tokens", m.GlobalTokens},
		{"dilation_rate", m.DilationRate},
		{"classifier_hidden", m.ClassifierHidden},
		{"num_classes", m.NumClasses},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return attention.ConfigErrorf("%s must be positive, got %d", p.name, p.v)
		}
	}
	feat := m.FeatureSize()
	if feat == 0 {
		return attention.ConfigErrorf("image_size %d is too small for %d pooling stages", m.ImageSize, vision.Stages)
	}
	if feat%m.PatchSize != 0 {
		return attention.ConfigErrorf("patch_size %d does not divide feature size %d", m.PatchSize, feat)
	}
	return m.Stack().Validate()
}

// Path returns the default config file location.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sparsevit", "config.yaml")
}

// Load reads a config file. Model fields missing from the file keep their
// Default values. A missing file at the default path yields the defaults;
// a missing explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Config{Model: Default()}
	explicit := path != ""
	if !explicit {
		path = Path()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Label returns the configured name of class i, or its index.
func (c Config) Label(i int) string {
	if i >= 0 && i < len(c.Labels) {
		return c.Labels[i]
	}
	return fmt.Sprintf("class_%d", i)
}
