package model

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/config"
	"github.com/samcharles93/sparsevit/internal/logger"
	"github.com/samcharles93/sparsevit/internal/tensor"
	"github.com/samcharles93/sparsevit/internal/vision"
)

// Model is the full image classifier: convolutional features, patch
// embedding, the attention stack and the classification head.
type Model struct {
	cfg config.Model

	Extractor *vision.FeatureExtractor
	Embedding *vision.PatchEmbedding
	Stack     *attention.Stack
	Head      *vision.Classifier
}

// Prediction is one class and its probability.
type Prediction struct {
	Class int     `json:"class"`
	Prob  float32 `json:"prob"`
}

// New validates cfg and allocates every layer with zero weights. Call Init
// or LoadWeights before Forward.
func New(cfg config.Model) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg}
	var err error
	if m.Extractor, err = vision.NewFeatureExtractor(cfg.Channels); err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	if m.Embedding, err = vision.NewPatchEmbedding(cfg.NumPatches(), cfg.PatchDim(), cfg.EmbedDim); err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if m.Stack, err = attention.NewStack(cfg.Stack()); err != nil {
		return nil, fmt.Errorf("stack: %w", err)
	}
	if m.Head, err = vision.NewClassifier(cfg.Heads*cfg.KeyDim, cfg.ClassifierHidden, cfg.NumClasses); err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	return m, nil
}

// Config returns the construction-time hyperparameters.
func (m *Model) Config() config.Model { return m.cfg }

// Init fills every parameter deterministically from seed.
func (m *Model) Init(seed int64) {
	m.Extractor.Init(seed)
	m.Embedding.Init(seed + 10)
	m.Stack.Init(seed + 20)
	m.Head.Init(seed + 10_000)
}

// Params lists every learned parameter in a stable order.
func (m *Model) Params() []tensor.Param {
	out := m.Extractor.Params()
	out = append(out, m.Embedding.Params()...)
	out = append(out, m.Stack.Params()...)
	return append(out, m.Head.Params()...)
}

// NumParams is the total number of learned scalars.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.Data)
	}
	return n
}

func (m *Model) checkImages(images vision.Images) error {
	switch {
	case images.B <= 0:
		return attention.ShapeErrorf("empty image batch")
	case images.H != m.cfg.ImageSize || images.W != m.cfg.ImageSize:
		return attention.ShapeErrorf("image is %dx%d, model expects %dx%d", images.H, images.W, m.cfg.ImageSize, m.cfg.ImageSize)
	case images.C != m.cfg.Channels:
		return attention.ShapeErrorf("image has %d channels, model expects %d", images.C, m.cfg.Channels)
	}
	return nil
}

// Forward returns a (B x NumClasses) matrix of class probabilities.
func (m *Model) Forward(ctx context.Context, images vision.Images) (tensor.Mat, error) {
	probs, _, err := m.forward(ctx, images)
	return probs, err
}

// ForwardTrace is Forward that also returns every attention stage.
func (m *Model) ForwardTrace(ctx context.Context, images vision.Images) (tensor.Mat, *attention.Trace, error) {
	return m.forward(ctx, images)
}

func (m *Model) forward(ctx context.Context, images vision.Images) (tensor.Mat, *attention.Trace, error) {
	if err := m.checkImages(images); err != nil {
		return tensor.Mat{}, nil, err
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	features, err := m.Extractor.Forward(images)
	if err != nil {
		return tensor.Mat{}, nil, fmt.Errorf("extract features: %w", err)
	}
	patches, err := vision.ExtractPatches(features, m.cfg.PatchSize)
	if err != nil {
		return tensor.Mat{}, nil, fmt.Errorf("extract patches: %w", err)
	}
	s0, err := m.Embedding.Forward(patches)
	if err != nil {
		return tensor.Mat{}, nil, fmt.Errorf("embed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return tensor.Mat{}, nil, err
	}
	embedded := time.Since(start)

	tr, err := m.Stack.ForwardTrace(s0)
	if err != nil {
		return tensor.Mat{}, nil, fmt.Errorf("attention: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return tensor.Mat{}, nil, err
	}
	attended := time.Since(start)

	probs, err := m.Head.Forward(tr.Output())
	if err != nil {
		return tensor.Mat{}, nil, fmt.Errorf("classify: %w", err)
	}
	log.Debug("forward",
		"batch", images.B,
		"tokens", s0.N,
		"selected", tr.Output().N,
		"embed", embedded,
		"attention", attended-embedded,
		"total", time.Since(start),
	)
	return probs, tr, nil
}

// Classify runs Forward and returns the topK classes of every image, most
// probable first. topK <= 0 or above NumClasses returns all classes.
func (m *Model) Classify(ctx context.Context, images vision.Images, topK int) ([][]Prediction, error) {
	probs, err := m.Forward(ctx, images)
	if err != nil {
		return nil, err
	}
	out := make([][]Prediction, probs.R)
	for b := range out {
		out[b] = TopClasses(probs.Row(b), topK)
	}
	return out, nil
}

// TopClasses ranks probs descending; ties keep the lower class first.
func TopClasses(probs []float32, k int) []Prediction {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(probs[b], probs[a])
	})
	if k > 0 && k < len(order) {
		order = order[:k]
	}
	out := make([]Prediction, len(order))
	for i, c := range order {
		out[i] = Prediction{Class: c, Prob: probs[c]}
	}
	return out
}
