package vision

import (
	"github.com/samcharles93/sparsevit/internal/attention"
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// Classifier mean-pools the token sequence and applies dense → ReLU →
// dense → softmax.
type Classifier struct {
	Dim, Hidden, Classes int

	hidden *attention.Linear
	out    *attention.Linear
}

// NewClassifier allocates the two dense layers.
func NewClassifier(dim, hidden, classes int) (*Classifier, error) {
	if dim <= 0 || hidden <= 0 || classes <= 0 {
		return nil, attention.ConfigErrorf("classifier dims must be positive (dim=%d hidden=%d classes=%d)", dim, hidden, classes)
	}
	return &Classifier{
		Dim:     dim,
		Hidden:  hidden,
		Classes: classes,
		hidden:  attention.NewLinear(dim, hidden),
		out:     attention.NewLinear(hidden, classes),
	}, nil
}

// Init fills both layers from seed.
func (c *Classifier) Init(seed int64) {
	c.hidden.Init(seed)
	c.out.Init(seed + 1)
}

// Params lists the head weights under "head.".
func (c *Classifier) Params() []tensor.Param {
	return append(c.hidden.Params("head.hidden"), c.out.Params("head.out")...)
}

// Forward returns a (B x Classes) matrix of class probabilities.
func (c *Classifier) Forward(x tensor.Batch) (tensor.Mat, error) {
	if x.D != c.Dim {
		return tensor.Mat{}, attention.ShapeErrorf("classifier expects width %d, got %d", c.Dim, x.D)
	}
	if x.N == 0 {
		return tensor.Mat{}, attention.ShapeErrorf("classifier needs at least one token")
	}
	pooled := tensor.NewMat(x.B, x.D)
	inv := 1 / float32(x.N)
	for b := 0; b < x.B; b++ {
		ex := x.Example(b)
		dst := pooled.Row(b)
		for i := 0; i < ex.R; i++ {
			tensor.Add(dst, ex.Row(i))
		}
		tensor.Scale(dst, inv)
	}
	h, err := c.hidden.Forward(&pooled)
	if err != nil {
		return tensor.Mat{}, err
	}
	tensor.Relu(h.Data)
	logits, err := c.out.Forward(&h)
	if err != nil {
		return tensor.Mat{}, err
	}
	for b := 0; b < logits.R; b++ {
		tensor.Softmax(logits.Row(b))
	}
	return logits, nil
}
