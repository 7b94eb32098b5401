package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// Linear is a dense projection y = W x + b applied to each row of its input.
// W is stored (out x in).
type Linear struct {
	In, Out int
	W       tensor.Mat
	Bias    []float32
}

// NewLinear allocates a zeroed projection from in to out features.
func NewLinear(in, out int) *Linear {
	return &Linear{
		In:   in,
		Out:  out,
		W:    tensor.NewMat(out, in),
		Bias: make([]float32, out),
	}
}

// Init fills the weights deterministically from seed and zeroes the bias.
func (l *Linear) Init(seed int64) {
	tensor.FillRand(&l.W, seed)
	clear(l.Bias)
}

// Forward projects every row of x. x must have In columns.
func (l *Linear) Forward(x *tensor.Mat) (tensor.Mat, error) {
	if x.C != l.In {
		return tensor.Mat{}, shapeErrorf("linear expects width %d, got %d", l.In, x.C)
	}
	out := tensor.NewMat(x.R, l.Out)
	tensor.MatMulT(&out, x, &l.W, l.Bias)
	return out, nil
}

// Params lists the weight and bias under prefix.
func (l *Linear) Params(prefix string) []tensor.Param {
	return []tensor.Param{
		tensor.MatParam(prefix+".weight", &l.W),
		tensor.VecParam(prefix+".bias", l.Bias),
	}
}
