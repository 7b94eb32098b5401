package attention

import (
	"github.com/samcharles93/sparsevit/internal/tensor"
)

// Combine returns the element-wise sum of a and b in a new tensor. The
// operands must have identical (B, N, D).
func Combine(a, b tensor.Batch) (tensor.Batch, error) {
	if !a.SameShape(b) {
		return tensor.Batch{}, shapeErrorf("cannot combine %v with %v", a, b)
	}
	out := a.Clone()
	tensor.Add(out.Data, b.Data)
	return out, nil
}
