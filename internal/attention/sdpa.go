package attention

import (
	"math"

	"github.com/samcharles93/sparsevit/internal/tensor"
)

// connectivity reports whether query i may attend to key j. A nil
// connectivity allows every pair.
type connectivity func(i, j int) bool

// projections holds the query, key and value layers shared by both
// attention variants.
type projections struct {
	heads, keyDim int
	query         *Linear
	key           *Linear
	value         *Linear
}

func newProjections(dim, heads, keyDim int) (projections, error) {
	if dim <= 0 {
		return projections{}, configErrorf("input width must be positive, got %d", dim)
	}
	if heads <= 0 || keyDim <= 0 {
		return projections{}, configErrorf("heads (%d) and key_dim (%d) must be positive", heads, keyDim)
	}
	width := heads * keyDim
	p := projections{
		heads:  heads,
		keyDim: keyDim,
		query:  NewLinear(dim, width),
		key:    NewLinear(dim, width),
		value:  NewLinear(dim, width),
	}
	if err := validateHeads(p.query.Out, heads, keyDim); err != nil {
		return projections{}, err
	}
	return p, nil
}

func (p projections) init(seed int64) {
	p.query.Init(seed)
	p.key.Init(seed + 1)
	p.value.Init(seed + 2)
}

func (p projections) params(prefix string) []tensor.Param {
	var out []tensor.Param
	out = append(out, p.query.Params(prefix+".query")...)
	out = append(out, p.key.Params(prefix+".key")...)
	out = append(out, p.value.Params(prefix+".value")...)
	return out
}

// attend runs multi-head self-attention over the rows of x and returns the
// merged (n x heads*keyDim) output. When weights is non-nil it receives one
// (n x n) attention matrix per head.
func (p projections) attend(x *tensor.Mat, conn connectivity, weights *[]tensor.Mat) (tensor.Mat, error) {
	q, err := p.query.Forward(x)
	if err != nil {
		return tensor.Mat{}, err
	}
	k, err := p.key.Forward(x)
	if err != nil {
		return tensor.Mat{}, err
	}
	v, err := p.value.Forward(x)
	if err != nil {
		return tensor.Mat{}, err
	}

	qh, err := SplitHeads(&q, p.heads, p.keyDim)
	if err != nil {
		return tensor.Mat{}, err
	}
	kh, err := SplitHeads(&k, p.heads, p.keyDim)
	if err != nil {
		return tensor.Mat{}, err
	}
	vh, err := SplitHeads(&v, p.heads, p.keyDim)
	if err != nil {
		return tensor.Mat{}, err
	}

	scale := float32(1.0 / math.Sqrt(float64(p.keyDim)))
	outs := make([]tensor.Mat, p.heads)
	var ws []tensor.Mat
	if weights != nil {
		ws = make([]tensor.Mat, p.heads)
	}
	for h := range outs {
		w := tensor.NewMat(x.R, x.R)
		outs[h] = scaledDotProduct(&qh[h], &kh[h], &vh[h], scale, conn, &w)
		if ws != nil {
			ws[h] = w
		}
	}
	if weights != nil {
		*weights = ws
	}
	return MergeHeads(outs)
}

// scaledDotProduct computes softmax(q kᵀ · scale) v for a single head and
// leaves the row-stochastic weights in w, which must be (q.R x k.R).
func scaledDotProduct(q, k, v *tensor.Mat, scale float32, conn connectivity, w *tensor.Mat) tensor.Mat {
	out := tensor.NewMat(q.R, v.C)
	var keep []bool
	if conn != nil {
		keep = make([]bool, k.R)
	}
	for i := 0; i < q.R; i++ {
		row := w.Row(i)
		qi := q.Row(i)
		for j := 0; j < k.R; j++ {
			row[j] = float32(tensor.Dot64(qi, k.Row(j)) * float64(scale))
		}
		if conn == nil {
			tensor.Softmax(row)
		} else {
			for j := range keep {
				keep[j] = conn(i, j)
			}
			tensor.MaskedSoftmax(row, keep)
		}
		dst := out.Row(i)
		for j := 0; j < v.R; j++ {
			wj := row[j]
			if wj == 0 {
				continue
			}
			vj := v.Row(j)
			for d := range dst {
				dst[d] += wj * vj[d]
			}
		}
	}
	return out
}
