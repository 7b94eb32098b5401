package attention

import (
	"math"
	"testing"

	"github.com/samcharles93/sparsevit/internal/tensor"
)

func fillTestData(x []float32, scale float32) {
	for i := range x {
		x[i] = scale * float32((i%29)-14)
	}
}

func testBatch(b, n, d int, scale float32) tensor.Batch {
	out := tensor.NewBatch(b, n, d)
	fillTestData(out.Data, scale)
	return out
}

func scoresFrom(rows ...[]float32) tensor.Batch {
	out := tensor.NewBatch(len(rows), len(rows[0]), 1)
	for b, r := range rows {
		copy(out.Example(b).Data, r)
	}
	return out
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		g := got[i]
		w := want[i]
		if g < w-tol || g > w+tol {
			t.Fatalf("mismatch at %d: got %v want %v±%v", i, g, w, tol)
		}
	}
}

func requireRowStochastic(t *testing.T, w tensor.Mat) {
	t.Helper()
	for i := 0; i < w.R; i++ {
		var sum float64
		for _, v := range w.Row(i) {
			if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("row %d has invalid weight %v", i, v)
			}
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
}

// referenceAttention is a direct single-head implementation used to check
// the projected multi-head path.
func referenceAttention(x *tensor.Mat, p projections, conn connectivity) []float32 {
	width := p.heads * p.keyDim
	proj := func(l *Linear) [][]float32 {
		rows := make([][]float32, x.R)
		for i := range rows {
			rows[i] = make([]float32, width)
			for o := 0; o < width; o++ {
				var sum float32
				for c := 0; c < x.C; c++ {
					sum += l.W.Row(o)[c] * x.Row(i)[c]
				}
				rows[i][o] = sum + l.Bias[o]
			}
		}
		return rows
	}
	q, k, v := proj(p.query), proj(p.key), proj(p.value)
	scale := 1.0 / math.Sqrt(float64(p.keyDim))
	out := make([]float32, x.R*width)
	for h := 0; h < p.heads; h++ {
		lo := h * p.keyDim
		for i := 0; i < x.R; i++ {
			logits := make([]float64, x.R)
			maxv := math.Inf(-1)
			for j := 0; j < x.R; j++ {
				if conn != nil && !conn(i, j) {
					continue
				}
				var dot float64
				for d := 0; d < p.keyDim; d++ {
					dot += float64(q[i][lo+d]) * float64(k[j][lo+d])
				}
				logits[j] = dot * scale
				maxv = math.Max(maxv, logits[j])
			}
			var sum float64
			for j := range logits {
				if conn != nil && !conn(i, j) {
					logits[j] = 0
					continue
				}
				logits[j] = math.Exp(logits[j] - maxv)
				sum += logits[j]
			}
			for d := 0; d < p.keyDim; d++ {
				var acc float64
				for j := range logits {
					acc += logits[j] / sum * float64(v[j][lo+d])
				}
				out[i*width+lo+d] = float32(acc)
			}
		}
	}
	return out
}
