package tensor

import (
	"math"
	"math/rand"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C are the number of rows and columns. Stride is the number of
// elements between the starts of two consecutive rows; matrices created by
// this package always have Stride == C, views may not.
//
// Mat does not perform any memory safety beyond the checks performed by Go's
// slice types; out‑of‑range indices will panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zero initialised matrix with the given number of rows
// and columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Row returns a view of the i‑th row. Modifications to the returned slice
// update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// Clone returns a compact deep copy of m.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// Gather copies the rows named by idx, in order, into a new matrix.
func (m *Mat) Gather(idx []int) Mat {
	out := NewMat(len(idx), m.C)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}

// FillRand fills the matrix with reproducible pseudo‑random values drawn
// uniformly from (-limit, limit), where limit follows the Glorot rule for a
// layer with R outputs and C inputs. The same seed always produces the same
// matrix.
func FillRand(m *Mat, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	limit := float32(0.01)
	if m.R+m.C > 0 {
		limit = float32(math.Sqrt(6.0 / float64(m.R+m.C)))
	}
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * limit
		}
	}
}

// FillRandVec fills v with small reproducible values in (-scale, scale).
func FillRandVec(v []float32, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range v {
		v[i] = (rng.Float32()*2 - 1) * scale
	}
}
