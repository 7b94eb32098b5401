package tensor

import "fmt"

// Batch is a contiguous (B, N, D) float32 tensor: B examples, each a
// sequence of N rows of width D. Example b occupies
// Data[b*N*D : (b+1)*N*D] in row-major order.
type Batch struct {
	B, N, D int
	Data    []float32
}

// NewBatch allocates a zeroed batch.
func NewBatch(b, n, d int) Batch {
	if b < 0 || n < 0 || d < 0 {
		panic("negative dimension for batch")
	}
	return Batch{B: b, N: n, D: d, Data: make([]float32, b*n*d)}
}

// NewBatchFromData wraps data without copying.
func NewBatchFromData(b, n, d int, data []float32) (Batch, error) {
	if b < 0 || n < 0 || d < 0 {
		return Batch{}, errNegativeDim
	}
	if b*n*d != len(data) {
		return Batch{}, fmt.Errorf("batch (%d, %d, %d) needs %d values, got %d", b, n, d, b*n*d, len(data))
	}
	return Batch{B: b, N: n, D: d, Data: data}, nil
}

// Stack builds a batch from per-example matrices of identical shape.
func Stack(ms []Mat) (Batch, error) {
	if len(ms) == 0 {
		return Batch{}, nil
	}
	n, d := ms[0].R, ms[0].C
	out := NewBatch(len(ms), n, d)
	for b := range ms {
		if ms[b].R != n || ms[b].C != d {
			return Batch{}, fmt.Errorf("example %d has shape (%d, %d), want (%d, %d)", b, ms[b].R, ms[b].C, n, d)
		}
		dst := out.Example(b)
		for i := 0; i < n; i++ {
			copy(dst.Row(i), ms[b].Row(i))
		}
	}
	return out, nil
}

// Example returns a Mat view onto example b. Writes through the view
// update the batch.
func (t Batch) Example(b int) Mat {
	if b < 0 || b >= t.B {
		panic("batch index out of range")
	}
	size := t.N * t.D
	return Mat{R: t.N, C: t.D, Stride: t.D, Data: t.Data[b*size : (b+1)*size]}
}

// Shape returns (B, N, D).
func (t Batch) Shape() [3]int {
	return [3]int{t.B, t.N, t.D}
}

// SameShape reports whether t and o have identical (B, N, D).
func (t Batch) SameShape(o Batch) bool {
	return t.B == o.B && t.N == o.N && t.D == o.D
}

// Clone returns a deep copy.
func (t Batch) Clone() Batch {
	out := Batch{B: t.B, N: t.N, D: t.D, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

func (t Batch) String() string {
	return fmt.Sprintf("Batch(%d, %d, %d)", t.B, t.N, t.D)
}

var errNegativeDim = fmtError("negative dimension for batch")

type fmtError string

func (e fmtError) Error() string { return string(e) }
