package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b, accumulating left to right.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Dot64 is Dot accumulated in float64. Products of finite float32 values
// cannot overflow it.
func Dot64(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Scale multiplies x by s in place.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// Relu clamps negative values of x to zero in place.
func Relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Softmax applies the softmax function to x. The row maximum is subtracted
// before exponentiation so large magnitudes do not overflow. Rows whose
// maximum is +Inf share the mass evenly between the +Inf positions; rows
// that are entirely -Inf become uniform.
func Softmax(x []float32) {
	softmax(x, nil)
}

// MaskedSoftmax is Softmax restricted to positions where keep[i] is true.
// Masked positions receive exactly zero weight. keep must allow at least
// one position.
func MaskedSoftmax(x []float32, keep []bool) {
	softmax(x, keep)
}

func softmax(x []float32, keep []bool) {
	kept := func(i int) bool { return keep == nil || keep[i] }
	maxv := math.Inf(-1)
	n := 0
	for i, v := range x {
		if !kept(i) {
			continue
		}
		n++
		if float64(v) > maxv {
			maxv = float64(v)
		}
	}
	if n == 0 {
		return
	}
	if math.IsInf(maxv, 0) {
		// +Inf: split between the +Inf entries. -Inf: every kept entry
		// is -Inf, so split between all of them.
		ties := 0
		for i, v := range x {
			if kept(i) && float64(v) == maxv {
				ties++
			}
		}
		w := float32(1 / float64(ties))
		for i, v := range x {
			if kept(i) && float64(v) == maxv {
				x[i] = w
			} else {
				x[i] = 0
			}
		}
		return
	}

	var sum float64
	for i, v := range x {
		if !kept(i) {
			x[i] = 0
			continue
		}
		e := math.Exp(float64(v) - maxv)
		x[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Argmax returns the index of the largest value, preferring the lowest
// index on ties. It returns -1 for an empty slice.
func Argmax(x []float32) int {
	best := -1
	for i, v := range x {
		if best < 0 || v > x[best] {
			best = i
		}
	}
	return best
}
