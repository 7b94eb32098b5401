package tensor

import (
	"runtime"
	"sync"
	"testing"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func matVecParWaitGroup(dst []float32, w *Mat, x []float32) {
	workers := min(runtime.GOMAXPROCS(0), w.R)
	var wg sync.WaitGroup
	chunk := (w.R + workers - 1) / workers
	for i := range workers {
		rs := i * chunk
		re := min(rs+chunk, w.R)
		if rs >= re {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			matVecRange(dst, w, x, rs, re)
		}()
	}
	wg.Wait()
}

func TestMatVecMatchesNaiveBitExact(t *testing.T) {
	t.Parallel()
	for _, shape := range [][2]int{{3, 5}, {64, 64}, {512, 256}, {1031, 77}} {
		r, c := shape[0], shape[1]
		w := NewMat(r, c)
		FillRand(&w, int64(r*c))
		x := make([]float32, c)
		FillRandVec(x, 7, 1)

		got := make([]float32, r)
		want := make([]float32, r)
		MatVec(got, &w, x)
		matVecNaive(want, &w, x)
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("(%d,%d) row %d: got %v want %v", r, c, i, got[i], want[i])
			}
		}
	}
}

func TestMatVecConcurrentCallers(t *testing.T) {
	t.Parallel()
	w := NewMat(512, 256)
	FillRand(&w, 3)
	x := make([]float32, 256)
	FillRandVec(x, 4, 1)
	want := make([]float32, 512)
	matVecNaive(want, &w, x)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := make([]float32, 512)
			MatVec(got, &w, x)
			for i := range got {
				if got[i] != want[i] {
					t.Errorf("row %d: got %v want %v", i, got[i], want[i])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMatMulTAddsBias(t *testing.T) {
	t.Parallel()
	x := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	w := NewMatFromData(2, 3, []float32{1, 0, 0, 0, 1, 1})
	dst := NewMat(2, 2)
	MatMulT(&dst, &x, &w, []float32{10, 20})
	want := []float32{11, 25, 14, 31}
	for i := range want {
		if dst.Data[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, dst.Data[i], want[i])
		}
	}
}

func TestMatMulTShapePanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched inner dimension")
		}
	}()
	x := NewMat(2, 3)
	w := NewMat(2, 4)
	dst := NewMat(2, 2)
	MatMulT(&dst, &x, &w, nil)
}

func BenchmarkMatVecNaive(b *testing.B) {
	r, c := 2048, 2048
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		matVecNaive(dst, &w, x)
	}
}

func BenchmarkMatVecParWG(b *testing.B) {
	r, c := 2048, 2048
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		matVecParWaitGroup(dst, &w, x)
	}
}

func BenchmarkMatVecPool(b *testing.B) {
	r, c := 2048, 2048
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		MatVec(dst, &w, x)
	}
}
