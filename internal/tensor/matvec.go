package tensor

import (
	"runtime"
	"sync"
)

// parallelMinWork is the smallest R*C for which MatVec fans rows out to the
// worker pool. Below it the goroutine handoff costs more than the math.
const parallelMinWork = 64 * 1024

type matVecTask struct {
	dst    []float32
	w      *Mat
	x      []float32
	rs, re int
	done   chan struct{}
}

type matVecPool struct {
	size      int
	tasks     chan matVecTask
	doneSlots chan chan struct{}
}

var matVecWorkPool *matVecPool

var matVecPoolOnce sync.Once

func getMatVecPool() *matVecPool {
	matVecPoolOnce.Do(func() {
		matVecWorkPool = newMatVecPool(runtime.GOMAXPROCS(0))
	})
	return matVecWorkPool
}

func newMatVecPool(size int) *matVecPool {
	if size < 1 {
		size = 1
	}
	p := &matVecPool{
		size:      size,
		tasks:     make(chan matVecTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, size)
	}
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				matVecRange(task.dst, task.w, task.x, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatVec computes dst = w * x where w is an (out x in) matrix and x is a
// vector of length in. Every output element is a single left-to-right dot
// product, so the result does not depend on how rows are split across
// workers.
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}

	if w.R*w.C < parallelMinWork {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	pool := getMatVecPool()
	workers := min(pool.size, w.R)
	if workers <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	done := <-pool.doneSlots

	activeWorkers := 0
	for i := 0; i < workers; i++ {
		rs := i * chunk
		re := min(rs+chunk, w.R)
		if rs >= re {
			break
		}
		activeWorkers++
		pool.tasks <- matVecTask{
			dst:  dst,
			w:    w,
			x:    x,
			rs:   rs,
			re:   re,
			done: done,
		}
	}

	for i := 0; i < activeWorkers; i++ {
		<-done
	}
	pool.doneSlots <- done
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

// MatMulT computes dst = x * wᵀ + bias row by row: x is (n x in), w is
// (out x in) and dst is (n x out). bias may be nil.
func MatMulT(dst *Mat, x *Mat, w *Mat, bias []float32) {
	if x.C != w.C || dst.R != x.R || dst.C != w.R {
		panic("matmul shape mismatch")
	}
	if bias != nil && len(bias) != w.R {
		panic("matmul bias length mismatch")
	}
	for i := 0; i < x.R; i++ {
		out := dst.Row(i)
		MatVec(out, w, x.Row(i))
		if bias != nil {
			Add(out, bias)
		}
	}
}
