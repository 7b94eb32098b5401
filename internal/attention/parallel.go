package attention

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var exampleWorkers atomic.Int32

func init() {
	exampleWorkers.Store(int32(max(runtime.GOMAXPROCS(0), 1)))
}

// SetWorkers sets how many batch examples are processed concurrently and
// returns the previous value. n < 1 is treated as 1. Results do not depend
// on this setting: each example runs sequentially in a fixed order.
func SetWorkers(n int) int {
	return int(exampleWorkers.Swap(int32(max(n, 1))))
}

// forEachExample runs fn for every example index in [0, n) and returns the
// first error.
func forEachExample(n int, fn func(b int) error) error {
	workers := int(exampleWorkers.Load())
	if n <= 1 || workers <= 1 {
		for b := range n {
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for b := range n {
		g.Go(func() error {
			return fn(b)
		})
	}
	return g.Wait()
}
