// Package kernels holds the in-process correction kernels: outlier and
// stripe removal, flat/dark and background normalization, ring removal on
// reconstructed slices, 2D post filters and projection rotation.
//
// Every kernel consumes the volume it is given and returns the result,
// which may be the same buffer modified in place.
package kernels

import (
	"runtime"
	"sync"

	"tomorecon/internal/models"
)

// parallel calls fn(i) for i in [0, n) on budget.CoreCount workers, each
// worker taking a contiguous range of indices.
func parallel(n int, budget models.ComputeBudget, fn func(i int)) {
	workers := budget.CoreCount
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	per := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * per
		end := start + per
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// OddKernel coerces a kernel size to the nearest odd value >= 1 that is not
// below n. It reports whether the value was changed.
func OddKernel(n int) (int, bool) {
	if n < 1 {
		return 1, true
	}
	if n%2 == 0 {
		return n + 1, true
	}
	return n, false
}
