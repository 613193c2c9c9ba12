package earthwork

import (
	"runtime"
	"sync"
)

// runCellPass applies fn to every index in [0, n). Small passes run on the
// calling goroutine; passes at or above cfg.ParallelThreshold fan out across
// a bounded pool, each worker owning a contiguous index range.
//
// Callers must write results into index-addressed slots and reduce them
// sequentially afterwards, so the same inputs produce bit-identical output
// whether the pass ran sequentially or in parallel.
func runCellPass(n int, cfg *Config, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := poolSize(n, cfg)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}

func poolSize(n int, cfg *Config) int {
	if cfg.ParallelThreshold <= 0 || n < cfg.ParallelThreshold {
		return 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	return workers
}
