// Package parallel spreads independent work items over goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForEachBatch splits batch items into at most workers contiguous ranges and
// calls f(worker, beg, end) for each range on its own goroutine. A worker
// index is passed to exactly one call, so f may use per-worker state.
func ForEachBatch(batch, workers int, f func(worker, beg, end int)) {
	if batch < 1 {
		return
	}
	workers = max(1, min(workers, batch))
	per := (batch + workers - 1) / workers
	ranges := (batch + per - 1) / per

	For(ranges, func(w int) {
		f(w, w*per, min(batch, (w+1)*per))
	}, Config{Enabled: ranges > 1, NumWorkers: ranges, MinChunkSize: 1})
}
