// Package parallel splits index ranges across goroutines for the CPU
// kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a range is split.
type Config struct {
	Workers  int // Goroutines to use; 1 or less runs inline.
	MinChunk int // Smallest range handed to one goroutine.
}

// DefaultConfig uses one worker per schedulable CPU and chunks large enough
// that elementwise kernels amortize the goroutine start.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		MinChunk: 16 << 10,
	}
}

// WithMinChunk returns a copy of cfg with a different chunk floor. Kernels
// whose items are whole matrices use 1.
func (cfg Config) WithMinChunk(n int) Config {
	cfg.MinChunk = n
	return cfg
}

// Range calls f on disjoint [lo, hi) ranges covering [0, n) and returns once
// every call has finished. Small ranges run on the calling goroutine.
func Range(n int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := max(cfg.Workers, 1)
	chunk := max((n+workers-1)/workers, cfg.MinChunk, 1)
	if workers == 1 || chunk >= n {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Go(func() { f(lo, hi) })
	}
	wg.Wait()
}

// For calls f(i) for every i in [0, n).
func For(n int, cfg Config, f func(i int)) {
	Range(n, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}
