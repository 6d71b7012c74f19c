// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs data-parallel tasks, such as the simulated device kernels, over a bounded number
// of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines running tasks at the same time.
type Pool struct {
	// maxParallelism is the limit of tasks running in parallel. 0 disables parallelism, and a negative value
	// makes it unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the limit of tasks running in parallel.
// If 0 parallelism is disabled, if -1 it is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// It should only be changed while no tasks are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available and starts task in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.maxParallelism == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// MinChunkSize is the minimum number of elements handed to one task by ParallelFor.
const MinChunkSize = 4096

// ParallelFor splits the range [0, n) into contiguous chunks of at least MinChunkSize elements, calls
// fn(start, end) for each chunk using the pool, and waits for all of them to finish.
func (w *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	numChunks := n / MinChunkSize
	if w.maxParallelism > 0 {
		numChunks = min(numChunks, w.maxParallelism)
	}
	if numChunks <= 1 || w.maxParallelism == 0 {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			fn(start, end)
		})
	}
	wg.Wait()
}
