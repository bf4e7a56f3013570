// Package worker runs per-file jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is the outcome of processing one input.
type Task[T any, R any] struct {
	Input  T
	Result R
	Err    error
}

// ProcessFunc processes a single input.
type ProcessFunc[T any, R any] func(ctx context.Context, input T) (R, error)

// Pool is a generic worker pool. Results are returned in input order
// regardless of which worker handled them.
type Pool[T any, R any] struct {
	workers int
	process ProcessFunc[T, R]
	onDone  func(done, total int)
}

// NewPool creates a pool with the given concurrency; values below one
// mean a single worker.
func NewPool[T any, R any](workers int, fn ProcessFunc[T, R]) *Pool[T, R] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T, R]{
		workers: workers,
		process: fn,
	}
}

// OnDone registers a callback invoked after each task, serialized, with
// the number of finished tasks so far.
func (p *Pool[T, R]) OnDone(fn func(done, total int)) *Pool[T, R] {
	p.onDone = fn
	return p
}

// Execute runs every input through the pool. Inputs not started before
// ctx is cancelled are left with a zero Result and ctx's error.
func (p *Pool[T, R]) Execute(ctx context.Context, inputs []T) []Task[T, R] {
	results := make([]Task[T, R], len(inputs))
	started := make([]bool, len(inputs))
	inputCh := make(chan int)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range inputCh {
				result, err := p.process(ctx, inputs[idx])
				results[idx] = Task[T, R]{
					Input:  inputs[idx],
					Result: result,
					Err:    err,
				}
				if err != nil {
					log.Debug().Err(err).Int("worker", workerID).Int("index", idx).Msg("task failed")
				}
				if p.onDone != nil {
					mu.Lock()
					done++
					p.onDone(done, len(inputs))
					mu.Unlock()
				}
			}
		}(w)
	}

send:
	for i := range inputs {
		select {
		case <-ctx.Done():
			break send
		case inputCh <- i:
			started[i] = true
		}
	}
	close(inputCh)
	wg.Wait()

	for i := range results {
		if !started[i] {
			results[i] = Task[T, R]{Input: inputs[i], Err: ctx.Err()}
		}
	}
	return results
}
