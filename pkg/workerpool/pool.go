// Package workerpool fans independent work items out across a bounded number
// of goroutines. Per-endpoint schema inference is the main user.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultMaxConcurrent is used when Config.MaxConcurrent is not positive.
const DefaultMaxConcurrent = 4

// Config configures a Pool.
type Config struct {
	MaxConcurrent int
}

// Pool runs work items with bounded parallelism. It holds no per-run state
// and may be shared.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a Pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// MaxConcurrent returns the effective concurrency limit.
func (p *Pool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// Item is a unit of work.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one Item.
type Result[T any] struct {
	ID     string
	Index  int // position of the item in the submitted slice
	Result T
	Err    error
}

// Process executes all items and returns results in submission order.
// A failing item does not stop the others. Items that never acquired a slot
// before ctx was cancelled report ctx.Err().
func Process[T any](ctx context.Context, pool *Pool, items []Item[T], onProgress func(completed, total int)) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan Result[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- Result[T]{ID: item.ID, Index: i, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Debug("Work item failed", zap.String("id", item.ID), zap.Error(err))
			}
			resultsChan <- Result[T]{ID: item.ID, Index: i, Result: result, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result[T], len(items))
	completed := 0
	for r := range resultsChan {
		results[r.Index] = r
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}
	return results
}
