// Package workpool bounds background work with a weighted semaphore.
package workpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool limits how many jobs run at once. Run blocks the caller until a slot
// is free; Go hands the job to a goroutine that waits for a slot itself.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool creates a Pool that allows at most limit concurrent jobs.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Returns ctx.Err() if the context is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Go runs fn in the background once a slot is free. If ctx ends before a
// slot frees up, onAbort is called with the context error instead of fn.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context), onAbort func(err error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.Run(ctx, func() error {
			fn(ctx)
			return nil
		})
		if err != nil && onAbort != nil {
			onAbort(err)
		}
	}()
}

// Wait blocks until every job started with Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
