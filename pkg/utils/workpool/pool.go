package workpool

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when both the workers and the wait queue are full
var ErrBusy = errors.New("server is too busy")

// Pool runs at most Workers calls at once and lets at most QueueSize more wait.
// Anything beyond that is rejected immediately with ErrBusy.
type Pool struct {
	workers  *semaphore.Weighted
	admitted chan struct{}
}

// New creates a pool. workers must be at least 1; queueSize may be 0.
func New(workers, queueSize int) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	if queueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", queueSize)
	}
	return &Pool{
		workers:  semaphore.NewWeighted(int64(workers)),
		admitted: make(chan struct{}, workers+queueSize),
	}, nil
}

// Do runs fn on the calling goroutine once a worker slot is free.
// It returns ErrBusy without waiting when the pool is saturated and
// ctx.Err() if ctx ends while queued.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.admitted <- struct{}{}:
	default:
		return ErrBusy
	}
	defer func() { <-p.admitted }()

	if err := p.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.workers.Release(1)

	return fn(ctx)
}

// InFlight returns the number of running plus queued calls
func (p *Pool) InFlight() int {
	return len(p.admitted)
}
