package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/pcranston/floe/pkg/models"
)

// Worker executes a task's payload. Implementations are opaque to the
// coordinator; they report only success or failure and are assumed to
// produce idempotent, at-least-once-safe side effects.
type Worker interface {
	Run(ctx context.Context, task *models.Task) error
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task *models.Task) error

// Run calls the function.
func (f WorkerFunc) Run(ctx context.Context, task *models.Task) error {
	return f(ctx, task)
}

// Factory starts a fresh worker for one task attempt. A startup error
// is wrapped in WorkerUnavailableError by the pool.
type Factory func() (Worker, error)

// WorkerUnavailableError reports that no worker could be acquired or
// started. It is recovered locally via direct execution and never
// surfaces as a fatal error.
type WorkerUnavailableError struct {
	Err error
}

func (e *WorkerUnavailableError) Error() string {
	return fmt.Sprintf("worker unavailable: %v", e.Err)
}

func (e *WorkerUnavailableError) Unwrap() error {
	return e.Err
}

// Pool bounds concurrent task execution and starts workers on demand.
type Pool struct {
	sem     chan struct{}
	factory Factory
}

// NewPool creates a pool with the given concurrency bound. A nil
// factory makes every lease fail, forcing direct execution.
func NewPool(size int, factory Factory) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:     make(chan struct{}, size),
		factory: factory,
	}
}

// AcquireSlot blocks until an execution slot is free or the context is
// cancelled. Every task execution, worker or direct, holds a slot.
func (p *Pool) AcquireSlot(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseSlot returns an execution slot to the pool.
func (p *Pool) ReleaseSlot() {
	<-p.sem
}

// Lease starts a worker for one attempt. Failure to start is reported
// as WorkerUnavailableError so callers can fall back.
func (p *Pool) Lease() (Worker, error) {
	if p.factory == nil {
		return nil, &WorkerUnavailableError{Err: errors.New("no worker factory configured")}
	}
	w, err := p.factory()
	if err != nil {
		return nil, &WorkerUnavailableError{Err: err}
	}
	return w, nil
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int {
	return cap(p.sem)
}
