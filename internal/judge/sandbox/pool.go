package sandbox

import (
	"context"
	"time"

	appErr "codeblack/pkg/errors"
)

// Pool bounds the number of submissions executing at once.
type Pool struct {
	sem  chan struct{}
	wait time.Duration
}

// NewPool creates a pool with size slots. Acquire gives up after wait.
func NewPool(size int, wait time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Pool{sem: make(chan struct{}, size), wait: wait}
}

// Acquire takes a slot or fails with JudgeQueueFull.
func (p *Pool) Acquire(ctx context.Context) error {
	timer := time.NewTimer(p.wait)
	defer timer.Stop()
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrap(ctx.Err(), appErr.Timeout)
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("sandbox pool is full")
	}
}

// Release returns a slot.
func (p *Pool) Release() {
	select {
	case <-p.sem:
	default:
	}
}

// InUse returns the number of occupied slots.
func (p *Pool) InUse() int {
	return len(p.sem)
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return cap(p.sem)
}
