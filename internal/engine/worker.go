package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// StepPoolMetrics is a snapshot of step execution counts for one pool.
type StepPoolMetrics struct {
	RunningSteps   int64 `json:"runningSteps"`
	CompletedSteps int64 `json:"completedSteps"`
	FailedSteps    int64 `json:"failedSteps"`
	PanickedSteps  int64 `json:"panickedSteps"`
}

// ErrPoolClosed is returned when a step is submitted to a closed pool.
var ErrPoolClosed = errors.New("step pool is closed")

// StepPool bounds how many workflow steps execute at once. The runner feeds
// it one wave of ready steps at a time and drains the wave with Wait before
// scheduling the next, so dependency order holds while independent branches
// overlap up to the pool size.
type StepPool struct {
	slots    chan struct{}
	wg       sync.WaitGroup
	metrics  StepPoolMetrics
	mu       sync.Mutex
	quit     chan struct{}
	closed   bool
	panicked []string
}

// NewStepPool creates a pool that runs at most size steps concurrently.
func NewStepPool(size int) *StepPool {
	if size <= 0 {
		size = 1
	}
	return &StepPool{
		slots: make(chan struct{}, size),
		quit:  make(chan struct{}),
	}
}

// RunStep executes fn for the given step on a pool worker. It blocks while
// the pool is at capacity and respects context cancellation while waiting.
// A panic inside fn is recovered and counted against the step as a failure
// so one misbehaving step cannot take down the whole execution. Returns
// ErrPoolClosed if the pool has been closed.
func (p *StepPool) RunStep(ctx context.Context, stepID string, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	// Acquire a slot, respecting context cancellation and pool close.
	select {
	case p.slots <- struct{}{}:
		// Slot acquired.
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}

	// Re-check closed after acquiring the slot, in case Close raced.
	// wg.Add(1) MUST be inside the lock to prevent race with Close's wg.Wait().
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots // release slot
		return ErrPoolClosed
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.RunningSteps, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.PanickedSteps, 1)
				atomic.AddInt64(&p.metrics.FailedSteps, 1)
				p.mu.Lock()
				p.panicked = append(p.panicked, stepID)
				p.mu.Unlock()
			}
			atomic.AddInt64(&p.metrics.RunningSteps, -1)
			<-p.slots // release slot
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			atomic.AddInt64(&p.metrics.FailedSteps, 1)
		} else {
			atomic.AddInt64(&p.metrics.CompletedSteps, 1)
		}
	}()

	return nil
}

// Wait blocks until every submitted step has finished.
func (p *StepPool) Wait() {
	p.wg.Wait()
}

// Close stops the pool. It rejects new steps and waits for running ones to
// finish.
func (p *StepPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool's step counters.
func (p *StepPool) Metrics() StepPoolMetrics {
	return StepPoolMetrics{
		RunningSteps:   atomic.LoadInt64(&p.metrics.RunningSteps),
		CompletedSteps: atomic.LoadInt64(&p.metrics.CompletedSteps),
		FailedSteps:    atomic.LoadInt64(&p.metrics.FailedSteps),
		PanickedSteps:  atomic.LoadInt64(&p.metrics.PanickedSteps),
	}
}

// PanickedStepIDs returns the IDs of steps whose functions panicked, in the
// order the panics were recovered.
func (p *StepPool) PanickedStepIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.panicked))
	copy(out, p.panicked)
	return out
}
