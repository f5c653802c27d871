// Package pool provides the bounded worker pool that caps render
// concurrency process-wide.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("render pool is closed")

// Job is one render unit of work.
type Job func(ctx context.Context) error

// RenderPool runs jobs on at most Size worker goroutines. Submission
// blocks when all workers are busy; once a job is accepted its
// completion is always waited for, so callers never race ahead of
// in-flight renders.
type RenderPool struct {
	size    int
	jobs    chan jobWrapper
	workers atomic.Int32
	active  atomic.Int32
	closed  atomic.Bool
	wg      sync.WaitGroup
	logger  *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type jobWrapper struct {
	job  Job
	ctx  context.Context
	done chan error
}

// NewRenderPool creates a pool with the given concurrency cap.
// size <= 0 falls back to 4.
func NewRenderPool(size int, logger *zap.Logger) *RenderPool {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderPool{
		size:   size,
		jobs:   make(chan jobWrapper, size),
		logger: logger.With(zap.String("component", "render_pool")),
	}
}

// Size returns the concurrency cap.
func (p *RenderPool) Size() int {
	return p.size
}

// Do submits a job and waits for it to finish. Submission honors ctx;
// after the job is accepted the wait is unconditional, detached jobs
// settle on their own deadline.
func (p *RenderPool) Do(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	w := jobWrapper{job: job, ctx: ctx, done: make(chan error, 1)}

	select {
	case p.jobs <- w:
		p.submitted.Add(1)
		p.ensureWorker()
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-w.done
}

func (p *RenderPool) ensureWorker() {
	for {
		current := p.workers.Load()
		if current >= int32(p.size) {
			return
		}
		if p.workers.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *RenderPool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	for w := range p.jobs {
		p.active.Add(1)
		err := p.run(w)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		w.done <- err
	}
}

func (p *RenderPool) run(w jobWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("render job panicked", zap.Any("panic", r))
			err = fmt.Errorf("render job panicked: %v", r)
		}
	}()
	return w.job(w.ctx)
}

// Close stops accepting jobs and waits for workers to drain.
func (p *RenderPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
}

// Stats returns a snapshot of pool activity.
func (p *RenderPool) Stats() RenderPoolStats {
	return RenderPoolStats{
		Size:      p.size,
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.jobs),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// RenderPoolStats contains pool statistics.
type RenderPoolStats struct {
	Size      int   `json:"size"`
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
