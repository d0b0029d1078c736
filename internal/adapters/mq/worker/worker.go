// Package worker runs queued sampling jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/volregime/internal/adapters/mq/queue"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
)

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Runner executes one job. It must return promptly once ctx is done.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// InMemoryWorker pulls jobs from a queue and hands them to a Runner.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	name   string
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, r Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  q,
		runner: r,
		name:   "worker",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.OrNop("worker")
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes jobs until the queue is drained, ctx is done, or a job
// fails. The first failing job ends the worker.
func (w *InMemoryWorker) Run(ctx context.Context) error {
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			metrics.UpdateQueueSize(len(jobs))
			if err := w.process(ctx, job); err != nil {
				return err
			}
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerJobLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.runner.Run(ctx, job); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "job_error")
		w.logger.Debug(ctx, "job failed", logger.Int("chain", job.ChainID), logger.Error(err))
		return fmt.Errorf("chain %d: %w", job.ChainID, err)
	}
	return nil
}

// Pool manages multiple workers and joins them.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger

	wg     sync.WaitGroup
	once   sync.Once
	err    error
	cancel context.CancelFunc
}

// NewPool creates a pool of workerCount workers over one queue. A
// non-positive count uses runtime.NumCPU.
func NewPool(workerCount int, q Queue, r Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.OrNop("worker-pool"),
	}
	for i := range pool.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, r, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker. The first job error cancels the others.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.once.Do(func() {
					p.err = err
					p.cancel()
				})
			}
		}(w)
	}
	p.logger.Debug(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Wait blocks until every worker has returned and reports the first error.
func (p *Pool) Wait() error {
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	return p.err
}
