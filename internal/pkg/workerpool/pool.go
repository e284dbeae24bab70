package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("worker pool queue full")

type Job func(ctx context.Context)

// WorkerPool runs independent jobs on a fixed set of workers. The analytics
// layer uses it to fan out one fetch per question.
type WorkerPool struct {
	queue chan Job
	wg    sync.WaitGroup
	log   *slog.Logger
}

func NewWorkerPool(ctx context.Context, workerCount int, queueSize int, log *slog.Logger) *WorkerPool {
	if log == nil {
		log = slog.Default()
	}

	pool := &WorkerPool{
		queue: make(chan Job, queueSize),
		log:   log,
	}

	for i := 0; i < workerCount; i++ {
		go pool.worker(ctx)
	}

	return pool
}

func (p *WorkerPool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("worker received shutdown signal")
			return
		case job, ok := <-p.queue:
			if !ok {
				// queue closed
				return
			}
			p.wg.Add(1)
			job(ctx)
			p.wg.Done()
		}
	}
}

// Submit enqueues a job, or reports ErrQueueFull so the caller can decide
// whether to run it inline or drop it.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) Shutdown(ctx context.Context) {
	close(p.queue)

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		p.log.Warn("worker pool shutdown timed out")
	case <-done:
		p.log.Info("worker pool shutdown complete")
	}
}

// WithRetry wraps a fallible job with a bounded retry loop.
func WithRetry(retries int, delay time.Duration, log *slog.Logger, job func() error) Job {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context) {
		for i := 0; i < retries; i++ {
			if ctx.Err() != nil {
				log.Debug("job canceled before execution")
				return
			}

			err := job()
			if err == nil {
				return
			}

			log.Warn("job failed", "attempt", i+1, "retries", retries, "err", err)
			time.Sleep(delay)
		}
		log.Error("job failed after max retries", "retries", retries)
	}
}
