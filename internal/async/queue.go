// Package async runs extraction jobs on a bounded worker pool so that job
// creation returns as soon as the job is queued.
package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by Dispatch after Shutdown started.
var ErrQueueClosed = errors.New("dispatch queue is shut down")

// Handler processes one job.
type Handler func(ctx context.Context, jobID string) error

// Queue is a fixed pool of workers fed by a buffered channel.
type Queue struct {
	handle  Handler
	logger  zerolog.Logger
	workers int
	timeout time.Duration

	ch     chan string
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets how many jobs may wait for a worker.
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

// WithProcessTimeout bounds a single handler run.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// New starts a queue that runs handle for every dispatched job id.
func New(handle Handler, logger zerolog.Logger, opts ...Option) *Queue {
	base, cancel := context.WithCancel(context.Background())
	q := &Queue{
		handle:  handle,
		logger:  logger.With().Str("component", "dispatch").Logger(),
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan string, 256),
		done:    make(chan struct{}),
		base:    base,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()
	lg := q.logger.With().Int("worker_id", workerID).Logger()
	lg.Debug().Msg("worker started")
	defer lg.Debug().Msg("worker stopped")

	for {
		select {
		case jobID := <-q.ch:
			q.process(lg, jobID)
		case <-q.done:
			// Drain what was queued before Shutdown.
			for {
				select {
				case jobID := <-q.ch:
					q.process(lg, jobID)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) process(lg zerolog.Logger, jobID string) {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	start := time.Now()
	if err := q.run(ctx, jobID); err != nil {
		lg.Error().Err(err).Str("job_id", jobID).Dur("elapsed", time.Since(start)).Msg("job processing failed")
		return
	}
	lg.Info().Str("job_id", jobID).Dur("elapsed", time.Since(start)).Msg("job processed")
}

// run shields the worker from a panicking handler.
func (q *Queue) run(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("job_id", jobID).Msg("handler panicked")
			err = errors.New("handler panicked")
		}
	}()
	return q.handle(ctx, jobID)
}

// Dispatch queues jobID. When the buffer is full it waits for room until
// ctx is done or Shutdown starts. A job that slips into the buffer after the
// workers drained it is left for stuck-job recovery.
func (q *Queue) Dispatch(ctx context.Context, jobID string) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		q.mu.RUnlock()
		q.logger.Debug().Str("job_id", jobID).Msg("job queued")
		return nil
	default:
	}
	q.mu.RUnlock()

	q.logger.Warn().Str("job_id", jobID).Int("queued", len(q.ch)).Msg("queue full, applying backpressure")
	select {
	case q.ch <- jobID:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports how many jobs are waiting for a worker.
func (q *Queue) Len() int { return len(q.ch) }

// Shutdown stops accepting jobs and waits for queued jobs to drain. If ctx
// ends first, in-flight handlers are cancelled; their jobs are left for
// stuck-job recovery.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn().Msg("shutdown interrupted, in-flight jobs cancelled")
	case <-done:
		q.cancel()
		q.logger.Info().Msg("queue drained, shutdown complete")
	}
}
