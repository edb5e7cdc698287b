package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/metrics"
)

// Handler processes a job and returns the messages to enqueue into the
// next stage on success. A handler never calls the next stage directly.
type Handler func(ctx context.Context, job *Job) ([]Message, error)

// terminalError is implemented by errors that must not be retried
// (protocol rejections, on-chain failures).
type terminalError interface {
	Terminal() bool
}

// IsTerminal reports whether the error is terminal for its job.
func IsTerminal(err error) bool {
	var te terminalError
	return errors.As(err, &te) && te.Terminal()
}

// Pool 某个队列上的固定大小工作池
type Pool struct {
	store             Store
	queue             string
	handler           Handler
	workers           int
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	backoff           func(attempt int) time.Duration
}

// NewPool creates a worker pool consuming from the named queue.
func NewPool(store Store, queue string, handler Handler, workers int, pollInterval, visibilityTimeout time.Duration, backoff func(attempt int) time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}

	return &Pool{
		store:             store,
		queue:             queue,
		handler:           handler,
		workers:           workers,
		pollInterval:      pollInterval,
		visibilityTimeout: visibilityTimeout,
		backoff:           backoff,
	}
}

// Queue returns the name of the consumed queue.
func (p *Pool) Queue() string {
	return p.queue
}

// Run starts the workers and the expired-job reaper and blocks until the
// context is cancelled. In-flight jobs finish; anything lost is requeued
// later by the visibility timeout.
func (p *Pool) Run(ctx context.Context) {
	log.Info().
		Str("queue", p.queue).
		Int("workers", p.workers).
		Msg("Starting queue workers")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reapLoop(ctx)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workLoop(ctx)
		}()
	}

	wg.Wait()

	log.Info().Str("queue", p.queue).Msg("Queue workers stopped")
}

func (p *Pool) workLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before going back to sleep.
		for {
			if ctx.Err() != nil {
				return
			}

			job, err := p.store.Dequeue(ctx, p.queue)
			if err != nil {
				log.Error().Str("queue", p.queue).Err(err).Msg("Failed to dequeue job")
				break
			}
			if job == nil {
				break
			}

			p.process(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) process(ctx context.Context, job *Job) {
	next, err := p.handler(ctx, job)
	if err == nil {
		if err := p.store.Complete(ctx, job, next...); err != nil {
			log.Error().
				Str("queue", p.queue).
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("Failed to complete job")
			return
		}

		metrics.PipelineJobs.WithLabelValues(p.queue, "completed").Inc()
		return
	}

	if IsTerminal(err) {
		log.Error().
			Str("queue", p.queue).
			Str("job_id", job.ID.String()).
			RawJSON("payload", job.Payload).
			Err(err).
			Msg("Job failed terminally")

		if failErr := p.store.Fail(ctx, job, err); failErr != nil {
			log.Error().Str("job_id", job.ID.String()).Err(failErr).Msg("Failed to mark job failed")
		}

		metrics.PipelineJobs.WithLabelValues(p.queue, "failed").Inc()
		return
	}

	terminal, retryErr := p.store.Retry(ctx, job, p.backoff(job.Attempts), err)
	if retryErr != nil {
		log.Error().Str("job_id", job.ID.String()).Err(retryErr).Msg("Failed to requeue job")
		return
	}

	if terminal {
		log.Error().
			Str("queue", p.queue).
			Str("job_id", job.ID.String()).
			RawJSON("payload", job.Payload).
			Int("attempts", job.Attempts).
			Err(err).
			Msg("Job exhausted its retry budget")

		metrics.PipelineJobs.WithLabelValues(p.queue, "failed").Inc()
		return
	}

	log.Warn().
		Str("queue", p.queue).
		Str("job_id", job.ID.String()).
		Int("attempts", job.Attempts).
		Err(err).
		Msg("Job requeued after transient failure")

	metrics.PipelineJobs.WithLabelValues(p.queue, "requeued").Inc()
}

func (p *Pool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.visibilityTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := p.store.ReapExpired(ctx, p.queue, p.visibilityTimeout)
			if err != nil {
				log.Error().Str("queue", p.queue).Err(err).Msg("Failed to reap expired jobs")
				continue
			}

			if reaped > 0 {
				log.Warn().
					Str("queue", p.queue).
					Int("reaped", reaped).
					Msg("Requeued jobs with expired visibility")
			}
		}
	}
}
