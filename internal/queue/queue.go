// Package queue provides the durable, at-least-once job queue the
// migration pipeline stages communicate through.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job 队列中的一个任务
type Job struct {
	ID          uuid.UUID
	Queue       string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
}

// Message 待入队的任务载荷
type Message struct {
	Queue   string
	Payload any
}

// Store 持久化队列存储。Complete 与后继任务的入队在同一事务中提交，
// 保证每个阶段恰好入队一次后继任务。
type Store interface {
	Enqueue(ctx context.Context, msgs ...Message) error
	// Dequeue claims the oldest visible job of the queue, or returns
	// (nil, nil) when the queue is empty.
	Dequeue(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, job *Job, next ...Message) error
	// Retry requeues the job after delay; once the job has exhausted its
	// attempt budget it is marked failed instead and kept for replay.
	Retry(ctx context.Context, job *Job, delay time.Duration, cause error) (terminal bool, err error)
	Fail(ctx context.Context, job *Job, cause error) error
	// ReapExpired requeues processing jobs whose lock is older than the
	// visibility timeout (worker crashed or lost the job).
	ReapExpired(ctx context.Context, queue string, visibilityTimeout time.Duration) (int, error)
}

// PGStore Postgres 实现
type PGStore struct {
	db          *sql.DB
	maxAttempts int
}

// NewPGStore creates the Postgres-backed store.
func NewPGStore(db *sql.DB, maxAttempts int) *PGStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &PGStore{db: db, maxAttempts: maxAttempts}
}

func (s *PGStore) insert(ctx context.Context, execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, msgs []Message) error {
	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal payload for queue %s", msg.Queue)
		}

		_, err = execer.ExecContext(ctx, `
			INSERT INTO pipeline_jobs (id, queue, payload, status, attempts, max_attempts, visible_at)
			VALUES ($1, $2, $3, $4, 0, $5, now())
		`, uuid.New(), msg.Queue, payload, StatusQueued, s.maxAttempts)
		if err != nil {
			return errors.Wrapf(err, "failed to enqueue job into %s", msg.Queue)
		}
	}

	return nil
}

// Enqueue inserts the given messages as queued jobs.
func (s *PGStore) Enqueue(ctx context.Context, msgs ...Message) error {
	return s.insert(ctx, s.db, msgs)
}

// Dequeue claims the oldest visible job with FOR UPDATE SKIP LOCKED so
// concurrent workers never claim the same row.
func (s *PGStore) Dequeue(ctx context.Context, queue string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, attempts = attempts + 1, locked_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM pipeline_jobs
			WHERE queue = $2 AND status = $3 AND visible_at <= now()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, payload, attempts, max_attempts
	`, StatusProcessing, queue, StatusQueued)

	job := &Job{}
	err := row.Scan(&job.ID, &job.Queue, &job.Payload, &job.Attempts, &job.MaxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dequeue from %s", queue)
	}

	return job, nil
}

// Complete marks the job completed and enqueues the next-stage jobs in the
// same transaction.
func (s *PGStore) Complete(ctx context.Context, job *Job, next ...Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, locked_at = NULL, updated_at = now()
		WHERE id = $2 AND status = $3
	`, StatusCompleted, job.ID, StatusProcessing)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", job.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		// The job was reaped while we were processing it; another worker
		// owns it now and will enqueue the next stage itself.
		return errors.Errorf("job %s is no longer processing, dropping result", job.ID)
	}

	if err := s.insert(ctx, tx, next); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit job completion")
}

// Retry requeues the job with the given delay, or fails it terminally once
// the attempt budget is exhausted.
func (s *PGStore) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) (bool, error) {
	if job.Attempts >= job.MaxAttempts {
		return true, s.Fail(ctx, job, cause)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, visible_at = now() + $2 * interval '1 millisecond',
		    locked_at = NULL, last_error = $3, updated_at = now()
		WHERE id = $4
	`, StatusQueued, delay.Milliseconds(), cause.Error(), job.ID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to requeue job %s", job.ID)
	}

	return false, nil
}

// Fail marks the job terminally failed; the row stays visible for manual
// replay.
func (s *PGStore) Fail(ctx context.Context, job *Job, cause error) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, locked_at = NULL, last_error = $2, updated_at = now()
		WHERE id = $3
	`, StatusFailed, cause.Error(), job.ID)

	return errors.Wrapf(err, "failed to mark job %s failed", job.ID)
}

// ReapExpired returns processing jobs to the queue once their lock exceeds
// the visibility timeout.
func (s *PGStore) ReapExpired(ctx context.Context, queue string, visibilityTimeout time.Duration) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, locked_at = NULL, visible_at = now(), updated_at = now()
		WHERE queue = $2 AND status = $3 AND locked_at < now() - $4 * interval '1 millisecond'
	`, StatusQueued, queue, StatusProcessing, visibilityTimeout.Milliseconds())
	if err != nil {
		return 0, errors.Wrapf(err, "failed to reap expired jobs of %s", queue)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}

	return int(affected), nil
}
