// Package jobs implements the job queue: typed, at-least-once work items
// with priority claim, lease-based reservation, retry with jittered
// exponential backoff, and throttled progress reporting.
package jobs

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matric/internal/matricerr"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one row of the shared job table. Jobs reference an owning archive
// so a single worker pool can serve every tenant.
type Job struct {
	ID          uuid.UUID
	ArchiveID   uuid.UUID
	JobType     string
	Priority    int
	Status      Status
	Payload     json.RawMessage
	NoteID      *uuid.UUID
	Progress    int
	Message     string
	RetryCount  int
	MaxRetries  int
	ClaimedBy   *string
	LeaseUntil  *time.Time
	Result      json.RawMessage
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RunAfter    time.Time
}

// Queue persists and claims jobs from the shared `job` table.
type Queue struct {
	pool *pgxpool.Pool
}

func NewQueue(pool *pgxpool.Pool) *Queue { return &Queue{pool: pool} }

func (q *Queue) InitSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.job (
			id UUID PRIMARY KEY,
			archive_id UUID NOT NULL,
			job_type TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			payload JSONB NOT NULL DEFAULT '{}',
			note_id UUID,
			progress INT NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 5,
			claimed_by TEXT,
			lease_until TIMESTAMPTZ,
			result JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			run_after TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return matricerr.Database(err, "failed to init job table")
	}
	_, err = q.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS job_claimable_idx ON public.job (status, run_after, priority DESC)
		WHERE status = 'pending'
	`)
	if err != nil {
		return matricerr.Database(err, "failed to init job claim index")
	}
	return nil
}

// Enqueue inserts a new pending job.
func (q *Queue) Enqueue(ctx context.Context, archiveID uuid.UUID, jobType string, priority int, payload json.RawMessage, noteID *uuid.UUID, maxRetries int) (uuid.UUID, error) {
	id := uuid.Must(uuid.NewV7())
	_, err := q.pool.Exec(ctx, `
		INSERT INTO public.job (id, archive_id, job_type, priority, status, payload, note_id, max_retries)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
	`, id, archiveID, jobType, priority, payload, noteID, maxRetries)
	if err != nil {
		return uuid.Nil, matricerr.Database(err, "failed to enqueue job")
	}
	return id, nil
}

// Claim atomically picks the highest-priority runnable pending job, using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never contend on
// the same row, and marks it running under a lease held by workerID.
func (q *Queue) Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, matricerr.Database(err, "failed to begin claim transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		SELECT id FROM public.job
		WHERE status = 'pending' AND run_after <= $1
		ORDER BY priority DESC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, now)

	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, matricerr.Database(err, "failed to select claimable job")
	}

	leaseUntil := now.Add(leaseDuration)
	updateRow := tx.QueryRow(ctx, `
		UPDATE public.job SET status = 'running', claimed_by = $2, lease_until = $3, updated_at = $4
		WHERE id = $1
		RETURNING id, archive_id, job_type, priority, status, payload, note_id, progress, message,
			retry_count, max_retries, claimed_by, lease_until, result, error, created_at, updated_at, run_after
	`, id, workerID, leaseUntil, now)

	job, err := scanJob(updateRow)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, matricerr.Database(err, "failed to commit claim")
	}
	return &job, nil
}

// ReclaimExpiredLeases returns any `running` job whose lease has elapsed
// back to `pending`, so a worker that died mid-job doesn't strand it.
func (q *Queue) ReclaimExpiredLeases(ctx context.Context) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE public.job SET status = 'pending', claimed_by = NULL, lease_until = NULL
		WHERE status = 'running' AND lease_until < now()
	`)
	if err != nil {
		return 0, matricerr.Database(err, "failed to reclaim expired leases")
	}
	return int(tag.RowsAffected()), nil
}

// ThrottledProgress reports job progress no more than once per second,
// per the dispatch contract.
type ThrottledProgress struct {
	q      *Queue
	jobID  uuid.UUID
	last   time.Time
	min    time.Duration
}

func NewThrottledProgress(q *Queue, jobID uuid.UUID) *ThrottledProgress {
	return &ThrottledProgress{q: q, jobID: jobID, min: time.Second}
}

// Report writes progress if at least `min` has elapsed since the last
// write, or if percent is 100 (always flush the terminal update).
func (p *ThrottledProgress) Report(ctx context.Context, percent int, message string) error {
	now := time.Now()
	if percent < 100 && now.Sub(p.last) < p.min {
		return nil
	}
	p.last = now
	_, err := p.q.pool.Exec(ctx, `UPDATE public.job SET progress = $2, message = $3, updated_at = now() WHERE id = $1`, p.jobID, percent, message)
	if err != nil {
		return matricerr.Database(err, "failed to write job progress")
	}
	return nil
}

// Complete marks a job succeeded with an optional result payload.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE public.job SET status = 'succeeded', progress = 100, result = $2, updated_at = now()
		WHERE id = $1
	`, jobID, result)
	if err != nil {
		return matricerr.Database(err, "failed to complete job")
	}
	return nil
}

// backoffBase is the base duration for exponential retry backoff: base *
// 2^retry_count, jittered by up to +/-20% to avoid thundering herds.
const backoffBase = 2 * time.Second

func backoffFor(retryCount int) time.Duration {
	d := backoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
	}
	jitter := time.Duration(float64(d) * (rand.Float64()*0.4 - 0.2))
	return d + jitter
}

// Retry transitions a failed/retry job back to pending with backoff if
// retry_count is under max_retries, or to terminal `failed` at the cap.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID, reason string) error {
	row := q.pool.QueryRow(ctx, `SELECT retry_count, max_retries FROM public.job WHERE id = $1`, jobID)
	var retryCount, maxRetries int
	if err := row.Scan(&retryCount, &maxRetries); err != nil {
		return matricerr.Database(err, "failed to read job retry state")
	}

	if retryCount >= maxRetries {
		_, err := q.pool.Exec(ctx, `
			UPDATE public.job SET status = 'failed', error = $2, updated_at = now()
			WHERE id = $1
		`, jobID, reason)
		if err != nil {
			return matricerr.Database(err, "failed to mark job failed")
		}
		return nil
	}

	runAfter := time.Now().UTC().Add(backoffFor(retryCount))
	_, err := q.pool.Exec(ctx, `
		UPDATE public.job SET status = 'pending', retry_count = retry_count + 1, error = $2,
			run_after = $3, claimed_by = NULL, lease_until = NULL, updated_at = now()
		WHERE id = $1
	`, jobID, reason, runAfter)
	if err != nil {
		return matricerr.Database(err, "failed to schedule job retry")
	}
	return nil
}

// Cancel marks a job terminally cancelled; cancelled jobs cannot be resumed.
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE public.job SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status NOT IN ('succeeded', 'cancelled')
	`, jobID)
	if err != nil {
		return matricerr.Database(err, "failed to cancel job")
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var status string
	err := row.Scan(&j.ID, &j.ArchiveID, &j.JobType, &j.Priority, &status, &j.Payload, &j.NoteID,
		&j.Progress, &j.Message, &j.RetryCount, &j.MaxRetries, &j.ClaimedBy, &j.LeaseUntil,
		&j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.RunAfter)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Job{}, matricerr.NotFound("job not found")
		}
		return Job{}, matricerr.Database(err, "failed to scan job row")
	}
	j.Status = Status(status)
	return j, nil
}
