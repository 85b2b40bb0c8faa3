package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// JobType names a handler's work kind, matching the `job_type` column.
type JobType string

// ResultKind classifies a handler's outcome.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFailed
	ResultRetry
)

// Result is what a handler's Execute returns: exactly one of success
// (with an optional payload), a terminal failure reason, or a retryable
// failure reason.
type Result struct {
	Kind    ResultKind
	Payload json.RawMessage
	Reason  string
}

func Success(payload json.RawMessage) Result { return Result{Kind: ResultSuccess, Payload: payload} }
func Failed(reason string) Result            { return Result{Kind: ResultFailed, Reason: reason} }
func RetryResult(reason string) Result       { return Result{Kind: ResultRetry, Reason: reason} }

// Context is everything a handler needs to execute one claimed job.
type Context struct {
	context.Context
	Job      Job
	Progress *ThrottledProgress
}

// ReportProgress is the sink handlers call to emit progress; the queue
// throttles the underlying writes.
func (c *Context) ReportProgress(ctx context.Context, percent int, message string) error {
	return c.Progress.Report(ctx, percent, message)
}

// Handler executes jobs of exactly one JobType.
type Handler interface {
	JobType() JobType
	CanHandle(t JobType) bool
	Execute(jc *Context) (Result, error)
}

// Registry maps each JobType to exactly one handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[JobType]Handler{}}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.JobType()] = h
}

func (r *Registry) Resolve(t JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Notifier is told the terminal outcome of one executed job, so callers can
// publish job.succeeded/job.failed events without the queue itself taking
// a dependency on the event bus.
type Notifier func(job Job, succeeded bool, reason string)

// Worker repeatedly claims and executes jobs from a Queue using a
// Registry of handlers until its context is cancelled.
type Worker struct {
	ID            string
	Queue         *Queue
	Registry      *Registry
	LeaseDuration time.Duration
	PollInterval  time.Duration
	Notify        Notifier
}

// Run loops RunOnce until ctx is done, sleeping PollInterval between polls
// whenever no job was available to claim.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		claimed, err := RunOnce(ctx, w.ID, w.Queue, w.Registry, w.LeaseDuration, w.Notify)
		if err != nil || !claimed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.PollInterval):
			}
		}
	}
}

// RunOnce claims a single job (if one is available) and executes it to
// completion, applying the retry policy on failure. notify, if non-nil, is
// called once with the terminal outcome.
func RunOnce(ctx context.Context, id string, q *Queue, reg *Registry, leaseDuration time.Duration, notify Notifier) (claimed bool, err error) {
	job, err := q.Claim(ctx, id, leaseDuration)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// A failure is terminal only when Retry will mark the job failed instead
	// of re-queueing it, i.e. once retry_count has reached max_retries.
	notifyFailure := func(reason string) {
		if notify != nil && job.RetryCount >= job.MaxRetries {
			notify(*job, false, reason)
		}
	}

	h, ok := reg.Resolve(JobType(job.JobType))
	if !ok {
		reason := "no handler registered for job type " + job.JobType
		notifyFailure(reason)
		return true, q.Retry(ctx, job.ID, reason)
	}

	jc := &Context{Context: ctx, Job: *job, Progress: NewThrottledProgress(q, job.ID)}
	result, execErr := h.Execute(jc)
	if execErr != nil {
		notifyFailure(execErr.Error())
		return true, q.Retry(ctx, job.ID, execErr.Error())
	}

	switch result.Kind {
	case ResultSuccess:
		if notify != nil {
			notify(*job, true, "")
		}
		return true, q.Complete(ctx, job.ID, result.Payload)
	case ResultRetry, ResultFailed:
		notifyFailure(result.Reason)
		return true, q.Retry(ctx, job.ID, result.Reason)
	default:
		reason := "handler returned unknown result kind"
		notifyFailure(reason)
		return true, q.Retry(ctx, job.ID, reason)
	}
}
