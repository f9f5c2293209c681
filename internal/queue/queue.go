// Package queue implements the asynchronous content-generation job queue:
// per-type priority queues with retries, exponential backoff, a dead-letter
// path, batch tracking, and daily statistics, all on a shared key-value
// store. Multiple worker processes may run against the same store; every
// transition that must not race relies on the store's atomic primitives
// (ZPOPMAX, HINCRBY, pipelines) and partial failures are reconciled by the
// maintenance sweep rather than prevented up front.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/medvoyage/content-service/internal/kvstore"
	"github.com/medvoyage/content-service/internal/pkg/cuid2"
)

var (
	// ErrNoJob signals an empty queue; callers treat it as expected.
	ErrNoJob = errors.New("queue: no job available")
	// ErrJobNotFound signals an unknown or purged job id.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrNotCancellable signals a cancel attempt on a job past pending.
	ErrNotCancellable = errors.New("queue: job is not pending")
	// ErrNotDead signals a replay attempt on a job that is not dead-lettered.
	ErrNotDead = errors.New("queue: job is not dead-lettered")
)

// Queue coordinates all job and batch state in the shared store.
type Queue struct {
	store   kvstore.Store
	policy  Policy
	logger  *zerolog.Logger
	metrics *MetricsRecorder
	nowFn   func() time.Time
}

// New creates a queue over the given store.
func New(store kvstore.Store, policy Policy, logger *zerolog.Logger) *Queue {
	return &Queue{
		store:   store,
		policy:  policy,
		logger:  logger,
		metrics: NewMetricsRecorder(),
		nowFn:   time.Now,
	}
}

// SetClock overrides the queue's clock. Tests only.
func (q *Queue) SetClock(now func() time.Time) { q.nowFn = now }

// Policy returns the active retry and retention constants.
func (q *Queue) Policy() Policy { return q.policy }

func (q *Queue) now() time.Time { return q.nowFn() }

func (q *Queue) nowMs() int64 { return q.nowFn().UnixMilli() }

// EnqueueInput describes one job submission.
type EnqueueInput struct {
	Type JobType
	// Payload must match Type; it is serialized as the job's payload blob.
	Payload interface{}
	// Priority defaults to normal.
	Priority Priority
	// ScheduledAt defers execution; zero means eligible immediately.
	ScheduledAt time.Time
	// MaxAttempts overrides the policy default when > 0.
	MaxAttempts int
	BatchID     string
}

// Enqueue stores a new pending job and makes it visible for dequeue. The
// record is written before the queue index so a dequeuer can never pop an id
// whose record does not exist yet.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*Job, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("enqueue: unknown job type %q", in.Type)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("enqueue: unknown priority %q", priority)
	}
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue: marshal payload: %w", err)
	}
	if _, err := DecodePayload(in.Type, payload); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	now := q.now()
	nowMs := now.UnixMilli()
	scheduledAt := nowMs
	if !in.ScheduledAt.IsZero() && in.ScheduledAt.After(now) {
		scheduledAt = in.ScheduledAt.UnixMilli()
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.policy.MaxAttempts
	}

	job := &Job{
		ID:          cuid2.New("job"),
		Type:        in.Type,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		BatchID:     in.BatchID,
		CreatedAt:   nowMs,
		UpdatedAt:   nowMs,
		ScheduledAt: scheduledAt,
	}

	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		if scheduledAt > nowMs {
			p.ZAdd(delayedKey(job.Type), kvstore.Z{Score: float64(scheduledAt), Member: job.ID})
		} else {
			p.ZAdd(pendingKey(job.Type), kvstore.Z{Score: queueScore(priority, scheduledAt), Member: job.ID})
		}
		if job.BatchID != "" {
			p.SAdd(batchJobsKey(job.BatchID), job.ID)
			p.Expire(batchJobsKey(job.BatchID), q.policy.JobTTL)
		}
		p.Expire(jobsKey, q.policy.JobTTL)
		q.incrStat(p, job.Type, EventEnqueued)
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}

	q.metrics.RecordEnqueued(job.Type)
	q.logger.Debug().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Str("priority", string(priority)).
		Int64("scheduled_at", scheduledAt).
		Msg("Job enqueued")
	return job, nil
}

// Dequeue atomically pops the highest-priority ready job of the given type
// and checks it out for processing. Returns ErrNoJob when nothing is ready.
func (q *Queue) Dequeue(ctx context.Context, t JobType) (*Job, error) {
	// Promote delayed jobs whose backoff or schedule has elapsed so they
	// compete for this pop. Strict not-before semantics: a job never leaves
	// the delayed set before its ready time.
	if _, err := q.PromoteDue(ctx, t); err != nil {
		q.logger.Warn().Err(err).Str("job_type", string(t)).Msg("Failed to promote due jobs")
	}

	entry, ok, err := q.store.ZPopMax(ctx, pendingKey(t))
	if err != nil {
		return nil, fmt.Errorf("dequeue pop %s: %w", t, err)
	}
	if !ok {
		return nil, ErrNoJob
	}

	job, err := q.loadJob(ctx, entry.Member)
	if errors.Is(err, ErrJobNotFound) {
		// Orphan index entry, e.g. after manual data repair. The pop already
		// removed it; carry on as if the queue were empty.
		q.logger.Warn().Str("job_id", entry.Member).Msg("Queue entry without job record")
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}

	nowMs := q.nowMs()
	job.Status = StatusProcessing
	job.StartedAt = nowMs
	job.UpdatedAt = nowMs
	deadline := nowMs + q.policy.ProcessingTimeout.Milliseconds()

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("dequeue marshal %s: %w", job.ID, err)
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.HSet(jobsKey, job.ID, string(raw))
		p.ZAdd(processingKey, kvstore.Z{Score: float64(deadline), Member: job.ID})
		q.incrStat(p, job.Type, EventProcessing)
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue checkout %s: %w", job.ID, err)
	}

	q.logger.Debug().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("attempts", job.Attempts).
		Msg("Job dequeued")
	return job, nil
}

// Complete marks a processing job as succeeded and records its result.
// Completing an already-completed job is a no-op, so a retried maintenance
// sweep can never double-count a batch member.
func (q *Queue) Complete(ctx context.Context, id string, result interface{}) error {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == StatusCompleted {
		return nil
	}
	if job.Status != StatusProcessing {
		return fmt.Errorf("complete %s: job is %s, not processing", id, job.Status)
	}

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("complete %s: marshal result: %w", id, err)
		}
		job.Result = raw
	}
	nowMs := q.nowMs()
	job.Status = StatusCompleted
	job.CompletedAt = nowMs
	job.UpdatedAt = nowMs
	job.Error = ""

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("complete %s: marshal job: %w", id, err)
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.HSet(jobsKey, job.ID, string(raw))
		p.ZRem(processingKey, job.ID)
		q.incrStat(p, job.Type, EventCompleted)
	})
	if err != nil {
		return fmt.Errorf("complete %s: %w", id, err)
	}

	q.metrics.RecordCompleted(job.Type)
	q.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Msg("Job completed")

	if job.BatchID != "" {
		if err := q.recordBatchOutcome(ctx, job.BatchID, true); err != nil {
			q.logger.Error().Err(err).Str("batch_id", job.BatchID).Msg("Failed to record batch completion")
		}
	}
	return nil
}

// Fail applies the retry-or-dead-letter policy to a processing job. Failing
// a completed or dead job is a no-op. The retried job re-enters through the
// delayed set so its backoff delay is always respected.
func (q *Queue) Fail(ctx context.Context, id, reason string) error {
	_, err := q.fail(ctx, id, reason)
	return err
}

// fail reports whether the job actually left processing: false when it was
// already finished by a racing worker.
func (q *Queue) fail(ctx context.Context, id, reason string) (bool, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job.Status != StatusProcessing {
		q.logger.Debug().
			Str("job_id", id).
			Str("status", string(job.Status)).
			Msg("Ignoring fail on non-processing job")
		return false, nil
	}

	nowMs := q.nowMs()
	job.Attempts++
	job.Error = reason
	job.UpdatedAt = nowMs

	if job.Attempts < job.MaxAttempts {
		delay := q.policy.RetryDelay(job.Attempts)
		// Failed means waiting out the backoff; promotion flips it back to
		// pending once the ready time passes.
		job.Status = StatusFailed
		job.ScheduledAt = nowMs + delay.Milliseconds()

		raw, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("fail %s: marshal job: %w", id, err)
		}
		err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
			p.HSet(jobsKey, job.ID, string(raw))
			p.ZRem(processingKey, job.ID)
			p.ZAdd(delayedKey(job.Type), kvstore.Z{Score: float64(job.ScheduledAt), Member: job.ID})
			q.incrStat(p, job.Type, EventRetried)
		})
		if err != nil {
			return false, fmt.Errorf("fail %s: %w", id, err)
		}

		q.metrics.RecordRetried(job.Type)
		q.logger.Warn().
			Str("job_id", job.ID).
			Str("job_type", string(job.Type)).
			Int("attempts", job.Attempts).
			Int("max_attempts", job.MaxAttempts).
			Dur("retry_in", delay).
			Str("error", reason).
			Msg("Job failed, retry scheduled")
		return true, nil
	}

	job.Status = StatusDead
	job.FailedAt = nowMs
	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("fail %s: marshal job: %w", id, err)
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.HSet(jobsKey, job.ID, string(raw))
		p.ZRem(processingKey, job.ID)
		p.ZAdd(deadKey, kvstore.Z{Score: float64(nowMs), Member: job.ID})
		p.LPush(recentFailuresKey, fmt.Sprintf("%s\t%d\t%s", job.ID, nowMs, reason))
		p.LTrim(recentFailuresKey, 0, recentFailuresMax-1)
		q.incrStat(p, job.Type, EventDead)
	})
	if err != nil {
		return false, fmt.Errorf("fail %s: %w", id, err)
	}

	q.metrics.RecordDead(job.Type)
	q.logger.Error().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("attempts", job.Attempts).
		Str("error", reason).
		Msg("Job dead-lettered")

	if job.BatchID != "" {
		if err := q.recordBatchOutcome(ctx, job.BatchID, false); err != nil {
			q.logger.Error().Err(err).Str("batch_id", job.BatchID).Msg("Failed to record batch failure")
		}
	}
	return true, nil
}

// Cancel removes a pending job from its queue and deletes its record. A job
// already checked out cannot be cancelled; it completes, fails, or is
// recovered by the processing-timeout sweep.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusPending {
		return ErrNotCancellable
	}

	// The batch hash carries its own TTL. An unguarded HINCRBY on an expired
	// key would resurrect it as a hash holding only total = -1, so batch
	// bookkeeping happens only while the record is still there.
	batchAlive := false
	if job.BatchID != "" {
		switch _, err := q.GetBatch(ctx, job.BatchID); {
		case err == nil:
			batchAlive = true
		case !errors.Is(err, ErrBatchNotFound):
			return fmt.Errorf("cancel %s: %w", id, err)
		}
	}

	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.ZRem(pendingKey(job.Type), job.ID)
		p.ZRem(delayedKey(job.Type), job.ID)
		p.HDel(jobsKey, job.ID)
		if batchAlive {
			p.SRem(batchJobsKey(job.BatchID), job.ID)
			// Keep the batch terminality invariant intact when a member
			// leaves the cohort before running.
			p.HIncrBy(batchKey(job.BatchID), batchFieldTotal, -1)
		}
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	if batchAlive {
		if err := q.recomputeBatch(ctx, job.BatchID); err != nil {
			q.logger.Error().Err(err).Str("batch_id", job.BatchID).Msg("Failed to recompute batch after cancel")
		}
	}
	q.logger.Info().Str("job_id", id).Msg("Job cancelled")
	return nil
}

// Replay resubmits a dead-lettered job as if fresh: attempts and error are
// reset and it becomes dequeue-eligible immediately.
func (q *Queue) Replay(ctx context.Context, id string) (*Job, error) {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusDead {
		return nil, ErrNotDead
	}

	nowMs := q.nowMs()
	job.Status = StatusPending
	job.Attempts = 0
	job.Error = ""
	job.FailedAt = 0
	job.ScheduledAt = nowMs
	job.UpdatedAt = nowMs

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("replay %s: marshal job: %w", id, err)
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.ZRem(deadKey, job.ID)
		p.HSet(jobsKey, job.ID, string(raw))
		p.ZAdd(pendingKey(job.Type), kvstore.Z{Score: queueScore(job.Priority, nowMs), Member: job.ID})
		q.incrStat(p, job.Type, EventEnqueued)
	})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", id, err)
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Msg("Dead job replayed")
	return job, nil
}

// Get returns the stored record for a job id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.loadJob(ctx, id)
}

// ListByStatus scans all job records and returns those in the given status,
// oldest first, capped at limit.
func (q *Queue) ListByStatus(ctx context.Context, status Status, limit int) ([]*Job, error) {
	all, err := q.store.HGetAll(ctx, jobsKey)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*Job, 0)
	for id, raw := range all {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn().Str("job_id", id).Err(err).Msg("Skipping unreadable job record")
			continue
		}
		if job.Status == status {
			jobs = append(jobs, &job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt < jobs[j].CreatedAt })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.store.HGet(ctx, jobsKey, id)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("load job %s: unmarshal: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("save job %s: marshal: %w", job.ID, err)
	}
	if err := q.store.HSet(ctx, jobsKey, job.ID, string(raw)); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
