package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/medvoyage/content-service/internal/kvstore"
	"github.com/medvoyage/content-service/internal/pkg/cuid2"
)

// ErrBatchNotFound signals an unknown or expired batch id.
var ErrBatchNotFound = errors.New("queue: batch not found")

// Batch records live in a hash with one field per attribute so the counters
// can be bumped with atomic HINCRBY under concurrent workers.
const (
	batchFieldTotal       = "total"
	batchFieldCompleted   = "completed"
	batchFieldFailed      = "failed"
	batchFieldStatus      = "status"
	batchFieldKeywords    = "keywords"
	batchFieldRequestedBy = "requested_by"
	batchFieldAutoPublish = "auto_publish"
	batchFieldCreatedAt   = "created_at"
	batchFieldUpdatedAt   = "updated_at"
)

// BatchInput describes one batch submission: one content-generation job per
// keyword, all for the same locale.
type BatchInput struct {
	Keywords    []string
	Locale      string
	CategoryID  string
	Priority    Priority
	RequestedBy string
	AutoPublish bool
}

// EnqueueBatch creates the batch record and then enqueues each member job
// tagged with the batch id. Members are independent jobs; aggregation happens
// only as they complete or die.
func (q *Queue) EnqueueBatch(ctx context.Context, in BatchInput) (*Batch, []*Job, error) {
	if len(in.Keywords) == 0 {
		return nil, nil, fmt.Errorf("enqueue batch: no keywords")
	}

	nowMs := q.nowMs()
	batch := &Batch{
		ID:          cuid2.New("bat"),
		Keywords:    in.Keywords,
		Total:       len(in.Keywords),
		Status:      BatchPending,
		RequestedBy: in.RequestedBy,
		AutoPublish: in.AutoPublish,
		CreatedAt:   nowMs,
		UpdatedAt:   nowMs,
	}

	keywords, err := json.Marshal(in.Keywords)
	if err != nil {
		return nil, nil, fmt.Errorf("enqueue batch: marshal keywords: %w", err)
	}
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		key := batchKey(batch.ID)
		p.HSet(key, batchFieldTotal, strconv.Itoa(batch.Total))
		p.HSet(key, batchFieldCompleted, "0")
		p.HSet(key, batchFieldFailed, "0")
		p.HSet(key, batchFieldStatus, string(BatchPending))
		p.HSet(key, batchFieldKeywords, string(keywords))
		p.HSet(key, batchFieldRequestedBy, in.RequestedBy)
		p.HSet(key, batchFieldAutoPublish, strconv.FormatBool(in.AutoPublish))
		p.HSet(key, batchFieldCreatedAt, strconv.FormatInt(nowMs, 10))
		p.HSet(key, batchFieldUpdatedAt, strconv.FormatInt(nowMs, 10))
		p.Expire(key, q.policy.JobTTL)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("enqueue batch: %w", err)
	}

	jobs := make([]*Job, 0, len(in.Keywords))
	for _, keyword := range in.Keywords {
		job, err := q.Enqueue(ctx, EnqueueInput{
			Type: TypeContent,
			Payload: ContentPayload{
				Keyword:     keyword,
				Locale:      in.Locale,
				CategoryID:  in.CategoryID,
				AutoPublish: in.AutoPublish,
			},
			Priority: in.Priority,
			BatchID:  batch.ID,
		})
		if err != nil {
			return batch, jobs, fmt.Errorf("enqueue batch member %q: %w", keyword, err)
		}
		jobs = append(jobs, job)
	}

	q.logger.Info().
		Str("batch_id", batch.ID).
		Int("total", batch.Total).
		Str("requested_by", in.RequestedBy).
		Msg("Batch enqueued")
	return batch, jobs, nil
}

// GetBatch returns the batch record for an id.
func (q *Queue) GetBatch(ctx context.Context, id string) (*Batch, error) {
	fields, err := q.store.HGetAll(ctx, batchKey(id))
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrBatchNotFound
	}
	return batchFromFields(id, fields)
}

// BatchProgress is the operator-facing view of a batch, including the member
// currently being processed when one is in flight.
type BatchProgress struct {
	Batch          *Batch `json:"batch"`
	CurrentJobID   string `json:"current_job_id,omitempty"`
	CurrentKeyword string `json:"current_keyword,omitempty"`
}

// Progress reads the batch record plus the currently processing member, if
// any, and surfaces its keyword.
func (q *Queue) Progress(ctx context.Context, id string) (*BatchProgress, error) {
	batch, err := q.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &BatchProgress{Batch: batch}

	members, err := q.store.SMembers(ctx, batchJobsKey(id))
	if err != nil {
		return nil, fmt.Errorf("batch members %s: %w", id, err)
	}
	for _, jobID := range members {
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			continue
		}
		if job.Status != StatusProcessing {
			continue
		}
		out.CurrentJobID = job.ID
		if payload, err := DecodePayload(job.Type, job.Payload); err == nil {
			if content, ok := payload.(ContentPayload); ok {
				out.CurrentKeyword = content.Keyword
			}
		}
		break
	}
	return out, nil
}

// recordBatchOutcome bumps the batch counter for one finished member and
// recomputes the aggregate status. The increment is atomic; the recompute
// converges because it derives only from the atomic counters.
func (q *Queue) recordBatchOutcome(ctx context.Context, batchID string, success bool) error {
	// Skip bookkeeping once the batch hash has expired; an HINCRBY would
	// resurrect the key as a bare counter.
	if _, err := q.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			q.logger.Debug().Str("batch_id", batchID).Msg("Skipping outcome for expired batch")
			return nil
		}
		return err
	}

	field := batchFieldCompleted
	if !success {
		field = batchFieldFailed
	}
	if _, err := q.store.HIncrBy(ctx, batchKey(batchID), field, 1); err != nil {
		return fmt.Errorf("batch %s incr %s: %w", batchID, field, err)
	}
	return q.recomputeBatch(ctx, batchID)
}

// recomputeBatch derives the batch status from its counters: terminal only
// once completed+failed == total, completed iff nothing failed, failed iff
// nothing completed, partial otherwise.
func (q *Queue) recomputeBatch(ctx context.Context, batchID string) error {
	batch, err := q.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	status := batch.Status
	done := batch.Completed + batch.Failed
	switch {
	case batch.Total > 0 && done >= batch.Total:
		switch {
		case batch.Failed == 0:
			status = BatchCompleted
		case batch.Completed == 0:
			status = BatchFailed
		default:
			status = BatchPartial
		}
	case done > 0:
		status = BatchProcessing
	}
	if status == batch.Status {
		return nil
	}

	nowMs := q.nowMs()
	err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
		p.HSet(batchKey(batchID), batchFieldStatus, string(status))
		p.HSet(batchKey(batchID), batchFieldUpdatedAt, strconv.FormatInt(nowMs, 10))
	})
	if err != nil {
		return fmt.Errorf("batch %s status: %w", batchID, err)
	}
	q.logger.Info().
		Str("batch_id", batchID).
		Str("status", string(status)).
		Int("completed", batch.Completed).
		Int("failed", batch.Failed).
		Int("total", batch.Total).
		Msg("Batch status updated")
	return nil
}

func batchFromFields(id string, fields map[string]string) (*Batch, error) {
	batch := &Batch{
		ID:          id,
		Status:      BatchStatus(fields[batchFieldStatus]),
		RequestedBy: fields[batchFieldRequestedBy],
	}
	var err error
	if batch.Total, err = strconv.Atoi(fields[batchFieldTotal]); err != nil {
		return nil, fmt.Errorf("batch %s: bad total %q", id, fields[batchFieldTotal])
	}
	batch.Completed, _ = strconv.Atoi(fields[batchFieldCompleted])
	batch.Failed, _ = strconv.Atoi(fields[batchFieldFailed])
	batch.AutoPublish, _ = strconv.ParseBool(fields[batchFieldAutoPublish])
	batch.CreatedAt, _ = strconv.ParseInt(fields[batchFieldCreatedAt], 10, 64)
	batch.UpdatedAt, _ = strconv.ParseInt(fields[batchFieldUpdatedAt], 10, 64)
	if raw := fields[batchFieldKeywords]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &batch.Keywords); err != nil {
			return nil, fmt.Errorf("batch %s: bad keywords: %w", id, err)
		}
	}
	return batch, nil
}
