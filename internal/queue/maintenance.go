package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/medvoyage/content-service/internal/kvstore"
)

// PromoteDue moves delayed jobs whose ready time has passed into the pending
// queue so dequeuers can pop them. Concurrent promotions are harmless: ZREM
// and ZADD are idempotent per member.
func (q *Queue) PromoteDue(ctx context.Context, t JobType) (int, error) {
	nowMs := q.nowMs()
	ids, err := q.store.ZRangeByScore(ctx, delayedKey(t), math.Inf(-1), float64(nowMs), q.policy.PromoteBatch)
	if err != nil {
		return 0, fmt.Errorf("promote %s: range: %w", t, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	moved := 0
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			// No record to run; drop the orphan index entry.
			if rmErr := q.store.ZRem(ctx, delayedKey(t), id); rmErr != nil {
				return moved, fmt.Errorf("promote %s: drop orphan %s: %w", t, id, rmErr)
			}
			continue
		}
		job.Status = StatusPending
		job.UpdatedAt = nowMs
		raw, err := json.Marshal(job)
		if err != nil {
			return moved, fmt.Errorf("promote %s: marshal %s: %w", t, id, err)
		}
		score := queueScore(job.Priority, job.ScheduledAt)
		err = q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
			p.HSet(jobsKey, id, string(raw))
			p.ZRem(delayedKey(t), id)
			p.ZAdd(pendingKey(t), kvstore.Z{Score: score, Member: id})
		})
		if err != nil {
			return moved, fmt.Errorf("promote %s: move %s: %w", t, id, err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Debug().Str("job_type", string(t)).Int("moved", moved).Msg("Promoted due jobs")
	}
	return moved, nil
}

// ReclaimStale fails every processing job whose deadline has passed. This
// self-heals crashed or hung workers: the job becomes retryable again or,
// once out of attempts, dead-lettered.
func (q *Queue) ReclaimStale(ctx context.Context) (int, error) {
	nowMs := q.nowMs()
	ids, err := q.store.ZRangeByScore(ctx, processingKey, math.Inf(-1), float64(nowMs), 0)
	if err != nil {
		return 0, fmt.Errorf("reclaim: range: %w", err)
	}

	reclaimed := 0
	dropped := 0
	for _, id := range ids {
		moved, err := q.fail(ctx, id, "processing timeout exceeded")
		if errors.Is(err, ErrJobNotFound) {
			// The record vanished under the entry, such as a jobs-hash TTL
			// expiry while the job was checked out. Drop the entry or every
			// future sweep rescans it.
			if err := q.store.ZRem(ctx, processingKey, id); err != nil {
				q.logger.Error().Err(err).Str("job_id", id).Msg("Failed to drop orphan processing entry")
				continue
			}
			dropped++
			q.logger.Warn().Str("job_id", id).Msg("Dropped orphan processing entry")
			continue
		}
		if err != nil {
			q.logger.Error().Err(err).Str("job_id", id).Msg("Failed to reclaim stale job")
			continue
		}
		if !moved {
			// A racing worker finished the job between the range read and
			// the fail. Its own pipeline removes the entry; clear it here in
			// case that pipeline has not landed.
			if err := q.store.ZRem(ctx, processingKey, id); err != nil {
				q.logger.Error().Err(err).Str("job_id", id).Msg("Failed to drop finished processing entry")
			}
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 {
		q.metrics.RecordReclaimed(reclaimed)
		q.logger.Info().Int("reclaimed", reclaimed).Msg("Reclaimed stale processing jobs")
	}
	if dropped > 0 {
		q.logger.Info().Int("dropped", dropped).Msg("Dropped orphan processing entries")
	}
	return reclaimed, nil
}

// PurgeResult counts the records evicted by one purge pass.
type PurgeResult struct {
	Completed int `json:"completed"`
	Dead      int `json:"dead"`
}

// Purge deletes completed job records older than the completed-retention
// window and dead records older than the much longer dead-letter retention,
// leaving operators time to review before loss.
func (q *Queue) Purge(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	all, err := q.store.HGetAll(ctx, jobsKey)
	if err != nil {
		return res, fmt.Errorf("purge: scan: %w", err)
	}

	completedCutoff := q.nowMs() - q.policy.CompletedRetention.Milliseconds()
	deadCutoff := q.nowMs() - q.policy.DeadRetention.Milliseconds()

	for id, raw := range all {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		switch {
		case (job.Status == StatusCompleted || job.Status == StatusFailed) && job.terminalAt() < completedCutoff:
			if err := q.store.HDel(ctx, jobsKey, id); err != nil {
				return res, fmt.Errorf("purge %s: %w", id, err)
			}
			res.Completed++
		case job.Status == StatusDead && job.FailedAt < deadCutoff:
			err := q.store.Pipelined(ctx, func(p kvstore.Pipeline) {
				p.ZRem(deadKey, id)
				p.HDel(jobsKey, id)
			})
			if err != nil {
				return res, fmt.Errorf("purge dead %s: %w", id, err)
			}
			res.Dead++
		}
	}
	if res.Completed > 0 || res.Dead > 0 {
		q.logger.Info().
			Int("completed", res.Completed).
			Int("dead", res.Dead).
			Msg("Purged expired job records")
	}
	return res, nil
}

// terminalAt is the timestamp retention decisions are measured from.
func (j *Job) terminalAt() int64 {
	if j.CompletedAt != 0 {
		return j.CompletedAt
	}
	if j.FailedAt != 0 {
		return j.FailedAt
	}
	return j.UpdatedAt
}
