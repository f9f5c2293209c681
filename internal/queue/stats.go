package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medvoyage/content-service/internal/kvstore"
)

// Event names the counters kept per day and per job type. Counts are
// approximate under concurrency; exact per-job accounting lives on the Job
// record itself.
type Event string

const (
	EventEnqueued   Event = "enqueued"
	EventProcessing Event = "processing"
	EventCompleted  Event = "completed"
	EventRetried    Event = "retried"
	EventDead       Event = "dead"
)

// incrStat queues a daily counter bump onto an already-open pipeline.
func (q *Queue) incrStat(p kvstore.Pipeline, t JobType, ev Event) {
	key := statsKey(q.now())
	p.HIncrBy(key, string(t)+":"+string(ev), 1)
	p.Expire(key, q.policy.StatsRetention)
}

// DayStats holds one day's counters keyed "<type>:<event>".
type DayStats struct {
	Day      string           `json:"day"`
	Counters map[string]int64 `json:"counters"`
}

// StatsForDay reads the counters recorded on the given UTC day.
func (q *Queue) StatsForDay(ctx context.Context, day time.Time) (DayStats, error) {
	fields, err := q.store.HGetAll(ctx, statsKey(day))
	if err != nil {
		return DayStats{}, fmt.Errorf("read stats: %w", err)
	}
	out := DayStats{Day: day.UTC().Format("2006-01-02"), Counters: make(map[string]int64, len(fields))}
	for f, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out.Counters[f] = n
	}
	return out, nil
}

// StatsRange returns counters for the last n days, oldest first.
func (q *Queue) StatsRange(ctx context.Context, days int) ([]DayStats, error) {
	if days < 1 {
		days = 1
	}
	out := make([]DayStats, 0, days)
	today := q.now().UTC()
	for i := days - 1; i >= 0; i-- {
		day, err := q.StatsForDay(ctx, today.AddDate(0, 0, -i))
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

// Depths reports current structure sizes per job type plus the shared
// processing and dead-letter sets.
type Depths struct {
	Pending    map[JobType]int64 `json:"pending"`
	Delayed    map[JobType]int64 `json:"delayed"`
	Processing int64             `json:"processing"`
	Dead       int64             `json:"dead"`
}

// QueueDepths counts the members of every queue structure.
func (q *Queue) QueueDepths(ctx context.Context) (Depths, error) {
	d := Depths{Pending: make(map[JobType]int64), Delayed: make(map[JobType]int64)}
	for _, t := range AllTypes {
		n, err := q.store.ZCard(ctx, pendingKey(t))
		if err != nil {
			return d, fmt.Errorf("pending depth %s: %w", t, err)
		}
		d.Pending[t] = n
		n, err = q.store.ZCard(ctx, delayedKey(t))
		if err != nil {
			return d, fmt.Errorf("delayed depth %s: %w", t, err)
		}
		d.Delayed[t] = n
	}
	var err error
	if d.Processing, err = q.store.ZCard(ctx, processingKey); err != nil {
		return d, fmt.Errorf("processing depth: %w", err)
	}
	if d.Dead, err = q.store.ZCard(ctx, deadKey); err != nil {
		return d, fmt.Errorf("dead depth: %w", err)
	}
	return d, nil
}

// RecentFailures returns the newest dead-letter summaries, newest first.
// Each entry is "<job id>\t<unix ms>\t<error>".
func (q *Queue) RecentFailures(ctx context.Context, limit int64) ([]FailureSummary, error) {
	if limit <= 0 || limit > recentFailuresMax {
		limit = recentFailuresMax
	}
	raw, err := q.store.LRange(ctx, recentFailuresKey, 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("read recent failures: %w", err)
	}
	out := make([]FailureSummary, 0, len(raw))
	for _, line := range raw {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		ms, _ := strconv.ParseInt(parts[1], 10, 64)
		out = append(out, FailureSummary{JobID: parts[0], FailedAt: ms, Error: parts[2]})
	}
	return out, nil
}

// FailureSummary is one line of the operator-facing dead-letter feed.
type FailureSummary struct {
	JobID    string `json:"job_id"`
	FailedAt int64  `json:"failed_at"`
	Error    string `json:"error"`
}
