package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvoyage/content-service/internal/kvstore"
)

func TestPromoteDueMovesOnlyReadyJobs(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	due := mustEnqueue(t, q, EnqueueInput{
		Type:        TypeContent,
		ScheduledAt: clock.Now().Add(time.Minute),
	})
	mustEnqueue(t, q, EnqueueInput{
		Type:        TypeContent,
		ScheduledAt: clock.Now().Add(time.Hour),
	})

	n, err := q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Minute)
	n, err = q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Pending[TypeContent])
	assert.Equal(t, int64(1), depths.Delayed[TypeContent])
}

func TestPromoteDueDropsOrphanEntries(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	store := q.store
	require.NoError(t, store.ZAdd(ctx, delayedKey(TypeContent),
		kvstore.Z{Score: float64(clock.Now().UnixMilli()), Member: "job_vanished"}))

	n, err := q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Zero(t, n)

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Delayed[TypeContent])
}

func TestPromoteDueHonorsBatchLimit(t *testing.T) {
	q, clock := newTestQueue(t)
	q.policy.PromoteBatch = 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustEnqueue(t, q, EnqueueInput{
			Type:        TypeContent,
			ScheduledAt: clock.Now().Add(time.Minute),
		})
	}
	clock.Advance(2 * time.Minute)

	n, err := q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = q.PromoteDue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReclaimStaleRetriesTimedOutJob(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	job := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)

	// Inside the deadline nothing is reclaimed.
	n, err := q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(31 * time.Minute)
	n, err = q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.Error, "processing timeout")

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Processing)
	assert.Equal(t, int64(1), depths.Delayed[TypeContent])
}

func TestReclaimStaleDeadLettersExhaustedJob(t *testing.T) {
	q, clock := newTestQueue(t)
	q.policy.MaxAttempts = 1
	ctx := context.Background()

	job := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	n, err := q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, got.Status)
}

func TestReclaimedJobRunsAgainAfterBackoff(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	job := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = q.ReclaimStale(ctx)
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	redelivered, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	assert.Equal(t, job.ID, redelivered.ID)
	require.NoError(t, q.Complete(ctx, job.ID, nil))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestReclaimStaleDropsOrphanProcessingEntry(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	// A processing entry whose record is gone, as after a jobs-hash TTL
	// expiry with a job still checked out.
	require.NoError(t, q.store.ZAdd(ctx, processingKey,
		kvstore.Z{Score: float64(clock.Now().Add(-time.Hour).UnixMilli()), Member: "job_vanished"}))

	n, err := q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Processing)

	// Later sweeps have nothing left to rescan.
	n, err = q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReclaimStaleIgnoresJobFinishedByRacingWorker(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	job := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, nil))

	// Replay the race: the entry resurfaces after the worker completed.
	require.NoError(t, q.store.ZAdd(ctx, processingKey,
		kvstore.Z{Score: float64(clock.Now().Add(-time.Hour).UnixMilli()), Member: job.ID}))

	n, err := q.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Processing)
	assert.Zero(t, depths.Delayed[TypeContent])
}

func TestPurgeRespectsRetentionWindows(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	// One completed job that will age past the 24h window.
	oldDone := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, oldDone.ID, nil))

	// One dead job, at the same age; dead retention is 30 days.
	q.policy.MaxAttempts = 1
	oldDead := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err = q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, oldDead.ID, "boom"))

	clock.Advance(25 * time.Hour)

	// A fresh completed job that must survive.
	freshDone := mustEnqueue(t, q, EnqueueInput{Type: TypeContent})
	_, err = q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, freshDone.ID, nil))

	res, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Zero(t, res.Dead)

	_, err = q.Get(ctx, oldDone.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.Get(ctx, freshDone.ID)
	assert.NoError(t, err)
	_, err = q.Get(ctx, oldDead.ID)
	assert.NoError(t, err)

	// Past the dead retention the dead job goes too.
	clock.Advance(31 * 24 * time.Hour)
	res, err = q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dead)

	_, err = q.Get(ctx, oldDead.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	depths, err := q.QueueDepths(ctx)
	require.NoError(t, err)
	assert.Zero(t, depths.Dead)
}
