package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEnqueueBatch(t *testing.T, q *Queue, keywords ...string) (*Batch, []*Job) {
	t.Helper()
	batch, jobs, err := q.EnqueueBatch(context.Background(), BatchInput{
		Keywords:    keywords,
		Locale:      "en",
		RequestedBy: "marketing",
	})
	require.NoError(t, err)
	return batch, jobs
}

// newBatchTestQueue drops the retry budget to one attempt so a single Fail
// dead-letters the member; retry mechanics have their own tests.
func newBatchTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, _ := newTestQueue(t)
	q.policy.MaxAttempts = 1
	return q
}

// drainOne dequeues the next content job and applies the given outcome.
func drainOne(t *testing.T, q *Queue, succeed bool) *Job {
	t.Helper()
	ctx := context.Background()
	job, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)
	if succeed {
		require.NoError(t, q.Complete(ctx, job.ID, nil))
	} else {
		require.NoError(t, q.Fail(ctx, job.ID, "boom"))
	}
	return job
}

func TestCancelAfterBatchExpiryDoesNotResurrectBatch(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	batch, jobs := mustEnqueueBatch(t, q, "veneers turkey", "lasik istanbul")
	require.NoError(t, q.store.Del(ctx, batchKey(batch.ID)))

	// The member still cancels cleanly; the expired batch stays gone instead
	// of coming back as a bare total counter.
	require.NoError(t, q.Cancel(ctx, jobs[0].ID))

	_, err := q.Get(ctx, jobs[0].ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestMemberOutcomeAfterBatchExpiryDoesNotResurrectBatch(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "veneers turkey", "lasik istanbul")
	require.NoError(t, q.store.Del(ctx, batchKey(batch.ID)))

	drainOne(t, q, true)
	drainOne(t, q, false)

	_, err := q.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestEnqueueBatchCreatesMembers(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	batch, jobs := mustEnqueueBatch(t, q, "veneers turkey", "hair transplant turkey", "rhinoplasty turkey")

	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, BatchPending, batch.Status)
	assert.Equal(t, "marketing", batch.RequestedBy)
	require.Len(t, jobs, 3)

	for i, job := range jobs {
		assert.Equal(t, batch.ID, job.BatchID)
		assert.Equal(t, TypeContent, job.Type)
		var p ContentPayload
		require.NoError(t, json.Unmarshal(job.Payload, &p))
		assert.Equal(t, batch.Keywords[i], p.Keyword)
		assert.Equal(t, "en", p.Locale)
	}

	got, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Keywords, got.Keywords)
}

func TestEnqueueBatchRequiresKeywords(t *testing.T) {
	q, _ := newTestQueue(t)
	_, _, err := q.EnqueueBatch(context.Background(), BatchInput{Locale: "en"})
	assert.Error(t, err)
}

func TestBatchAllMembersComplete(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "kw one", "kw two")

	drainOne(t, q, true)
	mid, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mid.Completed)
	assert.Equal(t, BatchProcessing, mid.Status)

	drainOne(t, q, true)
	final, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Completed)
	assert.Zero(t, final.Failed)
	assert.Equal(t, BatchCompleted, final.Status)
}

func TestBatchPartialOutcome(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "kw one", "kw two")

	drainOne(t, q, true)
	drainOne(t, q, false)

	final, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Completed)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, BatchPartial, final.Status)
}

func TestBatchAllMembersFail(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "kw one", "kw two")

	drainOne(t, q, false)
	drainOne(t, q, false)

	final, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Failed)
	assert.Equal(t, BatchFailed, final.Status)
}

func TestBatchCancelledMemberLeavesCohort(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, jobs := mustEnqueueBatch(t, q, "kw one", "kw two", "kw three")

	require.NoError(t, q.Cancel(ctx, jobs[2].ID))

	mid, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, mid.Total)

	drainOne(t, q, true)
	drainOne(t, q, true)

	final, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, final.Status)
}

func TestBatchCompletionIdempotentUnderRepeatedComplete(t *testing.T) {
	q := newBatchTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "kw one")
	job := drainOne(t, q, true)

	// Repeating the completion must not double-count the member.
	require.NoError(t, q.Complete(ctx, job.ID, nil))

	final, err := q.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Completed)
	assert.Equal(t, BatchCompleted, final.Status)
}

func TestBatchProgress(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	batch, _ := mustEnqueueBatch(t, q, "alpha keyword", "beta keyword")

	job, err := q.Dequeue(ctx, TypeContent)
	require.NoError(t, err)

	progress, err := q.Progress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, progress.CurrentJobID)

	var p ContentPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, p.Keyword, progress.CurrentKeyword)
}

func TestGetBatchNotFound(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.GetBatch(context.Background(), "bat_missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}
