package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHashOps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.HGet(ctx, "h", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.HSet(ctx, "h", "a", "1"))
	require.NoError(t, m.HSet(ctx, "h", "b", "2"))

	v, err := m.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	all, err := m.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, m.HDel(ctx, "h", "a"))
	_, err = m.HGet(ctx, "h", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHIncrBy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.HIncrBy(ctx, "counters", "done", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.HIncrBy(ctx, "counters", "done", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = m.HIncrBy(ctx, "counters", "done", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryZPopMaxReturnsHighestScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.ZPopMax(ctx, "z")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.ZAdd(ctx, "z",
		Z{Score: 1, Member: "low"},
		Z{Score: 3, Member: "high"},
		Z{Score: 2, Member: "mid"},
	))

	z, ok, err := m.ZPopMax(ctx, "z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "high", z.Member)
	assert.Equal(t, float64(3), z.Score)

	n, err := m.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryZPopMaxTieBreaksByMember(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZAdd(ctx, "z",
		Z{Score: 5, Member: "aaa"},
		Z{Score: 5, Member: "zzz"},
	))

	z, ok, err := m.ZPopMax(ctx, "z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "zzz", z.Member)
}

func TestMemoryZAddUpdatesScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZAdd(ctx, "z", Z{Score: 1, Member: "a"}))
	require.NoError(t, m.ZAdd(ctx, "z", Z{Score: 9, Member: "a"}))

	score, ok, err := m.ZScore(ctx, "z", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(9), score)

	n, err := m.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryZRangeByScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZAdd(ctx, "z",
		Z{Score: 1, Member: "a"},
		Z{Score: 2, Member: "b"},
		Z{Score: 3, Member: "c"},
		Z{Score: 4, Member: "d"},
	))

	got, err := m.ZRangeByScore(ctx, "z", 2, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	got, err = m.ZRangeByScore(ctx, "z", 1, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = m.ZRangeByScore(ctx, "z", 10, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryZRangeNegativeIndexes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZAdd(ctx, "z",
		Z{Score: 1, Member: "a"},
		Z{Score: 2, Member: "b"},
		Z{Score: 3, Member: "c"},
	))

	got, err := m.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = m.ZRange(ctx, "z", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestMemorySetOps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SAdd(ctx, "s", "b", "a", "a"))
	members, err := m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	require.NoError(t, m.SRem(ctx, "s", "a"))
	members, err = m.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestMemoryListPushAndTrim(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.LPush(ctx, "l", "first"))
	require.NoError(t, m.LPush(ctx, "l", "second"))
	require.NoError(t, m.LPush(ctx, "l", "third"))

	got, err := m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, got)

	require.NoError(t, m.LTrim(ctx, "l", 0, 1))
	got, err = m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, got)

	require.NoError(t, m.LTrim(ctx, "l", 5, 9))
	got, err = m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryExpireEvictsLazily(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }

	require.NoError(t, m.HSet(ctx, "h", "a", "1"))
	require.NoError(t, m.Expire(ctx, "h", time.Minute))

	v, err := m.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Minute)
	_, err = m.HGet(ctx, "h", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// A rewrite after expiry starts a fresh key with no TTL.
	require.NoError(t, m.HSet(ctx, "h", "a", "2"))
	now = now.Add(24 * time.Hour)
	v, err = m.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestMemoryDelRemovesEveryStructure(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.HSet(ctx, "k", "f", "v"))
	require.NoError(t, m.ZAdd(ctx, "k", Z{Score: 1, Member: "m"}))
	require.NoError(t, m.SAdd(ctx, "k", "m"))
	require.NoError(t, m.LPush(ctx, "k", "v"))

	require.NoError(t, m.Del(ctx, "k"))

	_, err := m.HGet(ctx, "k", "f")
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := m.ZCard(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
	members, err := m.SMembers(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, members)
	l, err := m.LRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestMemoryPipelinedAppliesAllOps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZAdd(ctx, "pending", Z{Score: 1, Member: "job_1"}))

	err := m.Pipelined(ctx, func(p Pipeline) {
		p.HSet("jobs", "job_1", `{"status":"processing"}`)
		p.ZRem("pending", "job_1")
		p.ZAdd("processing", Z{Score: 42, Member: "job_1"})
		p.HIncrBy("stats", "dequeued", 1)
		p.LPush("log", "entry")
		p.LTrim("log", 0, 0)
	})
	require.NoError(t, err)

	v, err := m.HGet(ctx, "jobs", "job_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"processing"}`, v)

	n, err := m.ZCard(ctx, "pending")
	require.NoError(t, err)
	assert.Zero(t, n)

	score, ok, err := m.ZScore(ctx, "processing", "job_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(42), score)

	count, err := m.HGet(ctx, "stats", "dequeued")
	require.NoError(t, err)
	assert.Equal(t, "1", count)

	l, err := m.LRange(ctx, "log", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"entry"}, l)
}
