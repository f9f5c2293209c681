// Package kvstore abstracts the shared key-value store the queue is built on.
// The production backend is Redis; an in-process backend exists for tests and
// local development.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or hash field does not exist.
var ErrNotFound = errors.New("kvstore: not found")

// Z is a scored member of a sorted set.
type Z struct {
	Score  float64
	Member string
}

// Store is the contract every backend must satisfy. All values are strings;
// callers are responsible for serialization (job and batch records are stored
// as JSON blobs inside hash fields).
type Store interface {
	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// Sorted sets
	ZAdd(ctx context.Context, key string, entries ...Z) error
	ZRem(ctx context.Context, key string, members ...string) error
	// ZPopMax atomically removes and returns the highest-scored member.
	// The boolean is false when the set is empty.
	ZPopMax(ctx context.Context, key string) (Z, bool, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Lists
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Keys
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipelined executes the operations queued by fn as one atomic batch.
	// Individual operation results are not itemized; callers must not depend
	// on partial-failure granularity within a pipeline.
	Pipelined(ctx context.Context, fn func(p Pipeline)) error

	Ping(ctx context.Context) error
	Close() error
}

// Pipeline queues mutations for atomic execution via Store.Pipelined.
type Pipeline interface {
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	HIncrBy(key, field string, delta int64)
	ZAdd(key string, entries ...Z)
	ZRem(key string, members ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	LPush(key string, values ...string)
	LTrim(key string, start, stop int64)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
}
