package kvstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and local development. A single
// mutex guards all structures, which also makes Pipelined atomic relative to
// every other operation.
type Memory struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	sets    map[string]map[string]struct{}
	lists   map[string][]string
	expires map[string]time.Time

	// Now is the clock used for TTL eviction; overridable in tests.
	Now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

// evictExpired lazily drops keys whose TTL has passed. Callers must hold mu.
func (m *Memory) evictExpired(key string) {
	deadline, ok := m.expires[key]
	if !ok || m.Now().Before(deadline) {
		return
	}
	m.deleteKey(key)
}

func (m *Memory) deleteKey(key string) {
	delete(m.hashes, key)
	delete(m.zsets, key)
	delete(m.sets, key)
	delete(m.lists, key)
	delete(m.expires, key)
}

func (m *Memory) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hset(key, field, value)
	return nil
}

func (m *Memory) hset(key, field, value string) {
	m.evictExpired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
}

func (m *Memory) HGet(ctx context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) HDel(ctx context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hdel(key, fields...)
	return nil
}

func (m *Memory) hdel(key string, fields ...string) {
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
}

func (m *Memory) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hincrBy(key, field, delta), nil
}

func (m *Memory) hincrBy(key, field string, delta int64) int64 {
	m.evictExpired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	cur := parseInt(h[field])
	cur += delta
	h[field] = formatInt(cur)
	return cur
}

func (m *Memory) ZAdd(ctx context.Context, key string, entries ...Z) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zadd(key, entries...)
	return nil
}

func (m *Memory) zadd(key string, entries ...Z) {
	m.evictExpired(key)
	zs, ok := m.zsets[key]
	if !ok {
		zs = make(map[string]float64)
		m.zsets[key] = zs
	}
	for _, e := range entries {
		zs[e.Member] = e.Score
	}
}

func (m *Memory) ZRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zrem(key, members...)
	return nil
}

func (m *Memory) zrem(key string, members ...string) {
	for _, member := range members {
		delete(m.zsets[key], member)
	}
}

func (m *Memory) ZPopMax(ctx context.Context, key string) (Z, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	zs := m.zsets[key]
	if len(zs) == 0 {
		return Z{}, false, nil
	}
	var best Z
	first := true
	for member, score := range zs {
		if first || score > best.Score || (score == best.Score && member > best.Member) {
			best = Z{Score: score, Member: member}
			first = false
		}
	}
	delete(zs, best.Member)
	return best, true, nil
}

func (m *Memory) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	entries := m.sortedEntries(key)
	out := make([]string, 0)
	for _, e := range entries {
		if e.Score < min || e.Score > max {
			continue
		}
		out = append(out, e.Member)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	entries := m.sortedEntries(key)
	n := int64(len(entries))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([]string, 0)
	for i := start; i <= stop && i >= 0 && i < n; i++ {
		out = append(out, entries[i].Member)
	}
	return out, nil
}

func (m *Memory) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	score, ok := m.zsets[key][member]
	return score, ok, nil
}

func (m *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	return int64(len(m.zsets[key])), nil
}

// sortedEntries returns the zset ascending by score, ties by member.
// Callers must hold mu.
func (m *Memory) sortedEntries(key string) []Z {
	zs := m.zsets[key]
	entries := make([]Z, 0, len(zs))
	for member, score := range zs {
		entries = append(entries, Z{Score: score, Member: member})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score < entries[j].Score
		}
		return entries[i].Member < entries[j].Member
	})
	return entries
}

func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sadd(key, members...)
	return nil
}

func (m *Memory) sadd(key string, members ...string) {
	m.evictExpired(key)
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
}

func (m *Memory) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.srem(key, members...)
	return nil
}

func (m *Memory) srem(key string, members ...string) {
	for _, member := range members {
		delete(m.sets[key], member)
	}
}

func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) LPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lpush(key, values...)
	return nil
}

func (m *Memory) lpush(key string, values ...string) {
	m.evictExpired(key)
	for _, v := range values {
		m.lists[key] = append([]string{v}, m.lists[key]...)
	}
}

func (m *Memory) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ltrim(key, start, stop)
	return nil
}

func (m *Memory) ltrim(key string, start, stop int64) {
	l := m.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		m.lists[key] = nil
		return
	}
	m.lists[key] = l[start : stop+1]
}

func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(key)
	l := m.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([]string, 0)
	for i := start; i <= stop && i >= 0 && i < n; i++ {
		out = append(out, l[i])
	}
	return out, nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.deleteKey(key)
	}
	return nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expire(key, ttl)
	return nil
}

func (m *Memory) expire(key string, ttl time.Duration) {
	m.expires[key] = m.Now().Add(ttl)
}

// Pipelined executes fn's queued operations under one lock acquisition.
func (m *Memory) Pipelined(ctx context.Context, fn func(p Pipeline)) error {
	p := &memoryPipeline{}
	fn(p)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range p.ops {
		op(m)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

type memoryPipeline struct {
	ops []func(m *Memory)
}

func (p *memoryPipeline) HSet(key, field, value string) {
	p.ops = append(p.ops, func(m *Memory) { m.hset(key, field, value) })
}

func (p *memoryPipeline) HDel(key string, fields ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.hdel(key, fields...) })
}

func (p *memoryPipeline) HIncrBy(key, field string, delta int64) {
	p.ops = append(p.ops, func(m *Memory) { m.hincrBy(key, field, delta) })
}

func (p *memoryPipeline) ZAdd(key string, entries ...Z) {
	p.ops = append(p.ops, func(m *Memory) { m.zadd(key, entries...) })
}

func (p *memoryPipeline) ZRem(key string, members ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.zrem(key, members...) })
}

func (p *memoryPipeline) SAdd(key string, members ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.sadd(key, members...) })
}

func (p *memoryPipeline) SRem(key string, members ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.srem(key, members...) })
}

func (p *memoryPipeline) LPush(key string, values ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.lpush(key, values...) })
}

func (p *memoryPipeline) LTrim(key string, start, stop int64) {
	p.ops = append(p.ops, func(m *Memory) { m.ltrim(key, start, stop) })
}

func (p *memoryPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(m *Memory) {
		for _, key := range keys {
			m.deleteKey(key)
		}
	})
}

func (p *memoryPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(m *Memory) { m.expire(key, ttl) })
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
