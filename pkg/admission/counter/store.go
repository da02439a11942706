package counter

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultShardCount is the default number of lock partitions.
// Must be a power of two so the shard index reduces to a bit mask.
const DefaultShardCount = 64

// entryOverheadBytes is the assumed per-entry memory cost used by
// EstimateMemoryBytes. It covers the map bucket slot, the key strings,
// and the counter struct. The estimate only needs to correlate
// monotonically with true usage, not match it.
const entryOverheadBytes = 160

// Key uniquely identifies one fixed-window counter.
type Key struct {
	// Identity is the client identity (user id or IP address).
	Identity string

	// Tier is the rate limit tier name the counter belongs to.
	Tier string

	// WindowStart is the aligned start of the window, in Unix
	// nanoseconds. Nanosecond resolution keeps keys for sub-second
	// windows distinct.
	WindowStart int64
}

// NewKey builds the counter key for the window containing now.
// WindowStart is the floor of now to the window duration.
func NewKey(identity, tier string, now time.Time, window time.Duration) Key {
	return Key{
		Identity:    identity,
		Tier:        tier,
		WindowStart: now.Truncate(window).UnixNano(),
	}
}

// Store is the interface the rate limit manager depends on.
//
// IncrementAndCheck returns an error only for store-internal faults;
// the sharded implementation never fails, but the interface allows the
// manager's fail-closed path to be exercised with a faulty store.
type Store interface {
	IncrementAndCheck(key Key, expiresAt time.Time, limit int) (newCount int64, allowed bool, err error)
	Sweep(now time.Time) (removed int)
	EstimateMemoryBytes() int64
	Len() int
}

// entry is one live counter. Access is guarded by the owning shard's
// mutex.
type entry struct {
	count     int64
	expiresAt time.Time
}

// shard is one lock partition of the counter table.
type shard struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// Sharded is the in-process, lock-partitioned counter store.
type Sharded struct {
	shards []*shard
	mask   uint32

	// size tracks the total live entry count across all shards.
	size atomic.Int64
}

// NewSharded creates a sharded store with the given shard count.
// shardCount is rounded up to the next power of two; values below 1
// fall back to DefaultShardCount.
func NewSharded(shardCount int) *Sharded {
	if shardCount < 1 {
		shardCount = DefaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}

	s := &Sharded{
		shards: make([]*shard, n),
		mask:   uint32(n - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[Key]*entry)}
	}
	return s
}

// IncrementAndCheck atomically increments the counter for key, creating
// it with count 1 on first touch of a window, and reports whether the
// new count is within limit.
//
// Concurrent callers on the same key never lose an increment: the
// create-or-increment runs under the owning shard's lock.
func (s *Sharded) IncrementAndCheck(key Key, expiresAt time.Time, limit int) (int64, bool, error) {
	sh := s.shardFor(key.Identity)

	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &entry{count: 0, expiresAt: expiresAt}
		sh.entries[key] = e
		s.size.Add(1)
	}
	e.count++
	count := e.count
	sh.mu.Unlock()

	return count, count <= int64(limit), nil
}

// Sweep removes all entries whose expiry deadline has passed and
// returns the number removed. Each shard is locked individually, so a
// sweep never blocks increments on other shards and never touches live
// counters.
func (s *Sharded) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expiresAt.Before(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.size.Add(int64(-removed))
	}
	return removed
}

// EstimateMemoryBytes returns a constant-factor estimate of the
// store's memory footprint: live entry count times a fixed per-entry
// overhead. Cheap enough to call on every monitor tick.
func (s *Sharded) EstimateMemoryBytes() int64 {
	return s.size.Load() * entryOverheadBytes
}

// Len returns the number of live counters.
func (s *Sharded) Len() int {
	return int(s.size.Load())
}

// Count returns the current count for key without incrementing, or 0
// if no counter exists. Intended for tests and introspection.
func (s *Sharded) Count(key Key) int64 {
	sh := s.shardFor(key.Identity)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[key]; ok {
		return e.count
	}
	return 0
}

// shardFor selects the shard owning an identity.
func (s *Sharded) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return s.shards[h.Sum32()&s.mask]
}
