// Package counter provides the sharded fixed-window counter store that
// backs admission decisions.
//
// # Overview
//
// The store is a concurrency-safe key -> counter table. Each counter
// covers one aligned, fixed time window for one (identity, tier) pair.
// Counting is O(1) per request: a single locked increment on the shard
// that owns the key, no timestamp history.
//
//	store := counter.NewSharded(counter.DefaultShardCount)
//	count, allowed, err := store.IncrementAndCheck(key, expiresAt, 100)
//
// # Sharding
//
// Keys are partitioned across independently locked shards by an FNV-1a
// hash of the identity. Live increments and the periodic sweep contend
// only within a single shard, never on a global lock.
//
// # Expiry
//
// Counters are never removed on the request path. Entries carry an
// expiry deadline (window end plus a grace period) and are physically
// removed by Sweep, which the resource monitor calls on a fixed tick.
// This keeps the hot path allocation-free in the common case and makes
// the store's memory bound a function of the sweep interval rather
// than request volume.
package counter
