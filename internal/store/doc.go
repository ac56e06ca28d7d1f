// Package store persists events, observations, snapshots and results in
// Redis with per-key TTLs.
//
// Key schema:
//   - event:{id}            hash, 7 day TTL
//   - observation:{id}      hash, window + 1h TTL
//   - snapshots:{id}        list of JSON snapshots, 7 day TTL
//   - result:{id}           hash, 30 day TTL
//   - observations:active   sorted set, member = id, score = baseline time
//   - stats:summary         hash, overwritten in place
package store
