// Package observer owns the observation window state machine.
//
// Every detected transfer event gets exactly one observation window.
// Windows move forward only: observing -> completed. Create rejects
// duplicate event ids, Snapshot refuses windows that are no longer
// observing, and Complete is idempotent so the sampler and the recovery
// pass can race on the same window safely.
package observer
