// Package taskqueue provides the durable, retryable work queue that drives
// premium-status reconciliation. It supports exactly two task types,
// subscription verification after checkout and direct premium-status
// updates, both idempotent and safe to retry.
//
// The queue is an explicit object owned by the composition root; there is no
// package-level state. Tasks move through a small state machine:
//
//	pending → processing → {completed | failed}
//	failed  → processing            while retries < MaxRetries
//	failed  → failed_permanent      once retries reach MaxRetries
//
// A drain is single-flight and strictly sequential in enqueue order, which
// keeps per-email operations monotonic. The full task list is persisted to a
// keyed blob store after every transition, so a crash loses at most the
// in-flight task's uncommitted state. Completed tasks are swept after a
// retention window; permanently failed ones stay queryable for support
// diagnosis.
//
// Rescheduling goes through the Clock interface so tests advance virtual
// time instead of sleeping.
package taskqueue
