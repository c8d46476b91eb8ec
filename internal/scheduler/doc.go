// Package scheduler serializes logically concurrent chat requests onto the
// one browser session. It is structured into small files by concern:
//
//   - scheduler.go: core Scheduler type, Config, admission (Enqueue/Cancel/Close).
//   - turn.go: Request, turn lifecycle states, Handle and StreamChunk.
//   - worker.go: the single worker loop driving turns through their stages.
//   - modelstate.go: current-model belief and reconciliation.
//   - streambridge.go: raw frame to typed chunk conversion, stall detection.
//   - retry.go: failure classification (retry same turn, fresh turn, terminal).
//   - errors.go: the error kind taxonomy and helpers (IsQueueFull, ...).
//   - events.go: lifecycle event publishing.
//   - status.go, metrics.go: observability projections.
//
// Concurrency model: Enqueue and Cancel are safe from any goroutine; one
// worker goroutine executes turns strictly one at a time in FIFO order. The
// browser port and the model tracker are only ever touched by that worker,
// so the single-model browser state needs no fine-grained locking.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (New, Enqueue, Cancel, Close, Status, Models,
// Ready). Internal types are subject to change.
package scheduler
