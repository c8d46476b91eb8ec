// Package browser defines the port through which the scheduler drives the
// automated web console, and a Playwright-backed implementation of it.
//
// The port is deliberately narrow: the scheduler only ever has one turn in
// flight, so every method may assume exclusive access to the underlying
// page. All calls are fallible and must respect the caller's context.
package browser

import (
	"context"
	"time"

	"browserd/pkg/types"
)

// TurnHandle identifies one in-flight prompt submission on the console.
type TurnHandle struct {
	ID string
}

// RawFrame is one unit of intercepted network traffic from the console,
// normalized by the port into a small JSON payload. The scheduler's stream
// bridge parses payloads of the shape:
//
//	{"delta":"partial text"}
//	{"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}
//	{"done":true,"finish_reason":"stop"}
//	{"error":{"kind":"quota","message":"out of free generations"}}
type RawFrame struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Port is the browser session as seen by the scheduler. Implementations own
// exactly one live page; the single-worker scheduler guarantees calls never
// overlap across turns.
type Port interface {
	// SwitchModel selects the given model in the console UI.
	SwitchModel(ctx context.Context, modelID string) error

	// SubmitPrompt types the prompt into the console and starts generation.
	// The returned handle scopes StreamEvents and Cancel to this turn.
	SubmitPrompt(ctx context.Context, prompt string, params types.GenerationParams) (TurnHandle, error)

	// StreamEvents returns the turn's intercepted frames in arrival order.
	// The channel is closed when the console stops producing traffic for
	// this turn; a missing terminal frame is the caller's problem to detect.
	StreamEvents(ctx context.Context, h TurnHandle) (<-chan RawFrame, error)

	// Cancel aborts the turn's generation, e.g. by clicking the stop
	// button. It must be safe to call for an already finished turn.
	Cancel(ctx context.Context, h TurnHandle) error

	// Close tears the browser session down.
	Close() error
}
