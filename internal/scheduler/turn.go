package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"browserd/pkg/types"
)

// Request is the normalized, immutable unit of work handed to Enqueue.
type Request struct {
	// ID is assigned by the scheduler when left empty.
	ID string
	// Model is the desired model id; normalized and validated at admission.
	Model string
	// Prompt is the flattened conversation text typed into the console.
	Prompt string
	Params types.GenerationParams
	// User is an opaque caller identifier, logged only.
	User        string
	SubmittedAt time.Time
}

// TurnState is the lifecycle state of one turn.
type TurnState int32

const (
	TurnQueued TurnState = iota
	TurnReservingModel
	TurnSubmitting
	TurnStreaming
	TurnCompleting
	TurnDone
	TurnFailed
	TurnCancelled
)

func (s TurnState) String() string {
	switch s {
	case TurnQueued:
		return "queued"
	case TurnReservingModel:
		return "reserving_model"
	case TurnSubmitting:
		return "submitting"
	case TurnStreaming:
		return "streaming"
	case TurnCompleting:
		return "completing"
	case TurnDone:
		return "done"
	case TurnFailed:
		return "failed"
	case TurnCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of DONE, FAILED or CANCELLED.
func (s TurnState) Terminal() bool { return s >= TurnDone }

// ChunkKind tags the variants of StreamChunk.
type ChunkKind int

const (
	ChunkContentDelta ChunkKind = iota
	ChunkUsage
	ChunkFinish
	ChunkError
)

// StreamChunk is one typed, ordered unit of output delivered to the API
// layer. Exactly one of the payload fields is meaningful per kind.
type StreamChunk struct {
	Kind ChunkKind
	// Text holds the delta for ChunkContentDelta.
	Text string
	// Usage is set on ChunkUsage and, when known, on ChunkFinish.
	Usage *types.Usage
	// FinishReason is set on ChunkFinish ("stop", "length", "cancelled").
	FinishReason string
	// ErrKind and ErrMessage are set on ChunkError.
	ErrKind    ErrorKind
	ErrMessage string
}

// chunkBuf bounds how far the worker may run ahead of a slow consumer.
const chunkBuf = 64

// turn binds one Request to its place in the queue and its output stream.
type turn struct {
	id    string
	req   Request
	state atomic.Int32

	chunks chan StreamChunk

	cancelOnce sync.Once
	cancelled  chan struct{}
	done       chan struct{}
}

func newTurn(req Request) *turn {
	return &turn{
		id:        req.ID,
		req:       req,
		chunks:    make(chan StreamChunk, chunkBuf),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (t *turn) State() TurnState { return TurnState(t.state.Load()) }

func (t *turn) setState(s TurnState) { t.state.Store(int32(s)) }

// transition moves from->to atomically; it fails if another party moved the
// turn first (e.g. a queued cancel racing the worker).
func (t *turn) transition(from, to TurnState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *turn) cancel() {
	t.cancelOnce.Do(func() { close(t.cancelled) })
}

func (t *turn) isCancelled() bool {
	select {
	case <-t.cancelled:
		return true
	default:
		return false
	}
}

// Handle is the caller's view of an enqueued request.
type Handle struct {
	t *turn
}

// ID returns the request id.
func (h *Handle) ID() string { return h.t.id }

// State returns the turn's current lifecycle state.
func (h *Handle) State() TurnState { return h.t.State() }

// Chunks is the request's ordered output stream. It is closed after the
// terminal chunk once the turn resolves.
func (h *Handle) Chunks() <-chan StreamChunk { return h.t.chunks }

// Done is closed when the turn reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.t.done }
