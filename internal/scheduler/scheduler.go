package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"browserd/internal/browser"
	"browserd/internal/registry"
	"browserd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultMaxAttempts    = 3
	defaultSwitchTimeout  = 30 * time.Second
	defaultSubmitTimeout  = 30 * time.Second
	defaultStreamTimeout  = 5 * time.Minute
	defaultSilenceTimeout = 60 * time.Second
	defaultCancelTimeout  = 10 * time.Second
)

// Config encapsulates all tunables for Scheduler construction.
type Config struct {
	Port     browser.Port
	Registry *registry.Registry
	// DefaultModel is used when a request leaves Model empty.
	DefaultModel  string
	MaxQueueDepth int
	MaxAttempts   int
	// Per-stage deadlines. Exceeding one raises a stage timeout handed to
	// the retry classifier instead of wedging the queue.
	SwitchTimeout  time.Duration
	SubmitTimeout  time.Duration
	StreamTimeout  time.Duration
	SilenceTimeout time.Duration
	// CancelTimeout bounds the browser-side abort of a cancelled turn.
	CancelTimeout time.Duration
	Publisher     EventPublisher
	Logger        zerolog.Logger
}

// Scheduler is the admission-control core: it accepts concurrent Enqueue and
// Cancel calls and serializes the admitted requests onto the one browser
// session via a single worker goroutine. At most one turn is active at any
// instant; queued turns are served strictly in arrival order.
type Scheduler struct {
	cfg    Config
	models *modelTracker
	pub    EventPublisher
	log    zerolog.Logger

	queue      chan *turn
	closing    chan struct{}
	workerDone chan struct{}

	closed atomic.Bool
	quota  atomic.Bool
	active atomic.Pointer[turn]

	turnsDone      atomic.Uint64
	turnsFailed    atomic.Uint64
	turnsCancelled atomic.Uint64
	retriesTotal   atomic.Uint64
	switchesTotal  atomic.Uint64

	startTime time.Time
}

// New constructs a Scheduler and starts its worker loop.
func New(cfg Config) *Scheduler {
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = defaultSwitchTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaultStreamTimeout
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = defaultCancelTimeout
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	s := &Scheduler{
		cfg:        cfg,
		models:     newModelTracker(cfg.Port),
		pub:        cfg.Publisher,
		log:        cfg.Logger,
		queue:      make(chan *turn, cfg.MaxQueueDepth),
		closing:    make(chan struct{}),
		workerDone: make(chan struct{}),
		startTime:  time.Now(),
	}
	go s.run()
	return s
}

// ObserveModel records the model the console had selected at startup so the
// first request for it skips a redundant switch.
func (s *Scheduler) ObserveModel(modelID string) { s.models.Observe(modelID) }

// Enqueue admits a request. It returns immediately: execution is
// asynchronous and the result arrives on the handle's chunk stream. The
// error is non-nil only for admission refusals (queue full, unknown or
// disabled model, quota lock-down, shutdown).
func (s *Scheduler) Enqueue(req Request) (*Handle, error) {
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}
	req.Model = types.NormalizeModelID(req.Model)
	if !s.cfg.Registry.Allowed(req.Model) {
		return nil, newTurnError(KindModelNotAvailable, req.Model, nil)
	}
	if s.quota.Load() {
		return nil, newTurnError(KindQuotaExhausted, "console quota exhausted", nil)
	}
	if s.closed.Load() {
		return nil, newTurnError(KindShuttingDown, "scheduler is draining", nil)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	t := newTurn(req)
	select {
	case s.queue <- t:
		// Re-check after the send: a shutdown that raced the admission may
		// already have drained the queue, and nothing would resolve t.
		if s.closed.Load() && t.transition(TurnQueued, TurnCancelled) {
			t.cancel()
			s.finishCancelled(t)
			return nil, newTurnError(KindShuttingDown, "scheduler is draining", nil)
		}
	default:
		s.pub.Publish(Event{Name: "enqueue_reject", TurnID: req.ID, ModelID: req.Model})
		return nil, newTurnError(KindQueueFull, "queue depth limit reached", nil)
	}
	queueDepth.Set(float64(len(s.queue)))
	s.pub.Publish(Event{Name: "enqueue", TurnID: req.ID, ModelID: req.Model})
	s.log.Debug().Str("turn", req.ID).Str("model", req.Model).Int("queue_len", len(s.queue)).Msg("request enqueued")
	return &Handle{t: t}, nil
}

// Cancel requests cooperative cancellation. A still-queued turn resolves
// CANCELLED immediately without any browser interaction; an active turn is
// aborted browser-side and resolves once the abort acknowledges or times
// out. Cancelling a finished turn is a no-op.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil || h.t == nil {
		return
	}
	t := h.t
	t.cancel()
	if t.transition(TurnQueued, TurnCancelled) {
		// Still queued: resolve here; the worker discards it on dequeue.
		s.finishCancelled(t)
	}
}

// Close stops intake and drains: queued turns resolve CANCELLED, the active
// turn may finish until ctx expires, after which it is cancelled. Safe to
// call more than once.
func (s *Scheduler) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		<-s.workerDone
		return nil
	}
	close(s.closing)
	select {
	case <-s.workerDone:
		return nil
	case <-ctx.Done():
		if t := s.active.Load(); t != nil {
			t.cancel()
		}
		<-s.workerDone
		return ctx.Err()
	}
}

// emit delivers one chunk to the turn's consumer. It blocks until the
// consumer reads or the turn is cancelled; false means the chunk was not
// delivered.
func (s *Scheduler) emit(t *turn, c StreamChunk) bool {
	select {
	case t.chunks <- c:
		return true
	case <-t.cancelled:
		return false
	}
}

// tryEmit is a non-blocking emit for the cancelled-finish chunk, where the
// consumer is usually the party that walked away.
func (s *Scheduler) tryEmit(t *turn, c StreamChunk) {
	select {
	case t.chunks <- c:
	default:
	}
}

func (s *Scheduler) finishDone(t *turn, res bridgeResult) {
	t.setState(TurnDone)
	close(t.chunks)
	close(t.done)
	s.turnsDone.Add(1)
	turnsTotal.WithLabelValues("done").Inc()
	s.pub.Publish(Event{Name: "turn_done", TurnID: t.id, ModelID: t.req.Model, Fields: map[string]any{
		"finish_reason": res.FinishReason,
	}})
	s.log.Info().Str("turn", t.id).Str("model", t.req.Model).
		Str("finish_reason", res.FinishReason).
		Dur("dur", time.Since(t.req.SubmittedAt)).Msg("turn done")
}

func (s *Scheduler) finishFailed(t *turn, kind ErrorKind, cause error) {
	msg := string(kind)
	if cause != nil {
		msg = cause.Error()
	}
	// A lagging consumer must still see why the stream ended: block until
	// the terminal chunk is read or the turn is cancelled.
	s.emit(t, StreamChunk{Kind: ChunkError, ErrKind: kind, ErrMessage: msg})
	t.setState(TurnFailed)
	close(t.chunks)
	close(t.done)
	s.turnsFailed.Add(1)
	turnsTotal.WithLabelValues("failed").Inc()
	s.pub.Publish(Event{Name: "turn_failed", TurnID: t.id, ModelID: t.req.Model, Fields: map[string]any{
		"kind": string(kind),
	}})
	s.log.Warn().Str("turn", t.id).Str("model", t.req.Model).
		Str("kind", string(kind)).Err(cause).Msg("turn failed")
}

func (s *Scheduler) finishCancelled(t *turn) {
	s.tryEmit(t, StreamChunk{Kind: ChunkFinish, FinishReason: "cancelled"})
	t.setState(TurnCancelled)
	close(t.chunks)
	close(t.done)
	s.turnsCancelled.Add(1)
	turnsTotal.WithLabelValues("cancelled").Inc()
	s.pub.Publish(Event{Name: "turn_cancelled", TurnID: t.id, ModelID: t.req.Model})
	s.log.Info().Str("turn", t.id).Str("model", t.req.Model).Msg("turn cancelled")
}

func (s *Scheduler) lockdownQuota() {
	if s.quota.CompareAndSwap(false, true) {
		s.pub.Publish(Event{Name: "quota_lockdown"})
		s.log.Error().Msg("console quota exhausted; rejecting new work until restart")
	}
}
