package scheduler

import (
	"context"
	"time"

	"browserd/internal/browser"
)

// run is the single worker loop. It owns the browser port and the model
// tracker for the duration of each active turn; correctness of the shared
// browser state follows from there never being a second executor.
func (s *Scheduler) run() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.closing:
			s.drainQueue()
			return
		case t := <-s.queue:
			queueDepth.Set(float64(len(s.queue)))
			// The select picks uniformly when both arms are ready, so a
			// dequeue can win against closing. Turns dequeued after shutdown
			// began resolve cancelled, never executed.
			if s.closed.Load() {
				if t.transition(TurnQueued, TurnCancelled) {
					t.cancel()
					s.finishCancelled(t)
				}
				continue
			}
			// Claim the turn; a queued cancel may have resolved it already.
			if !t.transition(TurnQueued, TurnReservingModel) {
				continue
			}
			s.executeTurn(t)
		}
	}
}

// drainQueue resolves every still-queued turn as cancelled during shutdown.
func (s *Scheduler) drainQueue() {
	for {
		select {
		case t := <-s.queue:
			if t.transition(TurnQueued, TurnCancelled) {
				t.cancel()
				s.finishCancelled(t)
			}
		default:
			queueDepth.Set(0)
			return
		}
	}
}

// executeTurn drives one turn through its stages, consulting the classifier
// after every failure until the turn resolves.
func (s *Scheduler) executeTurn(t *turn) {
	s.active.Store(t)
	defer s.active.Store(nil)
	s.pub.Publish(Event{Name: "turn_start", TurnID: t.id, ModelID: t.req.Model})

	rec := FailureRecord{TurnID: t.id}
	cls := Classifier{MaxAttempts: s.cfg.MaxAttempts}
	reconcile := true
	for {
		if t.isCancelled() {
			s.resolveCancelledActive(t, browser.TurnHandle{})
			return
		}
		res, h, err := s.runAttempt(t, &rec, reconcile)
		if err == nil {
			s.complete(t, res)
			return
		}
		kind := KindOf(err)
		if kind == KindQuotaExhausted {
			s.lockdownQuota()
		}
		if kind == KindCancelled || t.isCancelled() {
			s.resolveCancelledActive(t, h)
			return
		}
		rec.Attempt++
		rec.LastKind = kind
		action, termKind := cls.Classify(rec)
		switch action {
		case ActionRetrySameTurn:
			s.noteRetry(t, rec, action)
			reconcile = false
		case ActionRetryFreshTurn:
			rec.FreshRetries++
			s.noteRetry(t, rec, action)
			s.models.Invalidate()
			reconcile = true
		case ActionTerminal:
			s.finishFailed(t, termKind, err)
			return
		}
	}
}

// runAttempt performs one pass over the stages. The reconcile flag is false
// on same-turn retries, which restart at submission. The returned handle is
// the browser-side turn, when one was created.
func (s *Scheduler) runAttempt(t *turn, rec *FailureRecord, reconcile bool) (bridgeResult, browser.TurnHandle, error) {
	var zero bridgeResult
	var none browser.TurnHandle

	if reconcile {
		t.setState(TurnReservingModel)
		ctx, cancel := s.stageContext(t, s.cfg.SwitchTimeout)
		switched, err := s.models.Reconcile(ctx, t.req.Model)
		cancel()
		if err != nil {
			return zero, none, s.stageError(ctx, t, err)
		}
		if switched {
			s.switchesTotal.Add(1)
			switchesTotal.Inc()
			s.pub.Publish(Event{Name: "model_switch", TurnID: t.id, ModelID: t.req.Model})
		}
	}

	t.setState(TurnSubmitting)
	sctx, scancel := s.stageContext(t, s.cfg.SubmitTimeout)
	h, err := s.cfg.Port.SubmitPrompt(sctx, t.req.Prompt, t.req.Params)
	scancel()
	if err != nil {
		return zero, none, s.stageError(sctx, t, newTurnError(KindSubmitFailed, "submit prompt", err))
	}
	s.pub.Publish(Event{Name: "submit_ok", TurnID: t.id, ModelID: t.req.Model})

	t.setState(TurnStreaming)
	ctx, cancel := s.stageContext(t, s.cfg.StreamTimeout)
	defer cancel()
	frames, err := s.cfg.Port.StreamEvents(ctx, h)
	if err != nil {
		s.abortBrowserTurn(h)
		return zero, h, s.stageError(ctx, t, newTurnError(KindSubmitFailed, "open event stream", err))
	}
	bridge := streamBridge{silence: s.cfg.SilenceTimeout}
	res, err := bridge.drive(ctx, frames, func(c StreamChunk) bool {
		if c.Kind == ChunkContentDelta {
			rec.ContentEmitted = true
		}
		return s.emit(t, c)
	})
	if err != nil {
		serr := s.stageError(ctx, t, err)
		if KindOf(serr) != KindCancelled {
			// The browser may still be generating; stop it before any
			// re-drive so turns never overlap on the page.
			s.abortBrowserTurn(h)
		}
		return zero, h, serr
	}
	return res, h, nil
}

func (s *Scheduler) complete(t *turn, res bridgeResult) {
	t.setState(TurnCompleting)
	if !s.emit(t, StreamChunk{Kind: ChunkFinish, FinishReason: res.FinishReason, Usage: res.Usage}) {
		s.resolveCancelledActive(t, browser.TurnHandle{})
		return
	}
	s.finishDone(t, res)
}

// resolveCancelledActive aborts the browser-side turn, then resolves
// CANCELLED. An active turn's cancellation always reaches the port, even
// when the turn never got as far as a submission.
func (s *Scheduler) resolveCancelledActive(t *turn, h browser.TurnHandle) {
	s.abortBrowserTurn(h)
	s.finishCancelled(t)
}

func (s *Scheduler) abortBrowserTurn(h browser.TurnHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CancelTimeout)
	defer cancel()
	if err := s.cfg.Port.Cancel(ctx, h); err != nil {
		s.log.Warn().Err(err).Msg("browser-side cancel failed")
	}
}

func (s *Scheduler) noteRetry(t *turn, rec FailureRecord, action Action) {
	s.retriesTotal.Add(1)
	retriesTotal.Inc()
	s.pub.Publish(Event{Name: "retry", TurnID: t.id, ModelID: t.req.Model, Fields: map[string]any{
		"attempt": rec.Attempt,
		"kind":    string(rec.LastKind),
		"action":  action.String(),
	}})
	s.log.Info().Str("turn", t.id).Int("attempt", rec.Attempt).
		Str("kind", string(rec.LastKind)).Str("action", action.String()).Msg("re-driving turn")
}

// stageContext bounds one stage and folds the turn's cancellation into it.
func (s *Scheduler) stageContext(t *turn, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	go func() {
		select {
		case <-t.cancelled:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// stageError normalizes a stage failure: turn cancellation wins, a blown
// stage deadline becomes a stage timeout, anything else passes through.
func (s *Scheduler) stageError(ctx context.Context, t *turn, err error) error {
	if t.isCancelled() {
		return newTurnError(KindCancelled, "turn cancelled", nil)
	}
	if ctx.Err() == context.DeadlineExceeded {
		if k := KindOf(err); k == KindParseFailure || k == KindQuotaExhausted || k == KindUpstreamError {
			return err
		}
		return newTurnError(KindStageTimeout, t.State().String()+" stage deadline exceeded", err)
	}
	return err
}
