package scheduler

import (
	"time"

	"browserd/pkg/types"
)

// Models returns the registry's enabled entries.
func (s *Scheduler) Models() []types.Model {
	return s.cfg.Registry.Available()
}

// Ready reports whether the scheduler accepts work.
func (s *Scheduler) Ready() bool {
	return !s.closed.Load() && !s.quota.Load()
}

// Status assembles a read-only projection of the scheduler state.
func (s *Scheduler) Status() types.StatusResponse {
	cur, switching := s.models.Snapshot()
	state := "ready"
	switch {
	case s.closed.Load():
		state = "closed"
	case s.quota.Load():
		state = "degraded"
	}
	var stage string
	if t := s.active.Load(); t != nil {
		if st := t.State(); !st.Terminal() {
			stage = st.String()
		}
	}
	return types.StatusResponse{
		State:          state,
		CurrentModel:   cur,
		Switching:      switching,
		ActiveStage:    stage,
		QueueLen:       len(s.queue),
		MaxQueueDepth:  s.cfg.MaxQueueDepth,
		TurnsDone:      s.turnsDone.Load(),
		TurnsFailed:    s.turnsFailed.Load(),
		TurnsCancelled: s.turnsCancelled.Load(),
		RetriesTotal:   s.retriesTotal.Load(),
		SwitchesTotal:  s.switchesTotal.Load(),
		QuotaExhausted: s.quota.Load(),
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}
