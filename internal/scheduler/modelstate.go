package scheduler

import (
	"context"
	"sync"
	"time"

	"browserd/internal/browser"
)

// modelTracker owns the belief of which model is currently selected in the
// browser. Only the worker goroutine calls Reconcile and Invalidate; the
// mutex exists solely so Status can take a consistent snapshot while a
// switch is in flight.
type modelTracker struct {
	port browser.Port

	mu           sync.Mutex
	current      string
	switching    bool
	lastSwitchAt time.Time
}

func newModelTracker(port browser.Port) *modelTracker {
	return &modelTracker{port: port}
}

// Reconcile makes the browser's selected model match desired. When the
// belief already matches and no switch is outstanding this is a pure no-op:
// no browser call is made. The switching flag never survives a failure.
// The returned bool reports whether a browser switch was performed.
func (mt *modelTracker) Reconcile(ctx context.Context, desired string) (bool, error) {
	mt.mu.Lock()
	if mt.current == desired && !mt.switching {
		mt.mu.Unlock()
		return false, nil
	}
	mt.switching = true
	mt.mu.Unlock()

	err := mt.port.SwitchModel(ctx, desired)

	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.switching = false
	if err != nil {
		return false, newTurnError(KindSwitchFailed, "switch to "+desired, err)
	}
	mt.current = desired
	mt.lastSwitchAt = time.Now()
	return true, nil
}

// Invalidate drops the current-model belief so the next Reconcile performs a
// real switch. Used when a fresh turn is re-driven after a suspect failure.
func (mt *modelTracker) Invalidate() {
	mt.mu.Lock()
	mt.current = ""
	mt.mu.Unlock()
}

// Observe records a model detected on the page without switching, e.g. the
// console's default selection at startup.
func (mt *modelTracker) Observe(modelID string) {
	mt.mu.Lock()
	if !mt.switching {
		mt.current = modelID
	}
	mt.mu.Unlock()
}

// Snapshot returns the current belief for status reporting.
func (mt *modelTracker) Snapshot() (current string, switching bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.current, mt.switching
}
