package scheduler

import (
	"context"
	"errors"
	"testing"
)

func TestReconcileIsIdempotent(t *testing.T) {
	port := &fakePort{}
	mt := newModelTracker(port)
	ctx := context.Background()

	switched, err := mt.Reconcile(ctx, "m1")
	if err != nil || !switched {
		t.Fatalf("first reconcile: switched=%v err=%v", switched, err)
	}
	switched, err = mt.Reconcile(ctx, "m1")
	if err != nil || switched {
		t.Fatalf("second reconcile must be a no-op: switched=%v err=%v", switched, err)
	}
	if got := port.switchCount(); got != 1 {
		t.Fatalf("expected 1 browser switch, got %d", got)
	}
}

func TestReconcileFailureClearsSwitching(t *testing.T) {
	port := &fakePort{switchErrs: []error{errors.New("dropdown never opened")}}
	mt := newModelTracker(port)

	_, err := mt.Reconcile(context.Background(), "m1")
	if KindOf(err) != KindSwitchFailed {
		t.Fatalf("expected switch-failed, got %v", err)
	}
	cur, switching := mt.Snapshot()
	if switching {
		t.Fatalf("switching flag survived a failure")
	}
	if cur == "m1" {
		t.Fatalf("failed switch must not update the current belief")
	}
}

func TestInvalidateForcesSwitch(t *testing.T) {
	port := &fakePort{}
	mt := newModelTracker(port)
	ctx := context.Background()

	if _, err := mt.Reconcile(ctx, "m1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	mt.Invalidate()
	switched, err := mt.Reconcile(ctx, "m1")
	if err != nil || !switched {
		t.Fatalf("reconcile after invalidate: switched=%v err=%v", switched, err)
	}
	if got := port.switchCount(); got != 2 {
		t.Fatalf("expected 2 browser switches, got %d", got)
	}
}

func TestObserveSetsBelief(t *testing.T) {
	port := &fakePort{}
	mt := newModelTracker(port)
	mt.Observe("m1")

	switched, err := mt.Reconcile(context.Background(), "m1")
	if err != nil || switched {
		t.Fatalf("reconcile after observe must be a no-op: switched=%v err=%v", switched, err)
	}
	if got := port.switchCount(); got != 0 {
		t.Fatalf("expected no browser switch, got %d", got)
	}
}
