package scheduler

import (
	"testing"
	"time"

	"browserd/internal/browser"
)

func TestLifecycleEventsPublished(t *testing.T) {
	pub := NewMemoryPublisher()
	port := &fakePort{}
	port.script(&fakeTurn{frames: []browser.RawFrame{deltaFrame("hey"), doneFrame("stop")}})
	s := newTestScheduler(t, port, func(c *Config) {
		c.Publisher = pub
	})

	h, err := s.Enqueue(Request{ID: "t1", Prompt: "hi"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	collect(t, h)

	for _, name := range []string{"enqueue", "turn_start", "model_switch", "submit_ok", "turn_done"} {
		if len(pub.Named(name)) == 0 {
			t.Fatalf("missing %q event; got %v", name, pub.Events())
		}
	}
	if got := pub.Named("turn_done")[0].TurnID; got != "t1" {
		t.Fatalf("turn_done for wrong turn: %q", got)
	}
}

func TestRejectEventPublished(t *testing.T) {
	pub := NewMemoryPublisher()
	port := &fakePort{}
	port.script(&fakeTurn{leaveOpen: true})
	s := newTestScheduler(t, port, func(c *Config) {
		c.Publisher = pub
		c.MaxQueueDepth = 1
		c.SilenceTimeout = 10 * time.Second
	})

	active, err := s.Enqueue(Request{Prompt: "busy"})
	if err != nil {
		t.Fatalf("enqueue active: %v", err)
	}
	waitState(t, active, TurnStreaming)
	if _, err := s.Enqueue(Request{Prompt: "queued"}); err != nil {
		t.Fatalf("enqueue queued: %v", err)
	}
	if _, err := s.Enqueue(Request{Prompt: "overflow"}); !IsQueueFull(err) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if len(pub.Named("enqueue_reject")) != 1 {
		t.Fatalf("expected one reject event, got %v", pub.Events())
	}
}
