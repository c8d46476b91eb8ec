package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"browserd/internal/browser"
	"browserd/internal/registry"
	"browserd/pkg/types"
)

// fakePort is a scripted browser.Port. Each SubmitPrompt consumes the next
// scripted turn; frames written to that turn are delivered verbatim.
type fakePort struct {
	mu sync.Mutex

	switchErrs   []error // consumed per SwitchModel call; nil past the end
	switchCalls  []string
	submitErrs   []error // consumed per SubmitPrompt call
	submitCalls  int
	cancelCalls  []browser.TurnHandle
	closeCalls   int
	turns        []*fakeTurn // consumed per successful SubmitPrompt
	streamErrAll error
}

type fakeTurn struct {
	frames []browser.RawFrame
	// leaveOpen keeps the channel open after the scripted frames so silence
	// detection can be exercised.
	leaveOpen bool
}

func frame(s string) browser.RawFrame {
	return browser.RawFrame{Payload: []byte(s), ReceivedAt: time.Now()}
}

func deltaFrame(text string) browser.RawFrame {
	b, _ := json.Marshal(map[string]string{"delta": text})
	return browser.RawFrame{Payload: b, ReceivedAt: time.Now()}
}

func doneFrame(reason string) browser.RawFrame {
	return frame(fmt.Sprintf(`{"done":true,"finish_reason":%q}`, reason))
}

func (f *fakePort) SwitchModel(ctx context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switchCalls = append(f.switchCalls, modelID)
	if len(f.switchErrs) > 0 {
		err := f.switchErrs[0]
		f.switchErrs = f.switchErrs[1:]
		return err
	}
	return nil
}

func (f *fakePort) SubmitPrompt(ctx context.Context, prompt string, params types.GenerationParams) (browser.TurnHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return browser.TurnHandle{}, err
		}
	}
	return browser.TurnHandle{ID: fmt.Sprintf("turn-%d", f.submitCalls)}, nil
}

func (f *fakePort) StreamEvents(ctx context.Context, h browser.TurnHandle) (<-chan browser.RawFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErrAll != nil {
		return nil, f.streamErrAll
	}
	var ft *fakeTurn
	if len(f.turns) > 0 {
		ft = f.turns[0]
		f.turns = f.turns[1:]
	} else {
		ft = &fakeTurn{frames: []browser.RawFrame{doneFrame("stop")}}
	}
	ch := make(chan browser.RawFrame, len(ft.frames))
	for _, fr := range ft.frames {
		ch <- fr
	}
	if !ft.leaveOpen {
		close(ch)
	}
	return ch, nil
}

func (f *fakePort) Cancel(ctx context.Context, h browser.TurnHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, h)
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakePort) switchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.switchCalls)
}

func (f *fakePort) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelCalls)
}

func (f *fakePort) script(tt ...*fakeTurn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, tt...)
}

func testRegistry() *registry.Registry {
	return registry.New([]types.Model{
		{ID: "model-x", Name: "Model X", Enabled: true},
		{ID: "model-y", Name: "Model Y", Enabled: true},
		{ID: "model-off", Name: "Disabled", Enabled: false},
	})
}

func newTestScheduler(t *testing.T, port browser.Port, mutate func(*Config)) *Scheduler {
	t.Helper()
	cfg := Config{
		Port:           port,
		Registry:       testRegistry(),
		DefaultModel:   "model-x",
		SilenceTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg)
	t.Cleanup(func() {
		// A short deadline force-cancels any turn left streaming by the test.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// collect drains a handle's chunk stream to completion.
func collect(t *testing.T, h *Handle) []StreamChunk {
	t.Helper()
	var out []StreamChunk
	deadline := time.After(10 * time.Second)
	for {
		select {
		case c, ok := <-h.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-deadline:
			t.Fatalf("timed out draining chunks, got %d so far", len(out))
		}
	}
}

func joined(chunks []StreamChunk) string {
	var s string
	for _, c := range chunks {
		if c.Kind == ChunkContentDelta {
			s += c.Text
		}
	}
	return s
}

func terminalChunk(t *testing.T, chunks []StreamChunk) StreamChunk {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatalf("no chunks delivered")
	}
	last := chunks[len(chunks)-1]
	if last.Kind != ChunkFinish && last.Kind != ChunkError {
		t.Fatalf("last chunk is not terminal: kind=%d", last.Kind)
	}
	return last
}
