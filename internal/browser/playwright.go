package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"browserd/pkg/types"
)

// SessionConfig holds tunables for the Playwright-backed console session.
type SessionConfig struct {
	// ConsoleURL is the chat page of the AI web console.
	ConsoleURL string
	// AuthStatePath points at a Playwright storage-state JSON file with the
	// logged-in cookies. Empty means a fresh, unauthenticated context.
	AuthStatePath string
	Headless      bool
	// StreamURLPart identifies the console's generate endpoint among
	// intercepted responses, matched as a URL substring.
	StreamURLPart string
	// NavTimeout bounds page navigation and selector waits.
	NavTimeout time.Duration
	Logger     zerolog.Logger
}

const (
	defaultStreamURLPart = "GenerateContent"
	defaultNavTimeout    = 30 * time.Second
	// frameBuf bounds how many normalized frames may pile up before the
	// interception callback blocks.
	frameBuf = 256
)

// Session drives one real browser page and implements Port. The scheduler's
// single-worker guarantee means at most one turn is in flight, but the
// response interception callback runs on Playwright's dispatch goroutine, so
// the current-turn fields are mutex-guarded.
type Session struct {
	cfg SessionConfig

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	mu        sync.Mutex
	turnID    string
	frames    chan RawFrame
	lastModel string
}

// NewSession launches the browser, opens the console page and registers
// network interception. The returned Session is ready for SwitchModel and
// SubmitPrompt calls.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ConsoleURL == "" {
		return nil, fmt.Errorf("browser: console URL is required")
	}
	if cfg.StreamURLPart == "" {
		cfg.StreamURLPart = defaultStreamURLPart
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("browser: start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	ctxOpts := playwright.BrowserNewContextOptions{}
	if cfg.AuthStatePath != "" {
		ctxOpts.StorageStatePath = playwright.String(cfg.AuthStatePath)
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("browser: new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("browser: new page: %w", err)
	}

	s := &Session{cfg: cfg, pw: pw, browser: b, bctx: bctx, page: page}
	page.OnResponse(s.onResponse)

	timeout := float64(cfg.NavTimeout / time.Millisecond)
	if _, err := page.Goto(cfg.ConsoleURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   &timeout,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: open console: %w", err)
	}
	cfg.Logger.Info().Str("url", cfg.ConsoleURL).Msg("console page opened")
	return s, nil
}

// SelectedModel reads the model picker trigger and reports which of the
// candidate ids the console currently has selected. Empty when the trigger is
// missing or the label matches no candidate.
func (s *Session) SelectedModel(ctx context.Context, candidates []string) string {
	trigger, err := s.firstVisible(ctx, modelSelectorTriggers, "model selector")
	if err != nil {
		return ""
	}
	label, err := trigger.First().TextContent()
	if err != nil {
		return ""
	}
	id := matchCandidate(label, candidates)
	if id != "" {
		s.mu.Lock()
		s.lastModel = id
		s.mu.Unlock()
	}
	return id
}

// SwitchModel opens the model picker and clicks the option whose label
// matches modelID.
func (s *Session) SwitchModel(ctx context.Context, modelID string) error {
	trigger, err := s.firstVisible(ctx, modelSelectorTriggers, "model selector")
	if err != nil {
		return err
	}
	if err := trigger.Click(); err != nil {
		return fmt.Errorf("browser: open model picker: %w", err)
	}
	opts, err := s.firstVisible(ctx, modelOptionListSelectors, "model options")
	if err != nil {
		return err
	}
	n, err := opts.Count()
	if err != nil {
		return fmt.Errorf("browser: list model options: %w", err)
	}
	for i := 0; i < n; i++ {
		opt := opts.Nth(i)
		label, err := opt.TextContent()
		if err != nil {
			continue
		}
		if matchesModel(label, modelID) {
			if err := opt.Click(); err != nil {
				return fmt.Errorf("browser: select model %s: %w", modelID, err)
			}
			s.mu.Lock()
			s.lastModel = modelID
			s.mu.Unlock()
			s.cfg.Logger.Info().Str("model", modelID).Msg("model switched")
			return nil
		}
	}
	return fmt.Errorf("browser: model %s not present in picker", modelID)
}

// SubmitPrompt types the prompt and clicks run. Frames intercepted from this
// point on belong to the returned handle.
func (s *Session) SubmitPrompt(ctx context.Context, prompt string, params types.GenerationParams) (TurnHandle, error) {
	input, err := s.firstVisible(ctx, promptInputSelectors, "prompt input")
	if err != nil {
		return TurnHandle{}, err
	}
	if err := s.applyParams(ctx, params); err != nil {
		return TurnHandle{}, err
	}
	if err := input.Fill(prompt); err != nil {
		return TurnHandle{}, fmt.Errorf("browser: fill prompt: %w", err)
	}
	run, err := s.firstVisible(ctx, runButtonSelectors, "run button")
	if err != nil {
		return TurnHandle{}, err
	}

	h := TurnHandle{ID: uuid.NewString()}
	s.mu.Lock()
	s.turnID = h.ID
	s.frames = make(chan RawFrame, frameBuf)
	s.mu.Unlock()

	if err := run.Click(); err != nil {
		s.detachTurn(h.ID)
		return TurnHandle{}, fmt.Errorf("browser: click run: %w", err)
	}
	return h, nil
}

// StreamEvents returns the frame channel of the given turn.
func (s *Session) StreamEvents(ctx context.Context, h TurnHandle) (<-chan RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnID != h.ID || s.frames == nil {
		return nil, fmt.Errorf("browser: unknown turn %s", h.ID)
	}
	return s.frames, nil
}

// Cancel clicks the stop button if it is still visible. A turn that already
// finished has no stop button; that is not an error.
func (s *Session) Cancel(ctx context.Context, h TurnHandle) error {
	stop, err := s.firstVisible(ctx, stopButtonSelectors, "stop button")
	if err != nil {
		s.detachTurn(h.ID)
		return nil
	}
	clickErr := stop.Click()
	s.detachTurn(h.ID)
	if clickErr != nil {
		return fmt.Errorf("browser: click stop: %w", clickErr)
	}
	return nil
}

// Close tears down the page, context, browser and driver in order.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.frames != nil {
		close(s.frames)
		s.frames = nil
		s.turnID = ""
	}
	s.mu.Unlock()
	var first error
	if s.bctx != nil {
		if err := s.bctx.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// onResponse runs on Playwright's event goroutine for every response the
// page receives. Generate-endpoint bodies are normalized into frames and
// handed to the active turn.
func (s *Session) onResponse(resp playwright.Response) {
	if !strings.Contains(resp.URL(), s.cfg.StreamURLPart) {
		return
	}
	body, err := resp.Body()

	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	turnID := s.turnID
	s.turnID = ""
	s.mu.Unlock()
	if frames == nil {
		return
	}

	if err != nil {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]string{"kind": "network", "message": err.Error()},
		})
		frames <- RawFrame{Payload: payload, ReceivedAt: time.Now()}
		close(frames)
		return
	}
	for _, p := range normalizeConsoleBody(body) {
		select {
		case frames <- RawFrame{Payload: p, ReceivedAt: time.Now()}:
		default:
			// Consumer stopped draining (stage timeout or cancel); do not
			// wedge Playwright's event goroutine behind a dead turn.
			close(frames)
			return
		}
	}
	close(frames)
	s.cfg.Logger.Debug().Str("turn", turnID).Int("bytes", len(body)).Msg("generate response intercepted")
}

// normalizeConsoleBody splits a generate-endpoint body into the small JSON
// payloads the stream bridge understands. The console emits newline-delimited
// JSON objects; recognized fields are re-encoded into the frame contract and
// unrecognized lines are forwarded untouched so the bridge can classify them.
func normalizeConsoleBody(body []byte) [][]byte {
	var out [][]byte
	sawDone := false
	for _, line := range bytes.Split(body, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var obj struct {
			Text          string          `json:"text"`
			FinishReason  string          `json:"finishReason"`
			UsageMetadata json.RawMessage `json:"usageMetadata"`
			Error         json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(line, &obj); err != nil {
			out = append(out, append([]byte(nil), line...))
			continue
		}
		switch {
		case obj.Error != nil:
			p, _ := json.Marshal(map[string]json.RawMessage{"error": obj.Error})
			out = append(out, p)
		case obj.Text != "":
			p, _ := json.Marshal(map[string]string{"delta": obj.Text})
			out = append(out, p)
		case obj.UsageMetadata != nil:
			var um struct {
				PromptTokenCount     int `json:"promptTokenCount"`
				CandidatesTokenCount int `json:"candidatesTokenCount"`
				TotalTokenCount      int `json:"totalTokenCount"`
			}
			if json.Unmarshal(obj.UsageMetadata, &um) == nil {
				p, _ := json.Marshal(map[string]any{"usage": map[string]int{
					"prompt_tokens":     um.PromptTokenCount,
					"completion_tokens": um.CandidatesTokenCount,
					"total_tokens":      um.TotalTokenCount,
				}})
				out = append(out, p)
			}
		case obj.FinishReason != "":
			p, _ := json.Marshal(map[string]any{"done": true, "finish_reason": strings.ToLower(obj.FinishReason)})
			out = append(out, p)
			sawDone = true
		default:
			out = append(out, append([]byte(nil), line...))
		}
	}
	if !sawDone && len(out) > 0 {
		// Body ended without an explicit finish marker; the response being
		// complete is itself the terminal signal.
		p, _ := json.Marshal(map[string]any{"done": true, "finish_reason": "stop"})
		out = append(out, p)
	}
	return out
}

// firstVisible walks a selector fallback list and returns the first locator
// that exists and becomes visible within a short per-selector budget.
func (s *Session) firstVisible(ctx context.Context, selectors []string, what string) (playwright.Locator, error) {
	perSelector := float64(2000)
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loc := s.page.Locator(sel)
		n, err := loc.Count()
		if err != nil || n == 0 {
			continue
		}
		first := loc.First()
		if err := first.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: &perSelector,
		}); err != nil {
			continue
		}
		if sel == selectors[0] {
			return loc, nil
		}
		s.cfg.Logger.Debug().Str("element", what).Str("selector", sel).Msg("fallback selector matched")
		return loc, nil
	}
	return nil, fmt.Errorf("browser: %s not found on page", what)
}

// applyParams pushes sampling knobs into the console's settings pane. Only
// knobs with known controls are applied; the rest ride on console defaults.
func (s *Session) applyParams(ctx context.Context, p types.GenerationParams) error {
	if p.Temperature == nil && p.MaxTokens == nil {
		return nil
	}
	if p.Temperature != nil {
		loc := s.page.Locator("ms-prompt-run-settings input[aria-label='Temperature']")
		if n, err := loc.Count(); err == nil && n > 0 {
			if err := loc.First().Fill(fmt.Sprintf("%g", *p.Temperature)); err != nil {
				return fmt.Errorf("browser: set temperature: %w", err)
			}
		}
	}
	if p.MaxTokens != nil {
		loc := s.page.Locator("ms-prompt-run-settings input[aria-label='Output length']")
		if n, err := loc.Count(); err == nil && n > 0 {
			if err := loc.First().Fill(fmt.Sprintf("%d", *p.MaxTokens)); err != nil {
				return fmt.Errorf("browser: set max tokens: %w", err)
			}
		}
	}
	return nil
}

func (s *Session) detachTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnID != id {
		return
	}
	if s.frames != nil {
		close(s.frames)
	}
	s.frames = nil
	s.turnID = ""
}

// matchCandidate maps a picker label to the first candidate id it matches.
func matchCandidate(label string, candidates []string) string {
	for _, id := range candidates {
		if matchesModel(label, id) {
			return id
		}
	}
	return ""
}

func matchesModel(label, modelID string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	id := strings.ToLower(modelID)
	return strings.Contains(label, id) || strings.Contains(strings.ReplaceAll(label, " ", "-"), id)
}
