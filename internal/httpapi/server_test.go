package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserd/internal/browser"
	"browserd/internal/registry"
	"browserd/internal/scheduler"
	"browserd/pkg/types"
)

// stubPort scripts the browser side so handlers can be driven end to end
// through a real scheduler.
type stubPort struct {
	mu      sync.Mutex
	bodies  [][]string // frame payloads per submission, consumed in order
	cancels int
}

func (p *stubPort) SwitchModel(ctx context.Context, modelID string) error { return nil }

func (p *stubPort) SubmitPrompt(ctx context.Context, prompt string, params types.GenerationParams) (browser.TurnHandle, error) {
	return browser.TurnHandle{ID: "h"}, nil
}

func (p *stubPort) StreamEvents(ctx context.Context, h browser.TurnHandle) (<-chan browser.RawFrame, error) {
	p.mu.Lock()
	var payloads []string
	if len(p.bodies) > 0 {
		payloads = p.bodies[0]
		p.bodies = p.bodies[1:]
	} else {
		payloads = []string{`{"done":true,"finish_reason":"stop"}`}
	}
	p.mu.Unlock()
	ch := make(chan browser.RawFrame, len(payloads))
	for _, s := range payloads {
		ch <- browser.RawFrame{Payload: []byte(s), ReceivedAt: time.Now()}
	}
	close(ch)
	return ch, nil
}

func (p *stubPort) Cancel(ctx context.Context, h browser.TurnHandle) error {
	p.mu.Lock()
	p.cancels++
	p.mu.Unlock()
	return nil
}

func (p *stubPort) Close() error { return nil }

func newTestServer(t *testing.T, port *stubPort) (*httptest.Server, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(scheduler.Config{
		Port: port,
		Registry: registry.New([]types.Model{
			{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Enabled: true},
			{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Enabled: true},
		}),
		DefaultModel:   "gemini-2.5-pro",
		SilenceTimeout: 2 * time.Second,
	})
	srv := httptest.NewServer(NewMux(sched))
	t.Cleanup(func() {
		// Scheduler first: srv.Close waits for handlers, and handlers wait
		// for their turns to resolve.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sched.Close(ctx)
		srv.Close()
	})
	return srv, sched
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})
	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ModelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "list", out.Object)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "model", out.Data[0].Object)
}

func TestChatCompletionBuffered(t *testing.T) {
	port := &stubPort{bodies: [][]string{{
		`{"delta":"Hello "}`,
		`{"delta":"world"}`,
		`{"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`,
		`{"done":true,"finish_reason":"stop"}`,
	}}}
	srv, _ := newTestServer(t, port)

	resp := postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ChatCompletion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "chat.completion", out.Object)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "assistant", out.Choices[0].Message.Role)
	assert.Equal(t, "Hello world", out.Choices[0].Message.Content)
	assert.Equal(t, "stop", out.Choices[0].FinishReason)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 4, out.Usage.TotalTokens)
	assert.True(t, strings.HasPrefix(out.ID, "chatcmpl-"))
}

func TestChatCompletionStreaming(t *testing.T) {
	port := &stubPort{bodies: [][]string{{
		`{"delta":"str"}`,
		`{"delta":"eam"}`,
		`{"done":true,"finish_reason":"stop"}`,
	}}}
	srv, _ := newTestServer(t, port)

	resp := postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"gemini-2.5-pro","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readSSE(t, resp)
	require.GreaterOrEqual(t, len(events), 4) // 2 deltas, finish, [DONE]
	assert.Equal(t, "[DONE]", events[len(events)-1])

	var first types.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, "chat.completion.chunk", first.Object)
	require.Len(t, first.Choices, 1)
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)
	assert.Equal(t, "str", first.Choices[0].Delta.Content)

	var second types.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[1]), &second))
	assert.Empty(t, second.Choices[0].Delta.Role, "role only on the first chunk")

	var last types.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2]), &last))
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
}

func readSSE(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var events []string
	buf := make([]byte, 64*1024)
	var all []byte
	for {
		n, err := resp.Body.Read(buf)
		all = append(all, buf[:n]...)
		if err != nil {
			break
		}
	}
	for _, block := range strings.Split(string(all), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block %q", block)
		events = append(events, strings.TrimPrefix(block, "data: "))
	}
	return events
}

func TestChatCompletionUnknownModel(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})
	resp := postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"made-up","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var out types.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusNotFound, out.Code)
}

func TestChatCompletionValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})

	resp := postJSON(t, srv.URL+"/v1/chat/completions", `{"model":"gemini-2.5-pro","messages":[]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/chat/completions", `{not json`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(srv.URL+"/v1/chat/completions", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, r.StatusCode)
}

func TestChatCompletionUpstreamFailure(t *testing.T) {
	port := &stubPort{bodies: [][]string{{
		`{"error":{"kind":"internal","message":"console exploded"}}`,
	}}}
	srv, _ := newTestServer(t, port)

	resp := postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out types.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "upstream_error")
}

func TestQuotaLockdownMapsTo429(t *testing.T) {
	port := &stubPort{bodies: [][]string{{
		`{"error":{"kind":"quota","message":"free tier exhausted"}}`,
	}}}
	srv, _ := newTestServer(t, port)

	resp := postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Admission is now locked down as well.
	resp = postJSON(t, srv.URL+"/v1/chat/completions",
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStatusAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st types.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "ready", st.State)
}

func TestReadyzReportsDrainingAfterClose(t *testing.T) {
	srv, sched := newTestServer(t, &stubPort{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Close(ctx))

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBodySizeLimit(t *testing.T) {
	srv, _ := newTestServer(t, &stubPort{})
	old := maxBodyBytes
	SetMaxBodyBytes(64)
	defer SetMaxBodyBytes(old)

	big := fmt.Sprintf(`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":%q}]}`,
		strings.Repeat("x", 256))
	resp := postJSON(t, srv.URL+"/v1/chat/completions", big)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
