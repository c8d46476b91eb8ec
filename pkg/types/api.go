package types

// ChatMessage is a single message in an OpenAI-style conversation.
type ChatMessage struct {
	// Role of the author: system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: Hello there
	Content string `json:"content" example:"Hello there"`
	// Optional participant name.
	Name string `json:"name,omitempty"`
}

// ChatCompletionRequest is the payload of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	// Model identifier. A leading "models/" prefix is accepted and stripped.
	// example: gemini-2.5-pro
	Model string `json:"model" example:"gemini-2.5-pro"`
	// Conversation so far, oldest first.
	Messages []ChatMessage `json:"messages"`
	// If true, stream chunks as Server-Sent Events; otherwise buffer the
	// full completion into a single JSON response.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Sampling temperature.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Maximum number of tokens to generate.
	// example: 1024
	MaxTokens *int `json:"max_tokens,omitempty" example:"1024"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Opaque end-user identifier, passed through for logging only.
	User string `json:"user,omitempty"`
}

// ChunkDelta carries the incremental part of a streamed choice.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice inside a streamed chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE data frame of a streamed completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChatChoice is one choice of a buffered (non-streaming) completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the buffered response of POST /v1/chat/completions.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// Usage records token accounting reported by the upstream console.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelObject is one entry of GET /v1/models.
type ModelObject struct {
	ID      string `json:"id" example:"gemini-2.5-pro"`
	Object  string `json:"object" example:"model"`
	OwnedBy string `json:"owned_by" example:"browserd"`
}

// ModelsResponse wraps the model list in the OpenAI list shape.
type ModelsResponse struct {
	Object string        `json:"object" example:"list"`
	Data   []ModelObject `json:"data"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: queue full
	Error string `json:"error" example:"queue full"`
	// HTTP status code.
	// example: 429
	Code int `json:"code" example:"429"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall daemon state (starting, ready, degraded, closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Model currently selected in the browser; empty while unknown.
	// example: gemini-2.5-pro
	CurrentModel string `json:"current_model,omitempty" example:"gemini-2.5-pro"`
	// True while a model switch call is outstanding.
	Switching bool `json:"switching"`
	// Stage of the active turn; empty when idle.
	// example: streaming
	ActiveStage string `json:"active_stage,omitempty" example:"streaming"`
	// Number of queued requests waiting for the browser slot.
	QueueLen int `json:"queue_len"`
	// Queue capacity before admissions fail with queue full.
	MaxQueueDepth int `json:"max_queue_depth"`
	// Turn counters by outcome.
	TurnsDone      uint64 `json:"turns_done"`
	TurnsFailed    uint64 `json:"turns_failed"`
	TurnsCancelled uint64 `json:"turns_cancelled"`
	// Total retry attempts across all turns.
	RetriesTotal uint64 `json:"retries_total"`
	// Total model switches performed in the browser.
	SwitchesTotal uint64 `json:"switches_total"`
	// True once the console reported its quota exhausted; the daemon
	// fails new work fast until restarted.
	QuotaExhausted bool `json:"quota_exhausted"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
