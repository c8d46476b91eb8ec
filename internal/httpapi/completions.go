package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"browserd/internal/scheduler"
	"browserd/pkg/types"
)

// streamCompletion writes an SSE stream of chat.completion.chunk objects
// followed by a [DONE] sentinel. The first content chunk carries the
// assistant role; every chunk shares the same id and created timestamp.
func streamCompletion(w http.ResponseWriter, r *http.Request, h *scheduler.Handle, id, model string, lvl LogLevel, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	created := time.Now().Unix()
	role := "assistant"
	wroteRole := false
	status := http.StatusOK
	var termErr error

	for chunk := range h.Chunks() {
		switch chunk.Kind {
		case scheduler.ChunkContentDelta:
			delta := types.ChunkDelta{Content: chunk.Text}
			if !wroteRole {
				delta.Role = role
				wroteRole = true
			}
			writeSSEChunk(w, flusher, types.ChatCompletionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []types.ChunkChoice{{Index: 0, Delta: delta}},
			})
		case scheduler.ChunkFinish:
			reason := chunk.FinishReason
			if reason == "" {
				reason = "stop"
			}
			out := types.ChatCompletionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []types.ChunkChoice{{Index: 0, Delta: types.ChunkDelta{}, FinishReason: &reason}},
			}
			if chunk.Usage != nil {
				out.Usage = chunk.Usage
			}
			writeSSEChunk(w, flusher, out)
		case scheduler.ChunkError:
			termErr = fmt.Errorf("%s: %s", chunk.ErrKind, chunk.ErrMessage)
			// The stream is already committed; surface the failure as an
			// in-band error event before closing.
			payload, _ := json.Marshal(types.ErrorResponse{
				Error: string(chunk.ErrKind) + ": " + chunk.ErrMessage,
				Code:  terminalStatus(chunk.ErrKind),
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case scheduler.ChunkUsage:
			// Usage arrives folded into the finish chunk; standalone usage
			// chunks are not part of the OpenAI stream shape.
		}
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
	logChatEnd(r, lvl, status, time.Since(start), termErr)
}

func writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, chunk types.ChatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

// bufferCompletion drains the turn's chunks and writes a single
// chat.completion object once the turn reaches a terminal outcome.
func bufferCompletion(w http.ResponseWriter, r *http.Request, h *scheduler.Handle, id, model string, lvl LogLevel, start time.Time) {
	var sb strings.Builder
	finishReason := "stop"
	var usage *types.Usage
	var termKind scheduler.ErrorKind
	var termMsg string

	for chunk := range h.Chunks() {
		switch chunk.Kind {
		case scheduler.ChunkContentDelta:
			sb.WriteString(chunk.Text)
		case scheduler.ChunkFinish:
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		case scheduler.ChunkUsage:
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		case scheduler.ChunkError:
			termKind = chunk.ErrKind
			termMsg = chunk.ErrMessage
		}
	}

	if termKind != "" {
		status := terminalStatus(termKind)
		writeJSONError(w, status, string(termKind)+": "+termMsg)
		logChatEnd(r, lvl, status, time.Since(start), fmt.Errorf("%s: %s", termKind, termMsg))
		return
	}

	resp := types.ChatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      types.ChatMessage{Role: "assistant", Content: sb.String()},
			FinishReason: finishReason,
		}},
	}
	resp.Usage = usage
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logChatEnd(r, lvl, http.StatusInternalServerError, time.Since(start), err)
		return
	}
	logChatEnd(r, lvl, http.StatusOK, time.Since(start), nil)
}
