package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"browserd/internal/browser"
	"browserd/pkg/types"
)

// framePayload is the wire contract between a browser port and the bridge.
// Exactly one of the top-level fields is expected per frame.
type framePayload struct {
	Delta        string       `json:"delta"`
	Usage        *types.Usage `json:"usage"`
	Done         bool         `json:"done"`
	FinishReason string       `json:"finish_reason"`
	Error        *frameError  `json:"error"`
}

type frameError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// bridgeResult carries what the bridge learned from the terminal frame.
type bridgeResult struct {
	FinishReason string
	Usage        *types.Usage
}

// streamBridge converts one turn's raw frames into typed chunks. It is
// finite and not restartable: one bridge drive per prompt submission.
type streamBridge struct {
	silence time.Duration
}

// drive consumes frames until a terminal frame, a silence timeout, or a
// failure. Content deltas and usage are pushed through emit in arrival
// order; emit returning false means the consumer is gone and the drive ends
// with a cancelled error. Error chunks are never emitted here: failures are
// returned so the retry classifier sees them first.
func (b streamBridge) drive(ctx context.Context, frames <-chan browser.RawFrame, emit func(StreamChunk) bool) (bridgeResult, error) {
	var res bridgeResult
	timer := time.NewTimer(b.silence)
	defer timer.Stop()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				// The port stopped producing traffic without a terminal
				// frame; indistinguishable from a stalled stream.
				return res, newTurnError(KindStreamStalled, "frame stream ended without terminal frame", nil)
			}
			var p framePayload
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return res, newTurnError(KindParseFailure, "unparseable frame", err)
			}
			switch {
			case p.Error != nil:
				if p.Error.Kind == "quota" {
					return res, newTurnError(KindQuotaExhausted, p.Error.Message, nil)
				}
				return res, newTurnError(KindUpstreamError, p.Error.Kind+": "+p.Error.Message, nil)
			case p.Delta != "":
				if !emit(StreamChunk{Kind: ChunkContentDelta, Text: p.Delta}) {
					return res, newTurnError(KindCancelled, "consumer gone mid-stream", nil)
				}
			case p.Usage != nil:
				res.Usage = p.Usage
				if !emit(StreamChunk{Kind: ChunkUsage, Usage: p.Usage}) {
					return res, newTurnError(KindCancelled, "consumer gone mid-stream", nil)
				}
			case p.Done:
				res.FinishReason = p.FinishReason
				if res.FinishReason == "" {
					res.FinishReason = "stop"
				}
				return res, nil
			default:
				// Valid JSON carrying none of the known fields is still a
				// malformed frame; never swallow it.
				return res, newTurnError(KindParseFailure, "frame with no recognized fields", nil)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(b.silence)

		case <-timer.C:
			return res, newTurnError(KindStreamStalled, "no frame within silence window", nil)

		case <-ctx.Done():
			return res, newTurnError(KindStageTimeout, "streaming stage", ctx.Err())
		}
	}
}
