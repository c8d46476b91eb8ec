package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("BROWSERD_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func logChatStart(r *http.Request, lvl LogLevel, model string, stream bool) {
	if lvl < LevelDebug {
		return
	}
	if zlog != nil {
		zlog.Debug().Str("model", model).Bool("stream", stream).Str("remote", r.RemoteAddr).Msg("chat completion started")
		return
	}
	log.Printf("chat> model=%s stream=%v remote=%s", model, stream, r.RemoteAddr)
}

func logChatEnd(r *http.Request, lvl LogLevel, status int, dur time.Duration, err error) {
	if err != nil {
		if lvl < LevelError {
			return
		}
		if zlog != nil {
			zlog.Error().Int("status", status).Dur("duration", dur).Err(err).Msg("chat completion failed")
			return
		}
		log.Printf("chat> status=%d dur=%s err=%v", status, dur, err)
		return
	}
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		zlog.Info().Int("status", status).Dur("duration", dur).Msg("chat completion done")
		return
	}
	log.Printf("chat> status=%d dur=%s", status, dur)
}
