package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"browserd/internal/scheduler"
	"browserd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Models() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Enqueue(req scheduler.Request) (*scheduler.Handle, error)
	Cancel(h *scheduler.Handle)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		methods := corsAllowedMethods
		if len(methods) == 0 {
			methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		}
		headers := corsAllowedHeaders
		if len(headers) == 0 {
			headers = []string{"Authorization", "Content-Type"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
		}))
	}

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		models := svc.Models()
		resp := types.ModelsResponse{Object: "list", Data: make([]types.ModelObject, 0, len(models))}
		for _, m := range models {
			resp.Data = append(resp.Data, types.ModelObject{ID: m.ID, Object: "model", OwnedBy: "browserd"})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		handleChatCompletions(svc, w, r)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func handleChatCompletions(svc Service, w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}

	id := "chatcmpl-" + uuid.NewString()
	sreq := scheduler.Request{
		ID:     id,
		Model:  req.Model,
		Prompt: types.RenderPrompt(req.Messages),
		Params: types.GenerationParams{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		},
		User:        req.User,
		SubmittedAt: time.Now(),
	}

	lvl := requestLogLevel(r)
	start := time.Now()
	logChatStart(r, lvl, req.Model, req.Stream)

	h, err := svc.Enqueue(sreq)
	if err != nil {
		status := admissionStatus(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure(string(scheduler.KindOf(err)))
		}
		writeJSONError(w, status, err.Error())
		logChatEnd(r, lvl, status, time.Since(start), err)
		return
	}

	// Both client disconnects and process shutdown cancel the turn.
	turnCtx, cancel := requestCtx(r)
	defer cancel()
	go func() {
		select {
		case <-turnCtx.Done():
			svc.Cancel(h)
		case <-h.Done():
		}
	}()

	if req.Stream {
		streamCompletion(w, r, h, id, req.Model, lvl, start)
		return
	}
	bufferCompletion(w, r, h, id, req.Model, lvl, start)
}

// admissionStatus maps admission errors onto HTTP status codes.
func admissionStatus(err error) int {
	switch {
	case scheduler.IsQueueFull(err), scheduler.IsQuotaExhausted(err):
		return http.StatusTooManyRequests
	case scheduler.IsModelNotAvailable(err):
		return http.StatusNotFound
	case scheduler.IsShuttingDown(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// terminalStatus maps a terminal error chunk onto an HTTP status code for
// buffered responses.
func terminalStatus(kind scheduler.ErrorKind) int {
	switch kind {
	case scheduler.KindQuotaExhausted:
		return http.StatusTooManyRequests
	case scheduler.KindModelUnavailable, scheduler.KindUpstreamError:
		return http.StatusBadGateway
	case scheduler.KindUpstreamTimeout, scheduler.KindStageTimeout:
		return http.StatusGatewayTimeout
	case scheduler.KindProtocolError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
