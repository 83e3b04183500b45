package rpcapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raggate/internal/manager"
	"raggate/internal/registry"
	"raggate/pkg/types"
)

// Service defines the manager capabilities required by the protocol layer.
type Service interface {
	ModelsDir() string
	Snapshot() types.StatusResponse
	Switch(name string, kind types.ModelKind) (manager.SwitchOutcome, error)
	ChatStream(ctx context.Context, messages []types.ChatMessage, onToken func(string) error) error
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Ready() bool
}

// NewMux builds the inference-side HTTP API. Chat streams NDJSON frames;
// everything else is plain JSON.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		handleListModels(svc, w)
	})
	r.Post("/v1/models/switch", func(w http.ResponseWriter, r *http.Request) {
		handleSwitch(svc, w, r)
	})
	r.Post("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(svc, w, r)
	})
	r.Post("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		handleEmbeddings(svc, w, r)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Snapshot())
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
		w.Write([]byte("loading"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// handleListModels is read-only and available regardless of manager
// status; a scan failure is the only error path.
//
// @Summary List available models
// @Produce json
// @Success 200 {object} types.ModelListResponse
// @Router /v1/models [get]
func handleListModels(svc Service, w http.ResponseWriter) {
	models, err := registry.ScanDir(svc.ModelsDir())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "scan models: "+err.Error())
		return
	}
	snap := svc.Snapshot()
	writeJSON(w, http.StatusOK, types.ModelListResponse{
		GenerationModels:       registry.Names(models, types.KindGeneration),
		EmbeddingModels:        registry.Names(models, types.KindEmbedding),
		CurrentGenerationModel: snap.Generation.Current,
		CurrentEmbeddingModel:  snap.Embedding.Current,
		Device:                 snap.Device,
	})
}

// handleSwitch acknowledges synchronously; the load itself is background
// work observed via /status.
//
// @Summary Switch the active model
// @Accept json
// @Produce json
// @Success 200 {object} types.SwitchModelResponse
// @Router /v1/models/switch [post]
func handleSwitch(svc Service, w http.ResponseWriter, r *http.Request) {
	var req types.SwitchModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	kind := req.ModelType
	if kind == "" {
		kind = types.KindGeneration
	}
	outcome, err := svc.Switch(req.ModelName, kind)
	switch outcome {
	case manager.OutcomeNotFound:
		msg := "model not found"
		if err != nil {
			msg = err.Error()
		}
		writeJSON(w, http.StatusNotFound, types.SwitchModelResponse{Success: false, Message: msg})
	case manager.OutcomeBusy:
		writeJSON(w, http.StatusTooManyRequests, types.SwitchModelResponse{Success: false, Message: err.Error()})
	case manager.OutcomeAlreadyLoaded:
		writeJSON(w, http.StatusOK, types.SwitchModelResponse{Success: true, Message: "already loaded"})
	default:
		writeJSON(w, http.StatusOK, types.SwitchModelResponse{Success: true, Message: "loading started"})
	}
}

// handleChat streams one NDJSON frame per token. Failures before the
// first frame map to an HTTP error; failures mid-stream become a single
// trailing error frame; output already sent is never retracted.
//
// @Summary Streaming chat
// @Accept json
// @Produce application/x-ndjson
// @Router /v1/chat [post]
func handleChat(svc Service, w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}

	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	enc := json.NewEncoder(w)
	start := time.Now()
	started := false

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	err := svc.ChatStream(ctx, req.Messages, func(tok string) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			started = true
		}
		if err := enc.Encode(types.StreamFrame{Token: tok}); err != nil {
			return err
		}
		chatTokensTotal.Inc()
		flush()
		return nil
	})
	if err != nil {
		// Client went away; nothing useful to send.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if !started {
			writeChatError(w, err)
			logChat(r, "error", req.SessionID, time.Since(start), err)
			return
		}
		_ = enc.Encode(types.StreamFrame{Error: err.Error()})
		flush()
		logChat(r, "stream_error", req.SessionID, time.Since(start), err)
		return
	}
	if !started {
		// Model produced nothing at all; tell the client explicitly.
		w.Header().Set("Content-Type", "application/x-ndjson")
		_ = enc.Encode(types.StreamFrame{Error: "model produced no output"})
		flush()
	}
	logChat(r, "ok", req.SessionID, time.Since(start), nil)
}

// handleEmbeddings returns vectors in request order; the whole call
// fails when the embedding model is unavailable.
//
// @Summary Batch embeddings
// @Accept json
// @Produce json
// @Success 200 {object} types.EmbeddingsResponse
// @Router /v1/embeddings [post]
func handleEmbeddings(svc Service, w http.ResponseWriter, r *http.Request) {
	var req types.EmbeddingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	vectors, err := svc.EmbedBatch(r.Context(), req.Texts)
	if err != nil {
		writeChatError(w, err)
		return
	}
	if vectors == nil {
		vectors = [][]float32{}
	}
	writeJSON(w, http.StatusOK, types.EmbeddingsResponse{Embeddings: vectors})
}

// writeChatError maps typed manager errors onto HTTP status codes.
func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case manager.IsModelNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case manager.IsBusy(err):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case manager.IsNotReady(err), manager.IsDependencyUnavailable(err):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return errBadRequest
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return errBadRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
