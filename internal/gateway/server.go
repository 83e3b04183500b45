package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"raggate/internal/common/fsutil"
	"raggate/internal/retrieval"
	"raggate/pkg/types"
)

// InferenceAdmin is the non-chat slice of the inference client the
// gateway proxies to its UI: inventory, switching, status, liveness.
type InferenceAdmin interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) (types.ModelListResponse, error)
	Status(ctx context.Context) (types.StatusResponse, error)
	SwitchModel(ctx context.Context, name string, kind types.ModelKind) (types.SwitchModelResponse, error)
}

// KnowledgeBase manages the retrieval corpus: ingest, inventory,
// removal by source.
type KnowledgeBase interface {
	Ingest(ctx context.Context, source, text string) (int, error)
	Documents(ctx context.Context) ([]retrieval.DocumentInfo, error)
	DeleteDocument(ctx context.Context, source string) (int, error)
}

// Config wires a Server. ModelsDir may be empty when the gateway does
// not share a volume with the inference daemon; uploads are then
// rejected.
type Config struct {
	Orchestrator   *Orchestrator
	Inference      InferenceAdmin
	Knowledge      KnowledgeBase
	ModelsDir      string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server is the client-facing HTTP/WebSocket surface of the gateway.
type Server struct {
	orch      *Orchestrator
	inference InferenceAdmin
	knowledge KnowledgeBase
	modelsDir string
	log       zerolog.Logger
}

const maxBodyBytes = 32 << 20 // uploads included

// NewServer builds the server and its router.
func NewServer(cfg Config) (*Server, http.Handler) {
	s := &Server{
		orch:      cfg.Orchestrator,
		inference: cfg.Inference,
		knowledge: cfg.Knowledge,
		modelsDir: cfg.ModelsDir,
		log:       cfg.Logger,
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws", s.handleWS)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/knowledge", s.handleIngest)
	r.Get("/api/knowledge", s.handleListDocuments)
	r.Delete("/api/knowledge/{source}", s.handleDeleteDocument)
	r.Get("/api/models", s.handleListModels)
	r.Post("/api/models/switch", s.handleSwitchModel)
	r.Post("/api/models/upload", s.handleUploadModel)
	r.Get("/api/status", s.handleStatus)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	return s, r
}

// handleChat is the buffered alternative to the WebSocket: same turn
// logic, whole answer in one response.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatAPIRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sessionID, answer, err := s.orch.Answer(r.Context(), req.SessionID, req.Query, func(string) error { return nil })
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, types.ChatAPIResponse{SessionID: sessionID, Answer: answer})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	var req struct {
		Source string `json:"source"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" || strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "source and text are required")
		return
	}
	n, err := s.knowledge.Ingest(r.Context(), req.Source, req.Text)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"source": req.Source, "chunks": n})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	docs, err := s.knowledge.Documents(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if docs == nil {
		docs = []retrieval.DocumentInfo{}
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	source := chi.URLParam(r, "source")
	removed, err := s.knowledge.DeleteDocument(r.Context(), source)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if removed == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no document named %q", source))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"source": source, "chunks_removed": removed})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	out, err := s.inference.ListModels(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.inference.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchModelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelName == "" {
		s.writeError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	ack, err := s.inference.SwitchModel(r.Context(), req.ModelName, req.ModelType)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

// handleUploadModel stores a multipart model file into the shared models
// directory. Existing filenames are never overwritten.
func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	if s.modelsDir == "" {
		s.writeError(w, http.StatusServiceUnavailable, "model uploads not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == "/" || name == "" {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	dst := filepath.Join(s.modelsDir, name)
	if fsutil.PathExists(dst) {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("model %q already exists", name))
		return
	}
	// O_EXCL closes the race between the existence check and the write
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("model %q already exists", name))
			return
		}
		s.writeError(w, http.StatusInternalServerError, "could not store model file")
		return
	}
	defer out.Close()

	n, err := io.Copy(out, file)
	if err != nil {
		os.Remove(dst)
		s.writeError(w, http.StatusInternalServerError, "upload interrupted")
		return
	}
	s.log.Info().Str("model", name).Int64("bytes", n).Msg("model uploaded")
	s.writeJSON(w, http.StatusCreated, map[string]any{"model": name, "bytes": n})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.inference.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "inference daemon unreachable")
		return
	}
	w.Write([]byte("ready"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
