// Package api exposes the chat, ingestion and administration workflows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fabfab/stakeholder-rag/chat"
	"github.com/fabfab/stakeholder-rag/errs"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
	"github.com/fabfab/stakeholder-rag/router"
	"github.com/fabfab/stakeholder-rag/vectorstore"
)

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.RoutedAnswer, error)
}

type Ingester interface {
	IngestFile(ctx context.Context, path, namespace string) retrieval.IngestResult
	IngestDirectory(ctx context.Context, dir, namespace string) (retrieval.BatchResult, error)
	Stats(ctx context.Context) (vectorstore.Stats, error)
}

// Services are the workflows the server exposes. Clear may be nil, which disables /v1/clear.
type Services struct {
	Chat    ChatService
	Ingest  Ingester
	Roles   func() []router.RoleSummary
	Clear   func(ctx context.Context) error
	DataDir string
}

// Server exposes HTTP handlers for the stakeholder RAG workflows.
type Server struct {
	svc     Services
	logger  *slog.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Path      string `json:"path"`
	Dir       string `json:"dir"`
	Namespace string `json:"namespace"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type chatRequest struct {
	Question  string `json:"question"`
	Role      string `json:"role"`
	TopK      int    `json:"top_k"`
	Namespace string `json:"namespace"`
}

type rolesResponse struct {
	Roles []router.RoleSummary `json:"roles"`
}

func New(svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{svc: svc, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("/v1/roles", s.handleRoles)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	var roles []router.RoleSummary
	if s.svc.Roles != nil {
		roles = s.svc.Roles()
	}
	s.writeJSON(w, http.StatusOK, rolesResponse{Roles: roles})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.svc.Ingest.Stats(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	answer, err := s.svc.Chat.Chat(r.Context(), chat.Request{
		Question:  req.Question,
		Role:      profile.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		TopK:      req.TopK,
		Namespace: req.Namespace,
	})
	if err != nil {
		s.logger.Warn("chat failed", "error", err)
		s.writeJSON(w, statusFor(err), answer)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	ctx := r.Context()
	if path := strings.TrimSpace(req.Path); path != "" {
		res := s.svc.Ingest.IngestFile(ctx, path, req.Namespace)
		status := http.StatusOK
		if !res.Success {
			status = statusFor(res.Err)
		}
		s.writeJSON(w, status, res)
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.svc.DataDir
	}
	s.logger.Info("ingesting directory", "dir", dir, "namespace", req.Namespace)

	batch, err := s.svc.Ingest.IngestDirectory(ctx, dir, req.Namespace)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("ingestion failed: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}
	if s.svc.Clear == nil {
		s.writeError(w, http.StatusNotImplemented, fmt.Errorf("clearing is not supported by this deployment"))
		return
	}

	if err := s.svc.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear data: %w", err))
		return
	}

	s.logger.Info("RAG data removed")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "rag data cleared"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("api error", "status", status, "error", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps caller mistakes to 400 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrUnsupportedInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
