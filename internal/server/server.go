// Package server exposes the relay core over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HingolSingh/airelay/internal/analytics"
	"github.com/HingolSingh/airelay/internal/dispatch"
	"github.com/HingolSingh/airelay/internal/llm"
	"github.com/HingolSingh/airelay/internal/router"
)

// Server is the HTTP front for the dispatch engine.
type Server struct {
	engine    *dispatch.Engine
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	stats     *analytics.MemorySink
	metricsH  http.Handler
	apiKey    string
	startTime time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAPIKey sets the API key for authentication. Empty disables auth.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStats exposes per-user stats from the memory sink.
func WithStats(sink *analytics.MemorySink) Option {
	return func(s *Server) { s.stats = sink }
}

// WithMetricsHandler mounts the metrics endpoint.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsH = h }
}

// New creates the HTTP server over the engine.
func New(engine *dispatch.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/users/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /v1/users/{id}/provider", s.handleGetProvider)
	mux.HandleFunc("PUT /v1/users/{id}/provider", s.handleSetProvider)
	if s.stats != nil {
		mux.HandleFunc("GET /v1/users/{id}/stats", s.handleStats)
	}
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.authMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("relay server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health and metrics don't require auth.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- wire types ---

type chatRequest struct {
	UserID     string     `json:"user_id"`
	Text       string     `json:"text,omitempty"`
	Parts      []llm.Part `json:"parts,omitempty"`
	Capability string     `json:"capability,omitempty"`
	Provider   string     `json:"provider,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON.")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required.")
		return
	}

	capability, ok := llm.ParseCapability(req.Capability)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("Unknown capability %q.", req.Capability))
		return
	}

	parts := req.Parts
	if len(parts) == 0 && req.Text != "" {
		parts = []llm.Part{llm.TextPart(req.Text)}
	}
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "text or parts is required.")
		return
	}

	resp, err := s.engine.HandleMessage(r.Context(), dispatch.MessageRequest{
		UserID:           req.UserID,
		Parts:            parts,
		Capability:       capability,
		ProviderOverride: req.Provider,
	})
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeChatError maps engine failures onto HTTP statuses, always carrying a
// human-readable message.
func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var rle *dispatch.RateLimitError
	if errors.As(err, &rle) {
		secs := int(rle.RetryAfter.Seconds()) + 1
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      "rate_limited",
			Message:    rle.UserMessage(),
			RetryAfter: secs,
		})
		return
	}

	var ncp *router.NoCapableProviderError
	if errors.As(err, &ncp) {
		writeError(w, http.StatusBadRequest, "no_capable_provider", ncp.UserMessage())
		return
	}

	var apf *dispatch.AllProvidersFailedError
	if errors.As(err, &apf) {
		s.logger.Error("all providers failed", "error", apf.LastErr)
		writeError(w, http.StatusBadGateway, "all_providers_failed", apf.UserMessage())
		return
	}

	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	s.engine.Reset(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": s.engine.Preference(r.Context(), userID),
	})
}

func (s *Server) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON.")
		return
	}
	if err := s.engine.SetPreference(r.Context(), userID, body.Provider); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": body.Provider})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	writeJSON(w, http.StatusOK, s.stats.StatsFor(userID))
}
