package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/tsuzuri/internal/auth"
	"github.com/ashita-ai/tsuzuri/internal/ratelimit"
	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// Server is the Tsuzuri HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): JWTMgr, Limiter, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store    storage.Store
	Registry *notes.Registry
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr    *auth.JWTManager // Together with APIKeyHash, enables bearer auth.
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	APIKeyHash         string
	ModerationProvider string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	Keepalive           time.Duration // SSE keepalive; zero uses DefaultKeepalive.

	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	jwtMgr := cfg.JWTMgr
	if cfg.APIKeyHash == "" {
		jwtMgr = nil
	}

	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Registry:            cfg.Registry,
		JWTMgr:              jwtMgr,
		APIKeyHash:          cfg.APIKeyHash,
		ModerationProvider:  cfg.ModerationProvider,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		Keepalive:           cfg.Keepalive,
	})

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	rl := ratelimit.Middleware(limiter, rateLimitKey, rateLimitDenied)
	authRL := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc, rateLimitDenied)

	mux := http.NewServeMux()

	// Token exchange (no auth, rate limited by IP). Only served when a key is configured.
	if jwtMgr != nil {
		mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))
	}

	// Stateless reads.
	mux.Handle("GET /v1/notes", rl(http.HandlerFunc(h.HandleListNotes)))
	mux.Handle("GET /v1/notes/{id}", rl(http.HandlerFunc(h.HandleGetNote)))

	// Controller sessions.
	mux.Handle("POST /v1/sessions", rl(http.HandlerFunc(h.HandleOpenSession)))
	mux.Handle("DELETE /v1/sessions/{session_id}", rl(http.HandlerFunc(h.HandleCloseSession)))
	mux.Handle("PUT /v1/sessions/{session_id}/filter", rl(http.HandlerFunc(h.HandleSetFilter)))
	mux.Handle("GET /v1/sessions/{session_id}/notes", rl(http.HandlerFunc(h.HandleSessionNotes)))
	mux.Handle("POST /v1/sessions/{session_id}/preview", rl(http.HandlerFunc(h.HandlePreview)))
	mux.Handle("GET /v1/sessions/{session_id}/verdict", rl(http.HandlerFunc(h.HandleVerdict)))
	mux.Handle("POST /v1/sessions/{session_id}/notes", rl(http.HandlerFunc(h.HandleAddNote)))
	mux.Handle("PUT /v1/sessions/{session_id}/notes/{id}", rl(http.HandlerFunc(h.HandleEditNote)))
	mux.Handle("POST /v1/sessions/{session_id}/notes/{id}/pin", rl(http.HandlerFunc(h.HandleTogglePin)))
	mux.Handle("DELETE /v1/sessions/{session_id}/notes/{id}", rl(http.HandlerFunc(h.HandleDeleteNote)))

	// Long-lived stream (no rate limit).
	mux.HandleFunc("GET /v1/sessions/{session_id}/stream", h.HandleSessionStream)

	// MCP StreamableHTTP transport (auth required when enabled).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec and health (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(jwtMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	// Shutdown does not cancel request contexts; closing the sessions ends
	// their SSE streams so in-flight connections can drain.
	httpServer.RegisterOnShutdown(cfg.Registry.CloseAll)

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		logger:     cfg.Logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
