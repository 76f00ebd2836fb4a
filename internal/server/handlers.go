package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/tsuzuri/internal/auth"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               storage.Store
	registry            *notes.Registry
	jwtMgr              *auth.JWTManager
	apiKeyHash          string
	moderationProvider  string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	keepalive           time.Duration
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional: JWTMgr and APIKeyHash (auth disabled when empty), OpenAPISpec.
type HandlersDeps struct {
	Store               storage.Store
	Registry            *notes.Registry
	JWTMgr              *auth.JWTManager
	APIKeyHash          string
	ModerationProvider  string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	Keepalive           time.Duration
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	keepalive := d.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Handlers{
		store:               d.Store,
		registry:            d.Registry,
		jwtMgr:              d.JWTMgr,
		apiKeyHash:          d.APIKeyHash,
		moderationProvider:  d.ModerationProvider,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		keepalive:           keepalive,
	}
}

// HandleAuthToken handles POST /auth/token.
// The API key is checked against the single configured argon2id hash.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if req.APIKey == "" {
		// Keep the response time independent of whether a key was sent.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, h.apiKeyHash)
	if err != nil {
		h.logger.Error("auth: configured api key hash is unusable", "error", err)
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	if !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.Client)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("auth: token issued",
		"client", req.Client,
		"expires_at", expiresAt,
		"request_id", RequestIDFromContext(r.Context()),
	)

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Store:      "connected",
		StoreKind:  h.store.Kind(),
		Moderation: h.moderationProvider,
		Sessions:   h.registry.Len(),
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
	}
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health: store ping failed", "error", err)
		resp.Status = "unhealthy"
		resp.Store = "disconnected"
		httpStatus = http.StatusServiceUnavailable
	} else if counts, err := h.store.CountNotes(r.Context()); err == nil {
		resp.Notes = counts.Total
		resp.Pinned = counts.Pinned
	} else {
		h.logger.Warn("health: count notes failed", "error", err)
		resp.Status = "degraded"
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeInternalError logs err with the request ID and writes a 500 envelope
// that does not leak it.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// --- Shared helpers ---

// parseNoteID reads the {id} path value.
func parseNoteID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id: %q", raw)
	}
	return id, nil
}
