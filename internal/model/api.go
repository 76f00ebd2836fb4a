package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
	Client string `json:"client,omitempty"` // Free-form client label recorded as the token subject.
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenSessionResponse is the response for POST /v1/sessions.
type OpenSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
}

// SetFilterRequest is the request body for PUT /v1/sessions/{session_id}/filter.
type SetFilterRequest struct {
	Query string `json:"query"`
}

// NoteInput is the request body for adding or editing a note, and for
// previewing moderation of a draft.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PreviewResponse is the response for POST /v1/sessions/{session_id}/preview.
// Applied is false when a newer preview for the same session superseded this one.
type PreviewResponse struct {
	Verdict Verdict `json:"verdict"`
	Applied bool    `json:"applied"`
}

// WriteResponse is the response for add and edit. Committed is false when the
// moderation gate blocked the write; Note is set only when committed.
type WriteResponse struct {
	Committed bool    `json:"committed"`
	Note      *Note   `json:"note,omitempty"`
	Verdict   Verdict `json:"verdict"`
}

// NotesResponse is the response for note listings.
type NotesResponse struct {
	Query string `json:"query"`
	Notes []Note `json:"notes"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Store      string `json:"store"`
	StoreKind  string `json:"store_kind"`
	Moderation string `json:"moderation"`
	Notes      int64  `json:"notes"`
	Pinned     int64  `json:"pinned"`
	Sessions   int    `json:"sessions"`
	Uptime     int64  `json:"uptime_seconds"`
}
