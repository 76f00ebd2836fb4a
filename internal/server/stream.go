package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// SSE event names on GET /v1/sessions/{session_id}/stream.
const (
	eventNotes   = "notes"
	eventVerdict = "verdict"
)

// DefaultKeepalive is the interval between SSE comment lines on an idle stream.
const DefaultKeepalive = 15 * time.Second

// HandleSessionStream handles GET /v1/sessions/{session_id}/stream (SSE).
//
// The stream starts with the current filtered list and the current verdict,
// then sends each newer value. Both sources conflate, so a slow client skips
// intermediate lists rather than falling behind.
func (h *Handlers) HandleSessionStream(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.session(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("sse: streaming not supported", "error", err)
		return
	}

	// Disable the server's WriteTimeout for this long-lived connection.
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	notesCh := s.Notes(ctx)
	verdicts := s.Verdicts(ctx)

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	send := func(event []byte) bool {
		if _, err := w.Write(event); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-keepalive.C:
			// An open stream counts as session use.
			h.registry.Touch(id)
			if !send([]byte(":keepalive\n\n")) {
				return
			}
		case list, ok := <-notesCh:
			if !ok {
				return
			}
			if !send(formatSSE(eventNotes, list)) {
				return
			}
		case v, ok := <-verdicts:
			if !ok {
				return
			}
			if !send(formatSSE(eventVerdict, v)) {
				return
			}
		}
	}
}

// formatSSE formats a payload as a Server-Sent Events message.
// JSON encoding never emits raw newlines, so one data line suffices.
func formatSSE(eventType string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + string(data) + "\n\n")
}

