package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/service/notes"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// HandleListNotes handles GET /v1/notes?q=.
// It is a one-shot snapshot of the store; live views go through sessions.
func (h *Handlers) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	list, err := h.store.SearchNotes(r.Context(), q)
	if err != nil {
		h.writeInternalError(w, r, "failed to list notes", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.NotesResponse{Query: q, Notes: list})
}

// HandleGetNote handles GET /v1/notes/{id}.
func (h *Handlers) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := parseNoteID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	n, err := h.store.GetNote(r.Context(), id)
	if err != nil {
		h.writeNoteError(w, r, id, "failed to get note", err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// HandleOpenSession handles POST /v1/sessions.
func (h *Handlers) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Open()
	writeJSON(w, r, http.StatusCreated, model.OpenSessionResponse{SessionID: s.ID()})
}

// HandleCloseSession handles DELETE /v1/sessions/{session_id}.
func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	if !h.registry.Close(id) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetFilter handles PUT /v1/sessions/{session_id}/filter.
func (h *Handlers) HandleSetFilter(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req model.SetFilterRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.Query) > model.MaxTitleLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("query exceeds maximum length of %d bytes", model.MaxTitleLen))
		return
	}
	s.SetSearchFilter(req.Query)
	writeJSON(w, r, http.StatusOK, model.SetFilterRequest{Query: req.Query})
}

// HandleSessionNotes handles GET /v1/sessions/{session_id}/notes.
func (h *Handlers) HandleSessionNotes(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	list, err := s.Snapshot(r.Context())
	if err != nil {
		h.writeSessionError(w, r, "failed to read notes", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.NotesResponse{Query: s.SearchFilter(), Notes: list})
}

// HandlePreview handles POST /v1/sessions/{session_id}/preview.
// A blank title is allowed: previews run while the user is still typing.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req model.NoteInput
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.Title) > model.MaxTitleLen || len(req.Content) > model.MaxContentLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "draft exceeds maximum length")
		return
	}
	v, applied := s.PreviewModeration(r.Context(), req.Title, req.Content)
	writeJSON(w, r, http.StatusOK, model.PreviewResponse{Verdict: v, Applied: applied})
}

// HandleVerdict handles GET /v1/sessions/{session_id}/verdict.
func (h *Handlers) HandleVerdict(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.Verdict())
}

// HandleAddNote handles POST /v1/sessions/{session_id}/notes.
// A committed note answers 201; a write dropped by moderation answers 200
// with committed=false and the verdict.
func (h *Handlers) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req model.NoteInput
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateNoteInput(req.Title, req.Content); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	res, err := s.AddNote(r.Context(), req.Title, req.Content)
	if err != nil {
		h.writeSessionError(w, r, "failed to add note", err)
		return
	}
	status := http.StatusOK
	if res.Committed {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, writeResponse(res))
}

// HandleEditNote handles PUT /v1/sessions/{session_id}/notes/{id}.
func (h *Handlers) HandleEditNote(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := parseNoteID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	var req model.NoteInput
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateNoteInput(req.Title, req.Content); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	existing, err := s.Lookup(r.Context(), id)
	if err != nil {
		h.writeNoteError(w, r, id, "failed to get note", err)
		return
	}
	res, err := s.EditNote(r.Context(), existing, req.Title, req.Content)
	if err != nil {
		h.writeSessionError(w, r, "failed to edit note", err)
		return
	}
	writeJSON(w, r, http.StatusOK, writeResponse(res))
}

// HandleTogglePin handles POST /v1/sessions/{session_id}/notes/{id}/pin.
func (h *Handlers) HandleTogglePin(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := parseNoteID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	existing, err := s.Lookup(r.Context(), id)
	if err != nil {
		h.writeNoteError(w, r, id, "failed to get note", err)
		return
	}
	n, err := s.TogglePin(r.Context(), existing)
	if err != nil {
		h.writeSessionError(w, r, "failed to toggle pin", err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// HandleDeleteNote handles DELETE /v1/sessions/{session_id}/notes/{id}.
// Deleting an absent note still answers 204.
func (h *Handlers) HandleDeleteNote(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := parseNoteID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := s.DeleteNote(r.Context(), model.Note{ID: id}); err != nil {
		h.writeSessionError(w, r, "failed to delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves {session_id} and writes a 400/404 when it cannot.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (uuid.UUID, *notes.Session, bool) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return uuid.Nil, nil, false
	}
	s, ok := h.registry.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
		return uuid.Nil, nil, false
	}
	return id, s, true
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("session_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid session_id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// writeNoteError maps a store lookup failure to 404 or 500.
func (h *Handlers) writeNoteError(w http.ResponseWriter, r *http.Request, id int64, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, fmt.Sprintf("note %d not found", id))
		return
	}
	h.writeInternalError(w, r, msg, err)
}

// writeSessionError maps controller errors to status codes.
func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, notes.ErrClosed):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session closed")
	case errors.Is(err, notes.ErrEmptyTitle):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "note not found")
	default:
		h.writeInternalError(w, r, msg, err)
	}
}

func writeResponse(res notes.WriteResult) model.WriteResponse {
	out := model.WriteResponse{Committed: res.Committed, Verdict: res.Verdict}
	if res.Committed {
		n := res.Note
		out.Note = &n
	}
	return out
}
