// Package notes provides the notes controller shared by the HTTP API and the
// MCP server.
//
// A Session owns one client's search filter and advisory moderation verdict.
// It merges the filter with the store's live listing and sends every
// title/content write through the moderation gate before it reaches the store.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsuzuri/internal/live"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// ErrEmptyTitle is returned by AddNote and EditNote for a blank title.
var ErrEmptyTitle = model.ErrTitleRequired

// ErrClosed is returned by writes on a closed session.
var ErrClosed = errors.New("notes: session closed")

// Checker returns a moderation verdict for text. It must not fail: errors are
// folded into the verdict.
type Checker interface {
	Check(ctx context.Context, text string) model.Verdict
}

// WriteResult is the outcome of a moderated write. A flagged write is dropped
// without an error; Committed is false and Verdict says why.
type WriteResult struct {
	Committed bool
	Note      model.Note
	Verdict   model.Verdict
}

// Session is one controller bound to one client session.
type Session struct {
	id     uuid.UUID
	store  storage.Store
	gate   Checker
	logger *slog.Logger
	now    func() time.Time

	filter  *live.Value[string]
	verdict *live.Value[model.Verdict]
	notes   *live.Value[[]model.Note]

	previewMu  sync.Mutex
	generation uint64

	listOnce sync.Once

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSession starts a session over store. The merged note stream starts on the
// first Notes or Snapshot call and runs until Close.
func NewSession(store storage.Store, gate Checker, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	s := &Session{
		id:      id,
		store:   store,
		gate:    gate,
		logger:  logger.With("session_id", id),
		now:     time.Now,
		filter:  live.NewValue(""),
		verdict: live.NewValue(model.Clean()),
		notes:   live.NewPending[[]model.Note](),
		ctx:     ctx,
		cancel:  cancel,
	}
	return s
}

// startList wires the store listing and the filter into s.notes once.
func (s *Session) startList() {
	s.listOnce.Do(func() {
		merged := live.Combine(s.ctx,
			storage.List(s.ctx, s.store, s.logger),
			s.filter.Subscribe(s.ctx),
			applyFilter,
		)
		go live.Pipe(merged, s.notes)
	})
}

// applyFilter shows every note for a blank query.
func applyFilter(notes []model.Note, q string) []model.Note {
	if strings.TrimSpace(q) == "" {
		return notes
	}
	return model.FilterByTitle(notes, q)
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// SetSearchFilter replaces the title filter. The merged stream re-evaluates
// against the latest store snapshot without querying the store.
func (s *Session) SetSearchFilter(q string) {
	s.filter.Set(q)
}

// SearchFilter returns the current title filter.
func (s *Session) SearchFilter() string {
	q, _ := s.filter.Get()
	return q
}

// Notes returns the live filtered note list. The channel yields the current
// list first and closes when ctx is done or the session is closed.
func (s *Session) Notes(ctx context.Context) <-chan []model.Note {
	s.startList()
	ctx, cancel := s.linked(ctx)
	ch := s.notes.Subscribe(ctx)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch
}

// Snapshot returns the current filtered note list, waiting for the first
// store snapshot if none has arrived yet.
func (s *Session) Snapshot(ctx context.Context) ([]model.Note, error) {
	s.startList()
	ctx, cancel := s.linked(ctx)
	defer cancel()
	notes, err := s.notes.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("notes: snapshot: %w", err)
	}
	return notes, nil
}

// PreviewModeration checks title and content as an advisory hint. The verdict
// becomes the session's current verdict only if no newer preview was issued
// meanwhile. It returns the computed verdict and whether it was applied. A
// closed session returns its current verdict unchanged.
func (s *Session) PreviewModeration(ctx context.Context, title, content string) (model.Verdict, bool) {
	if s.ctx.Err() != nil {
		return s.Verdict(), false
	}
	s.previewMu.Lock()
	s.generation++
	gen := s.generation
	s.previewMu.Unlock()

	v := s.gate.Check(ctx, model.ModerationText(title, content))

	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	if s.ctx.Err() != nil {
		return v, false
	}
	if gen != s.generation {
		s.logger.Debug("notes: discarded stale moderation preview", "generation", gen, "latest", s.generation)
		return v, false
	}
	s.verdict.Set(v)
	return v, true
}

// Verdict returns the current advisory verdict.
func (s *Session) Verdict() model.Verdict {
	v, _ := s.verdict.Get()
	return v
}

// Verdicts returns the live advisory verdict.
func (s *Session) Verdicts(ctx context.Context) <-chan model.Verdict {
	ctx, cancel := s.linked(ctx)
	ch := s.verdict.Subscribe(ctx)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch
}

// AddNote creates an unpinned note stamped now, unless moderation flags it.
func (s *Session) AddNote(ctx context.Context, title, content string) (WriteResult, error) {
	if err := s.checkWrite(title, content); err != nil {
		return WriteResult{}, err
	}

	v := s.gate.Check(ctx, model.ModerationText(title, content))
	if v.Flagged {
		s.logger.Info("notes: add dropped by moderation")
		return WriteResult{Verdict: v}, nil
	}

	n, err := s.store.InsertNote(ctx, model.Note{
		Title:     title,
		Content:   content,
		IsPinned:  false,
		Timestamp: s.now(),
	})
	if err != nil {
		return WriteResult{Verdict: v}, fmt.Errorf("notes: insert: %w", err)
	}
	s.annotate(ctx, "add", n.ID)
	return WriteResult{Committed: true, Note: n, Verdict: v}, nil
}

// EditNote replaces the title and content of existing, unless moderation
// flags the new text. Pin state and timestamp are kept.
func (s *Session) EditNote(ctx context.Context, existing model.Note, title, content string) (WriteResult, error) {
	if err := s.checkWrite(title, content); err != nil {
		return WriteResult{}, err
	}

	v := s.gate.Check(ctx, model.ModerationText(title, content))
	if v.Flagged {
		s.logger.Info("notes: edit dropped by moderation", "note_id", existing.ID)
		return WriteResult{Note: existing, Verdict: v}, nil
	}

	updated := existing
	updated.Title = title
	updated.Content = content
	if err := s.store.UpdateNote(ctx, updated); err != nil {
		return WriteResult{Note: existing, Verdict: v}, fmt.Errorf("notes: update: %w", err)
	}
	s.annotate(ctx, "edit", updated.ID)
	return WriteResult{Committed: true, Note: updated, Verdict: v}, nil
}

// TogglePin flips the pin state of n and returns the stored note.
func (s *Session) TogglePin(ctx context.Context, n model.Note) (model.Note, error) {
	if s.ctx.Err() != nil {
		return n, ErrClosed
	}
	n.IsPinned = !n.IsPinned
	if err := s.store.UpdateNote(ctx, n); err != nil {
		return n, fmt.Errorf("notes: pin: %w", err)
	}
	s.annotate(ctx, "pin", n.ID)
	return n, nil
}

// DeleteNote removes n. Deleting an absent note is a no-op.
func (s *Session) DeleteNote(ctx context.Context, n model.Note) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if err := s.store.DeleteNote(ctx, n.ID); err != nil {
		return fmt.Errorf("notes: delete: %w", err)
	}
	s.annotate(ctx, "delete", n.ID)
	return nil
}

// Lookup returns the stored note with id, or storage.ErrNotFound.
func (s *Session) Lookup(ctx context.Context, id int64) (model.Note, error) {
	return s.store.GetNote(ctx, id)
}

// Close stops the session's streams. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug("notes: session closed")
	})
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) checkWrite(title, content string) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	return model.ValidateNoteInput(title, content)
}

// linked returns a context that ends with either ctx or the session.
func (s *Session) linked(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) annotate(ctx context.Context, op string, noteID int64) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("tsuzuri.note_op", op),
		attribute.Int64("tsuzuri.note_id", noteID),
	)
}
