// Package storage provides durable note persistence for tsuzuri.
//
// Two backends implement the Store contract: an embedded SQLite database
// (modernc.org/sqlite, the default) and PostgreSQL (pgx), which adds a
// LISTEN/NOTIFY change feed so several processes can share one note
// collection. Both publish a change revision after every committed write;
// List and Search turn that revision into live, always-current snapshots.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/tsuzuri/internal/live"
	"github.com/ashita-ai/tsuzuri/internal/model"
)

// Backend kinds accepted by Open.
const (
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Store is durable CRUD over the note collection.
//
// Writes are serialized per store. Changes is bumped after each write that
// modified a row, once the write is visible to readers.
type Store interface {
	// ListNotes returns every note, pinned first, then newest first.
	ListNotes(ctx context.Context) ([]model.Note, error)
	// SearchNotes returns the notes whose title contains substring,
	// ignoring case, in listing order. An empty substring lists everything.
	SearchNotes(ctx context.Context, substring string) ([]model.Note, error)
	// GetNote returns one note or ErrNotFound.
	GetNote(ctx context.Context, id int64) (model.Note, error)
	// InsertNote persists n and returns it with its assigned ID. A zero ID
	// lets the store assign one; a non-zero ID replaces any existing row.
	InsertNote(ctx context.Context, n model.Note) (model.Note, error)
	// UpdateNote replaces the row with n.ID. Absent IDs are a no-op.
	UpdateNote(ctx context.Context, n model.Note) error
	// DeleteNote removes the row with id. Absent IDs are a no-op.
	DeleteNote(ctx context.Context, id int64) error
	// CountNotes returns collection totals.
	CountNotes(ctx context.Context) (Counts, error)

	// Changes is the write revision counter.
	Changes() *live.Value[uint64]
	// Kind names the backend ("sqlite" or "postgres").
	Kind() string
	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// Counts summarizes the note collection.
type Counts struct {
	Total  int64 `json:"total"`
	Pinned int64 `json:"pinned"`
}

// Listener is implemented by stores that receive change notifications from
// other processes. Listen blocks until ctx is done.
type Listener interface {
	Listen(ctx context.Context) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Kind        string
	SQLitePath  string
	DatabaseURL string
	NotifyURL   string
}

// Open connects to the configured backend and applies its migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Kind {
	case KindSQLite, "":
		return OpenSQLite(ctx, opts.SQLitePath, logger)
	case KindPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL, opts.NotifyURL, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Kind)
	}
}

// List returns a live sequence of every note. It emits the current snapshot
// immediately and a fresh one after every change, until ctx is done.
func List(ctx context.Context, s Store, logger *slog.Logger) <-chan []model.Note {
	return live.Watch(ctx, s.Changes(), s.ListNotes, logger)
}

// Search is List restricted to notes whose title contains substring,
// ignoring case. Search with an empty substring is List.
func Search(ctx context.Context, s Store, substring string, logger *slog.Logger) <-chan []model.Note {
	if substring == "" {
		return List(ctx, s, logger)
	}
	return live.Watch(ctx, s.Changes(), func(ctx context.Context) ([]model.Note, error) {
		return s.SearchNotes(ctx, substring)
	}, logger)
}

// bump advances a change revision. Call only after the write committed.
func bump(changes *live.Value[uint64]) {
	changes.Update(func(r uint64) uint64 { return r + 1 })
}

// normalizeTimestamp fixes the precision of a stored timestamp so values read
// back compare equal on both backends.
func normalizeTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
