package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ashita-ai/tsuzuri/internal/live"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/migrations"
)

// MemoryPath opens a private in-memory SQLite database. Useful for tests.
const MemoryPath = ":memory:"

// SQLite is the embedded note store.
//
// It holds a single connection: SQLite allows one writer at a time anyway,
// and an in-memory database only exists on the connection that created it.
type SQLite struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	writeMu sync.Mutex
	changes *live.Value[uint64]
}

// OpenSQLite opens (creating if needed) the database file at path and runs
// the embedded migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: sqlite path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		dsn = "file:" + path +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	s := &SQLite{
		db:      db,
		path:    path,
		logger:  logger,
		changes: live.NewValue[uint64](0),
	}
	if err := runMigrations(ctx, s, migrations.SQLite(), logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteNoteColumns = `id, title, content, is_pinned, timestamp`

const sqliteListingOrder = ` ORDER BY is_pinned DESC, timestamp DESC, id DESC`

// ListNotes implements Store.
func (s *SQLite) ListNotes(ctx context.Context) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteNoteColumns+` FROM notes`+sqliteListingOrder)
	if err != nil {
		return nil, fmt.Errorf("storage: list notes: %w", err)
	}
	return scanSQLiteNotes(rows)
}

// SearchNotes implements Store. SQLite's lower() only folds ASCII, so the
// title match runs in Go with the same rule the notes controller uses.
func (s *SQLite) SearchNotes(ctx context.Context, substring string) ([]model.Note, error) {
	notes, err := s.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	if substring == "" {
		return notes, nil
	}
	return model.FilterByTitle(notes, substring), nil
}

// CountNotes implements Store.
func (s *SQLite) CountNotes(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_pinned), 0) FROM notes`,
	).Scan(&c.Total, &c.Pinned)
	if err != nil {
		return Counts{}, fmt.Errorf("storage: count notes: %w", err)
	}
	return c, nil
}

// GetNote implements Store.
func (s *SQLite) GetNote(ctx context.Context, id int64) (model.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteNoteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanSQLiteNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, fmt.Errorf("%w: note %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("storage: get note: %w", err)
	}
	return n, nil
}

// InsertNote implements Store.
func (s *SQLite) InsertNote(ctx context.Context, n model.Note) (model.Note, error) {
	n.Timestamp = normalizeTimestamp(n.Timestamp)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id sql.NullInt64
	if n.ID != 0 {
		id = sql.NullInt64{Int64: n.ID, Valid: true}
	}

	err := withSQLiteRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO notes (id, title, content, is_pinned, timestamp) VALUES (?, ?, ?, ?, ?)`,
			id, n.Title, n.Content, n.IsPinned, n.Timestamp.UnixNano(),
		)
		if err != nil {
			return err
		}
		if n.ID == 0 {
			n.ID, err = res.LastInsertId()
		}
		return err
	})
	if err != nil {
		return model.Note{}, fmt.Errorf("storage: insert note: %w", err)
	}

	bump(s.changes)
	return n, nil
}

// UpdateNote implements Store.
func (s *SQLite) UpdateNote(ctx context.Context, n model.Note) error {
	ts := normalizeTimestamp(n.Timestamp)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var affected int64
	err := withSQLiteRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE notes SET title = ?, content = ?, is_pinned = ?, timestamp = ? WHERE id = ?`,
			n.Title, n.Content, n.IsPinned, ts.UnixNano(), n.ID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: update note: %w", err)
	}

	if affected == 0 {
		s.logger.Debug("storage: update of missing note ignored", "note_id", n.ID)
		return nil
	}
	bump(s.changes)
	return nil
}

// DeleteNote implements Store.
func (s *SQLite) DeleteNote(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var affected int64
	err := withSQLiteRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: delete note: %w", err)
	}
	if affected > 0 {
		bump(s.changes)
	}
	return nil
}

// Changes implements Store.
func (s *SQLite) Changes() *live.Value[uint64] { return s.changes }

// Kind implements Store.
func (s *SQLite) Kind() string { return KindSQLite }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Ping implements Store.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Stats returns connection pool statistics.
func (s *SQLite) Stats() sql.DBStats { return s.db.Stats() }

// Close implements Store.
func (s *SQLite) Close(context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage: close sqlite", "error", err)
	}
}

func (s *SQLite) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *SQLite) execMigration(ctx context.Context, stmt string) error {
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQLite) recordMigration(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UTC().Unix(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteNote(row rowScanner) (model.Note, error) {
	var (
		n  model.Note
		ts int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.IsPinned, &ts); err != nil {
		return model.Note{}, err
	}
	n.Timestamp = time.Unix(0, ts).UTC()
	return n, nil
}

func scanSQLiteNotes(rows *sql.Rows) ([]model.Note, error) {
	defer func() { _ = rows.Close() }()

	notes := make([]model.Note, 0)
	for rows.Next() {
		n, err := scanSQLiteNote(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate notes: %w", err)
	}
	return notes, nil
}
