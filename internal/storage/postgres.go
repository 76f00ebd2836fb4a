package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/tsuzuri/internal/live"
	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/migrations"
)

// Postgres stores notes in PostgreSQL.
//
// It uses a pgxpool.Pool for queries and an optional dedicated pgx.Conn for
// LISTEN/NOTIFY, so writes made by other processes also advance Changes.
type Postgres struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn
	logger     *slog.Logger
	changes    *live.Value[uint64]
}

// OpenPostgres creates a connection pool, runs the embedded migrations and,
// when notifyDSN is set, opens the dedicated LISTEN connection.
// notifyDSN must point directly at Postgres (not through a pooler).
func OpenPostgres(ctx context.Context, poolDSN, notifyDSN string, logger *slog.Logger) (*Postgres, error) {
	if poolDSN == "" {
		return nil, fmt.Errorf("storage: DATABASE_URL is required for the postgres store")
	}

	poolCfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	var notifyConn *pgx.Conn
	if notifyDSN != "" {
		notifyConn, err = pgx.Connect(ctx, notifyDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: connect notify: %w", err)
		}
	}

	p := &Postgres{
		pool:       pool,
		notifyConn: notifyConn,
		logger:     logger,
		changes:    live.NewValue[uint64](0),
	}
	if err := runMigrations(ctx, p, migrations.Postgres(), logger); err != nil {
		p.Close(ctx)
		return nil, err
	}
	return p, nil
}

const pgNoteColumns = `id, title, content, is_pinned, timestamp`

const pgListingOrder = ` ORDER BY is_pinned DESC, timestamp DESC, id DESC`

// ListNotes implements Store.
func (p *Postgres) ListNotes(ctx context.Context) ([]model.Note, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgNoteColumns+` FROM notes`+pgListingOrder)
	if err != nil {
		return nil, fmt.Errorf("storage: list notes: %w", err)
	}
	return collectPgNotes(rows)
}

// SearchNotes implements Store. Titles are folded in Go, as on SQLite, so
// non-ASCII matching does not depend on the database collation.
func (p *Postgres) SearchNotes(ctx context.Context, substring string) ([]model.Note, error) {
	notes, err := p.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	if substring == "" {
		return notes, nil
	}
	return model.FilterByTitle(notes, substring), nil
}

// CountNotes implements Store.
func (p *Postgres) CountNotes(ctx context.Context) (Counts, error) {
	var c Counts
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_pinned) FROM notes`,
	).Scan(&c.Total, &c.Pinned)
	if err != nil {
		return Counts{}, fmt.Errorf("storage: count notes: %w", err)
	}
	return c, nil
}

// GetNote implements Store.
func (p *Postgres) GetNote(ctx context.Context, id int64) (model.Note, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgNoteColumns+` FROM notes WHERE id = $1`, id)
	if err != nil {
		return model.Note{}, fmt.Errorf("storage: get note: %w", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanPgNote)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Note{}, fmt.Errorf("%w: note %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("storage: get note: %w", err)
	}
	return n, nil
}

// InsertNote implements Store. Each write notifies ChannelNotes inside its
// transaction, so listeners only hear about committed rows.
func (p *Postgres) InsertNote(ctx context.Context, n model.Note) (model.Note, error) {
	n.Timestamp = normalizeTimestamp(n.Timestamp)

	err := p.writeTx(ctx, func(tx pgx.Tx) (bool, error) {
		if n.ID == 0 {
			err := tx.QueryRow(ctx,
				`INSERT INTO notes (title, content, is_pinned, timestamp) VALUES ($1, $2, $3, $4) RETURNING id`,
				n.Title, n.Content, n.IsPinned, n.Timestamp,
			).Scan(&n.ID)
			return true, err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO notes (id, title, content, is_pinned, timestamp) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			     title = EXCLUDED.title, content = EXCLUDED.content,
			     is_pinned = EXCLUDED.is_pinned, timestamp = EXCLUDED.timestamp`,
			n.ID, n.Title, n.Content, n.IsPinned, n.Timestamp,
		)
		if err != nil {
			return false, err
		}
		// Keep the sequence ahead of explicit ids so later inserts don't collide.
		_, err = tx.Exec(ctx,
			`SELECT setval(pg_get_serial_sequence('notes', 'id'),
			     GREATEST($1::bigint, (SELECT last_value FROM notes_id_seq)))`,
			n.ID,
		)
		return true, err
	}, func() int64 { return n.ID })
	if err != nil {
		return model.Note{}, fmt.Errorf("storage: insert note: %w", err)
	}
	return n, nil
}

// UpdateNote implements Store.
func (p *Postgres) UpdateNote(ctx context.Context, n model.Note) error {
	ts := normalizeTimestamp(n.Timestamp)
	err := p.writeTx(ctx, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx,
			`UPDATE notes SET title = $1, content = $2, is_pinned = $3, timestamp = $4 WHERE id = $5`,
			n.Title, n.Content, n.IsPinned, ts, n.ID,
		)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}, func() int64 { return n.ID })
	if err != nil {
		return fmt.Errorf("storage: update note: %w", err)
	}
	return nil
}

// DeleteNote implements Store.
func (p *Postgres) DeleteNote(ctx context.Context, id int64) error {
	err := p.writeTx(ctx, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}, func() int64 { return id })
	if err != nil {
		return fmt.Errorf("storage: delete note: %w", err)
	}
	return nil
}

// writeTx runs fn in a transaction with retry. When fn reports a change, a
// notification carrying the note ID is queued in the same transaction and the
// local revision is bumped after commit.
func (p *Postgres) writeTx(ctx context.Context, fn func(pgx.Tx) (bool, error), noteID func() int64) error {
	var changed bool
	err := WithRetry(ctx, writeMaxRetries, writeBaseDelay, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		changed, err = fn(tx)
		if err != nil {
			return err
		}
		if changed {
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`,
				ChannelNotes, strconv.FormatInt(noteID(), 10)); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}
	if changed {
		bump(p.changes)
	}
	return nil
}

// Changes implements Store.
func (p *Postgres) Changes() *live.Value[uint64] { return p.changes }

// Kind implements Store.
func (p *Postgres) Kind() string { return KindPostgres }

// Pool returns the underlying connection pool for use by other packages.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// HasNotifyConn reports whether a LISTEN/NOTIFY connection is configured.
func (p *Postgres) HasNotifyConn() bool { return p.notifyConn != nil }

// Ping implements Store.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close shuts down the connection pool and notify connection.
func (p *Postgres) Close(ctx context.Context) {
	p.pool.Close()
	if p.notifyConn != nil {
		if err := p.notifyConn.Close(ctx); err != nil {
			p.logger.Warn("storage: close notify connection", "error", err)
		}
	}
}

func (p *Postgres) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := p.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (p *Postgres) execMigration(ctx context.Context, stmt string) error {
	_, err := p.pool.Exec(ctx, stmt)
	return err
}

func (p *Postgres) recordMigration(ctx context.Context, version string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, version,
	)
	return err
}

func scanPgNote(row pgx.CollectableRow) (model.Note, error) {
	var n model.Note
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.IsPinned, &n.Timestamp); err != nil {
		return model.Note{}, err
	}
	n.Timestamp = n.Timestamp.UTC()
	return n, nil
}

func collectPgNotes(rows pgx.Rows) ([]model.Note, error) {
	notes, err := pgx.CollectRows(rows, scanPgNote)
	if err != nil {
		return nil, fmt.Errorf("storage: scan notes: %w", err)
	}
	if notes == nil {
		notes = make([]model.Note, 0)
	}
	return notes, nil
}
