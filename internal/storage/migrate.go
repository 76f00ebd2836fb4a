package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// migrationTarget is the backend-specific half of the migration runner.
type migrationTarget interface {
	// appliedMigrations creates the schema_migrations table if needed and
	// returns the set of recorded versions.
	appliedMigrations(ctx context.Context) (map[string]bool, error)
	execMigration(ctx context.Context, sql string) error
	recordMigration(ctx context.Context, version string) error
}

// runMigrations executes unapplied SQL migration files from migrationsFS in
// name order. Applied files are tracked in schema_migrations so each runs at
// most once. Forward-only.
func runMigrations(ctx context.Context, t migrationTarget, migrationsFS fs.FS, logger *slog.Logger) error {
	applied, err := t.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		if applied[name] {
			logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		logger.Info("running migration", "file", name)
		if err := t.execMigration(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}
		if err := t.recordMigration(ctx, name); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}

	return nil
}
