// Package testutil provides shared test infrastructure: a throwaway
// PostgreSQL container for integration tests and quiet loggers.
//
// Usage:
//
//	func TestPostgres(t *testing.T) {
//	    tc := testutil.Postgres(t)
//	    store, err := tc.NewStore(ctx, testutil.TestLogger())
//	    ...
//	}
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/tsuzuri/internal/storage"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a PostgreSQL container and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*TestContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tsuzuri",
			"POSTGRES_PASSWORD": "tsuzuri",
			"POSTGRES_DB":       "tsuzuri",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}

	return &TestContainer{
		Container: container,
		DSN:       fmt.Sprintf("postgres://tsuzuri:tsuzuri@%s:%s/tsuzuri?sslmode=disable", host, port.Port()),
	}, nil
}

var (
	sharedOnce sync.Once
	shared     *TestContainer
	sharedErr  error
)

// Postgres returns a container shared by every test in the binary, starting
// it on first use. The test is skipped in -short mode or when no container
// runtime is available.
func Postgres(t testing.TB) *TestContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	sharedOnce.Do(func() {
		shared, sharedErr = StartPostgres(context.Background())
	})
	if sharedErr != nil {
		t.Skipf("postgres container unavailable: %v", sharedErr)
	}
	return shared
}

// NewStore opens a storage.Postgres against this container with a notify
// connection and runs the migrations. Existing notes are removed so each
// caller starts from an empty collection.
func (tc *TestContainer) NewStore(ctx context.Context, logger *slog.Logger) (*storage.Postgres, error) {
	s, err := storage.OpenPostgres(ctx, tc.DSN, tc.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: open store: %w", err)
	}
	if _, err := s.Pool().Exec(ctx, `TRUNCATE notes RESTART IDENTITY`); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("testutil: truncate notes: %w", err)
	}
	return s, nil
}

// Exec runs one statement on a short-lived connection, outside any store.
func (tc *TestContainer) Exec(ctx context.Context, sql string, args ...any) error {
	conn, err := pgx.Connect(ctx, tc.DSN)
	if err != nil {
		return fmt.Errorf("testutil: connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()
	_, err = conn.Exec(ctx, sql, args...)
	return err
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
