package storage

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/tsuzuri/internal/telemetry"
)

// RegisterMetrics registers observable OTEL gauges for the note collection
// and, on Postgres, the connection pool.
func RegisterMetrics(s Store) {
	meter := telemetry.Meter("tsuzuri/storage")

	_, _ = meter.Int64ObservableGauge("tsuzuri.notes.count",
		metric.WithDescription("Number of stored notes"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			c, err := s.CountNotes(ctx)
			if err != nil {
				return nil // Skip this observation.
			}
			o.Observe(c.Total)
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("tsuzuri.store.revision",
		metric.WithDescription("Committed note writes seen by this process"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			rev, _ := s.Changes().Get()
			o.Observe(int64(rev)) //nolint:gosec // revision counts writes; it never nears MaxInt64
			return nil
		}),
	)

	if pg, ok := s.(*Postgres); ok {
		_, _ = meter.Int64ObservableGauge("tsuzuri.db.pool.acquired",
			metric.WithDescription("Connections currently acquired from the pool"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(pg.pool.Stat().AcquiredConns()))
				return nil
			}),
		)
		_, _ = meter.Int64ObservableGauge("tsuzuri.db.pool.idle",
			metric.WithDescription("Idle connections in the pool"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(pg.pool.Stat().IdleConns()))
				return nil
			}),
		)
	}
}
