package notes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/tsuzuri/internal/storage"
	"github.com/ashita-ai/tsuzuri/internal/telemetry"
)

// DefaultIdleTimeout is how long an unused session is kept.
const DefaultIdleTimeout = 30 * time.Minute

// Registry holds open sessions by ID and closes the ones left idle.
type Registry struct {
	store       storage.Store
	gate        Checker
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

// NewRegistry creates an empty registry. A non-positive idleTimeout uses
// DefaultIdleTimeout.
func NewRegistry(store storage.Store, gate Checker, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	r := &Registry{
		store:       store,
		gate:        gate,
		logger:      logger,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[uuid.UUID]*entry),
	}

	meter := telemetry.Meter("tsuzuri/notes")
	_, _ = meter.Int64ObservableGauge("tsuzuri.sessions.active",
		metric.WithDescription("Open notes sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.Len()))
			return nil
		}),
	)
	return r
}

// Open starts a new session and registers it.
func (r *Registry) Open() *Session {
	s := NewSession(r.store, r.gate, r.logger)

	r.mu.Lock()
	r.sessions[s.ID()] = &entry{session: s, lastUsed: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("notes: session opened", "session_id", s.ID(), "sessions", n)
	return s
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.session, true
}

// Touch marks the session with id as used without returning it.
func (r *Registry) Touch(id uuid.UUID) {
	_, _ = r.Get(id)
}

// Close closes and forgets the session with id. It reports whether the
// session existed.
func (r *Registry) Close(id uuid.UUID) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		e.session.Close()
	}
	return ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes every session idle for longer than the idle timeout and
// returns how many were closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTimeout)

	var expired []*Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("notes: closed idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps idle sessions periodically until ctx is done, then closes every
// remaining session.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.session.Close()
	}
}
