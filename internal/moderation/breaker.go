package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ReasonCircuitOpen marks calls the breaker refused without contacting the
// classifier.
const ReasonCircuitOpen = "circuit_open"

// Breaker stops calling a failing classifier for a cooldown period. Refused
// calls fail immediately with ReasonCircuitOpen, so the Gate lets the write
// through as degraded without waiting out its timeout.
type Breaker struct {
	next Classifier
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker trips after failures consecutive failed calls and probes the
// classifier again with a single call once cooldown has passed. Calls
// canceled by the caller do not count as failures.
func NewBreaker(next Classifier, failures uint32, cooldown time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("moderation: circuit breaker state changed",
					"provider", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Name implements Classifier.
func (b *Breaker) Name() string { return b.next.Name() }

// State reports closed, half-open or open.
func (b *Breaker) State() string { return b.cb.State().String() }

// Classify implements Classifier.
func (b *Breaker) Classify(ctx context.Context, text string) ([]Label, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.Classify(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Reason: ReasonCircuitOpen, Err: err}
	}
	if err != nil {
		return nil, err
	}
	labels, _ := out.([]Label)
	return labels, nil
}
