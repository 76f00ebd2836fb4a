// Package moderation classifies note text as inappropriate or not.
//
// A Gate wraps a Classifier (normally the hosted inference endpoint) and
// always produces a verdict. Classifier failures never block a write: they
// resolve to a clean verdict marked Degraded, and are logged and counted so
// they are not mistaken for a real clean result.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/tsuzuri/internal/model"
	"github.com/ashita-ai/tsuzuri/internal/telemetry"
)

// FlagLabels are the classifier labels that mark text as inappropriate.
// They are fixed by the upstream model.
var FlagLabels = []string{"hate", "offensive"}

// FlagThreshold is the score a flag label must exceed (strictly).
const FlagThreshold = 0.5

// Provider names accepted by config.
const (
	ProviderAuto   = "auto"
	ProviderHosted = "hosted"
	ProviderNoop   = "noop"
)

// Label is one label/score pair returned by a classifier.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier scores text against the model's label set.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Label, error)
	Name() string
}

// Failure reasons attached to Error and to the failures metric.
const (
	ReasonTimeout   = "timeout"
	ReasonTransport = "transport"
	ReasonStatus    = "status"
	ReasonDecode    = "decode"
	ReasonUpstream  = "upstream"
	ReasonCanceled  = "canceled"
)

// Error is a classifier failure with a coarse reason for metrics.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string { return "moderation: " + e.Reason + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Evaluate turns classifier output into a verdict: flagged when any label in
// FlagLabels scores above FlagThreshold.
func Evaluate(labels []Label) model.Verdict {
	for _, l := range labels {
		if l.Score > FlagThreshold && slices.Contains(FlagLabels, l.Label) {
			return model.Flagged("")
		}
	}
	return model.Clean()
}

// Gate produces verdicts and never fails.
type Gate struct {
	classifier Classifier
	timeout    time.Duration
	logger     *slog.Logger

	checks   metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewGate creates a gate around c. A zero timeout means no per-call bound
// beyond the caller's context.
func NewGate(c Classifier, timeout time.Duration, logger *slog.Logger) *Gate {
	meter := telemetry.Meter("tsuzuri/moderation")
	checks, _ := meter.Int64Counter("tsuzuri.moderation.checks",
		metric.WithDescription("Moderation checks by outcome"),
	)
	failures, _ := meter.Int64Counter("tsuzuri.moderation.failures",
		metric.WithDescription("Classifier failures resolved fail-open"),
	)
	duration, _ := meter.Float64Histogram("tsuzuri.moderation.duration",
		metric.WithDescription("Time to classify text (ms)"),
		metric.WithUnit("ms"),
	)
	return &Gate{
		classifier: c,
		timeout:    timeout,
		logger:     logger,
		checks:     checks,
		failures:   failures,
		duration:   duration,
	}
}

// Provider names the underlying classifier.
func (g *Gate) Provider() string { return g.classifier.Name() }

// Check classifies text. Any classifier failure yields model.FailOpen().
func (g *Gate) Check(ctx context.Context, text string) model.Verdict {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	labels, err := g.classifier.Classify(ctx, text)
	g.duration.Record(ctx, float64(time.Since(start).Milliseconds()))

	var v model.Verdict
	if err != nil {
		reason := failureReason(err)
		g.logger.Warn("moderation: classifier failed, allowing write",
			"provider", g.classifier.Name(),
			"reason", reason,
			"error", err,
		)
		g.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		v = model.FailOpen()
	} else {
		v = Evaluate(labels)
	}

	g.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(v))))
	return v
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	}
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Reason
	}
	return ReasonTransport
}

func outcome(v model.Verdict) string {
	switch {
	case v.Degraded:
		return "degraded"
	case v.Flagged:
		return "flagged"
	default:
		return "clean"
	}
}

// Noop never flags anything. It is used when no classifier token is configured.
type Noop struct{}

// Classify implements Classifier.
func (Noop) Classify(context.Context, string) ([]Label, error) { return nil, nil }

// Name implements Classifier.
func (Noop) Name() string { return ProviderNoop }

// NewClassifier selects a classifier by provider name. "auto" picks the
// hosted classifier when a token is configured and Noop otherwise.
func NewClassifier(provider, url, token string) (Classifier, error) {
	switch provider {
	case ProviderAuto, "":
		if token == "" {
			return Noop{}, nil
		}
		return NewHosted(url, token), nil
	case ProviderHosted:
		if token == "" {
			return nil, errors.New("moderation: hosted provider requires a token")
		}
		return NewHosted(url, token), nil
	case ProviderNoop:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("moderation: unknown provider %q", provider)
	}
}
