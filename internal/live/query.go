package live

import (
	"context"
	"log/slog"
)

// Watch re-runs fetch every time the revision cell changes and emits each
// result. The first fetch happens immediately on subscribe. A failed fetch is
// logged and skipped; the previous result stays current.
//
// Writers must bump the revision only after their change is committed, so a
// fetch triggered by revision N always observes every write up to N.
func Watch[T any](ctx context.Context, revisions *Value[uint64], fetch func(context.Context) (T, error), logger *slog.Logger) <-chan T {
	out := make(chan T, 1)
	revs := revisions.Subscribe(ctx)

	go func() {
		defer close(out)
		for range revs {
			v, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("live: query refresh failed", "error", err)
				continue
			}
			replace(out, v)
		}
	}()
	return out
}
