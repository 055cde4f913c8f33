package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bonvoyage/internal/domain"
)

var (
	// ErrDeclined is returned by a source that does not cover a query.
	ErrDeclined = errors.New("query not covered")
	// ErrUnresolved is returned when no source could connect the two points.
	ErrUnresolved = errors.New("gap could not be resolved")
)

// Source turns a gap query into steps.
type Source interface {
	Name() string
	Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error)
}

// Resolver tries its sources in order and returns the first answer.
// It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	sources []Source
	logger  *slog.Logger
}

func New(logger *slog.Logger, sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve returns the steps connecting q.From to q.To. A degenerate query
// yields an empty leg without calling any source.
func (r *Resolver) Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error) {
	if !q.From.Valid() || !q.To.Valid() {
		return nil, fmt.Errorf("%w: malformed query %s", ErrUnresolved, q)
	}
	if q.Degenerate() {
		return []domain.Step{}, nil
	}

	for _, src := range r.sources {
		start := time.Now()
		steps, err := src.Resolve(ctx, q)
		if err == nil {
			r.logger.Debug("gap resolved",
				"source", src.Name(),
				"query", q.String(),
				"steps", len(steps),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return steps, nil
		}
		if errors.Is(err, ErrDeclined) {
			r.logger.Debug("source declined", "source", src.Name(), "query", q.String())
			continue
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnresolved, ctx.Err())
		}
		r.logger.Warn("source failed", "source", src.Name(), "query", q.String(), "error", err)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnresolved, q)
}
