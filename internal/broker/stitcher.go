package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bonvoyage/internal/domain"
)

// Gap resolution outcomes reported to Metrics.
const (
	GapResolved   = "resolved"
	GapEmpty      = "empty"
	GapUnresolved = "unresolved"
)

type partialReader interface {
	ReadAll(ctx context.Context, requestID string) ([]domain.Entry, error)
	GetRequestContext(ctx context.Context, requestID string) (domain.RequestContext, error)
}

// GapResolver connects a requested endpoint to a journey boundary.
type GapResolver interface {
	Resolve(ctx context.Context, q domain.Query) ([]domain.Step, error)
}

type resultPublisher interface {
	Publish(ctx context.Context, requestID string, journeys []domain.Journey) error
}

type StitchMetrics interface {
	GapResolved(outcome string)
}

type nopStitchMetrics struct{}

func (nopStitchMetrics) GapResolved(string) {}

// Stitcher turns the partial results of a request into complete journeys.
type Stitcher struct {
	store       partialReader
	resolver    GapResolver
	publisher   resultPublisher
	concurrency int
	metrics     StitchMetrics
	logger      *slog.Logger
}

func NewStitcher(store partialReader, resolver GapResolver, publisher resultPublisher, concurrency int, m StitchMetrics, logger *slog.Logger) *Stitcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if m == nil {
		m = nopStitchMetrics{}
	}
	return &Stitcher{
		store:       store,
		resolver:    resolver,
		publisher:   publisher,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.With("component", "stitcher"),
	}
}

// Aggregate reads everything stored for requestID, stitches the journeys
// and publishes them. Only store and publication failures are returned.
func (s *Stitcher) Aggregate(ctx context.Context, requestID string) ([]domain.Journey, error) {
	start := time.Now()

	rc, err := s.store.GetRequestContext(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request context: %w", err)
	}
	entries, err := s.store.ReadAll(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("read partial results: %w", err)
	}

	journeys := s.Stitch(ctx, rc, entries)

	if err := s.publisher.Publish(ctx, requestID, journeys); err != nil {
		return nil, err
	}

	s.logger.Info("aggregation complete",
		"request_id", requestID,
		"entries", len(entries),
		"journeys", len(journeys),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return journeys, nil
}

type gapEnds struct {
	origin, destination *domain.QueryKey
}

// Stitch builds candidate journeys from the successful entries and splices
// the resolved last-mile legs onto both ends. The result is never nil.
func (s *Stitcher) Stitch(ctx context.Context, rc domain.RequestContext, entries []domain.Entry) []domain.Journey {
	logger := s.logger.With("request_id", rc.RequestID)
	journeys := s.candidates(logger, entries)

	queries := make(map[domain.QueryKey]domain.Query)
	ends := make([]gapEnds, len(journeys))
	for i := range journeys {
		j := &journeys[i]

		if first := j.FirstDeparture(); first.Valid() {
			q := domain.NewQuery(rc.Origin, first, rc.StartTime)
			k := q.Key()
			queries[k] = q
			ends[i].origin = &k
		} else {
			logger.Warn("malformed departure point, origin gap skipped", "journey_id", j.ID, "point", first.String())
		}

		if last := j.LastArrival(); last.Valid() {
			// the traveller leaves the last leg when it arrives
			q := domain.NewQuery(last, rc.Destination, j.ArrivalDate)
			k := q.Key()
			queries[k] = q
			ends[i].destination = &k
		} else {
			logger.Warn("malformed arrival point, destination gap skipped", "journey_id", j.ID, "point", last.String())
		}
	}

	resolved := s.resolveAll(ctx, logger, queries)

	for i := range journeys {
		j := &journeys[i]
		s.splice(logger, j, ends[i].origin, resolved, true)
		s.splice(logger, j, ends[i].destination, resolved, false)
		j.Recompute()
		j.FillStopNames(rc.OriginName, rc.DestinationName)
	}

	logger.Debug("journeys stitched", "journeys", len(journeys), "distinct_gaps", len(queries))
	return journeys
}

// candidates decodes the records of successful entries. Entries are taken in
// provider order so journey ids are stable across runs.
func (s *Stitcher) candidates(logger *slog.Logger, entries []domain.Entry) []domain.Journey {
	sorted := append([]domain.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Provider < sorted[j].Provider })

	journeys := make([]domain.Journey, 0)
	nextID := 0
	for _, e := range sorted {
		if e.Status != domain.StatusSuccess {
			logger.Info("provider reported an error", "provider", e.Provider, "error", e.Error)
			continue
		}
		for idx, raw := range e.Result {
			var rec domain.ItineraryRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				logger.Warn("undecodable record skipped", "provider", e.Provider, "index", idx, "error", err)
				continue
			}
			if err := domain.ValidateRecord(rec); err != nil {
				attrs := []any{"provider", e.Provider, "index", idx, "error", err}
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					attrs = append(attrs, "field", verr.Field)
				}
				logger.Warn("invalid record skipped", attrs...)
				continue
			}
			journeys = append(journeys, rec.ToJourney(nextID))
			nextID++
		}
	}
	return journeys
}

// resolveAll resolves each distinct gap once. Keys missing from the result
// could not be resolved.
func (s *Stitcher) resolveAll(ctx context.Context, logger *slog.Logger, queries map[domain.QueryKey]domain.Query) map[domain.QueryKey][]domain.Step {
	var (
		mu       sync.Mutex
		resolved = make(map[domain.QueryKey][]domain.Step, len(queries))
		g        errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for k, q := range queries {
		g.Go(func() error {
			steps, err := s.resolver.Resolve(ctx, q)
			if err != nil {
				s.metrics.GapResolved(GapUnresolved)
				logger.Warn("gap unresolved", "query", q.String(), "error", err)
				return nil
			}
			if len(steps) == 0 {
				s.metrics.GapResolved(GapEmpty)
			} else {
				s.metrics.GapResolved(GapResolved)
			}

			mu.Lock()
			resolved[k] = steps
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return resolved
}

func (s *Stitcher) splice(logger *slog.Logger, j *domain.Journey, key *domain.QueryKey, resolved map[domain.QueryKey][]domain.Step, atStart bool) {
	if key == nil {
		return
	}
	steps, ok := resolved[*key]
	if !ok || len(steps) == 0 {
		return
	}
	if err := j.Splice(steps, atStart); err != nil {
		logger.Error("splice rejected", "journey_id", j.ID, "at_start", atStart, "error", err)
	}
}
