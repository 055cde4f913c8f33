package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kr/pretty"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/resolver"
	"bonvoyage/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingResolver answers from a table and counts calls per query key.
type countingResolver struct {
	mu      sync.Mutex
	calls   map[domain.QueryKey]int
	queries []domain.Query
	answer  func(q domain.Query) ([]domain.Step, error)
}

func newCountingResolver(answer func(q domain.Query) ([]domain.Step, error)) *countingResolver {
	return &countingResolver{calls: make(map[domain.QueryKey]int), answer: answer}
}

func (r *countingResolver) Resolve(_ context.Context, q domain.Query) ([]domain.Step, error) {
	r.mu.Lock()
	r.calls[q.Key()]++
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	return r.answer(q)
}

func (r *countingResolver) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

// samePlace compares points at gap-query precision.
func samePlace(a, b domain.Point) bool {
	return domain.NewQuery(a, b, 0).Degenerate()
}

func walk(distance, duration float64, from, to domain.Point) domain.Step {
	return domain.Step{
		Type:           domain.ModeWalk,
		Label:          "Walking",
		DistanceM:      distance,
		DurationS:      duration,
		DeparturePoint: from,
		ArrivalPoint:   to,
		DepartureDate:  0,
		ArrivalDate:    int64(duration),
		BikeFriendly:   true,
	}
}

var (
	parisOrigin = domain.NewPoint(48.85, 2.35)
	lyonDest    = domain.NewPoint(45.75, 4.85)
	gareDeLyon  = domain.NewPoint(48.84, 2.37)
	partDieu    = domain.NewPoint(45.70, 4.80)
)

func requestContext(id string) domain.RequestContext {
	return domain.RequestContext{
		RequestID: id,
		Request: domain.Request{
			Origin:      parisOrigin,
			Destination: lyonDest,
			StartTime:   9000,
			Passengers:  1,
		},
		Providers: []string{"train"},
		CreatedAt: time.Now().UTC(),
	}
}

func trainRecord(from, to domain.Point, dep int64) domain.ItineraryRecord {
	return domain.ItineraryRecord{
		Category:      []string{"Train"},
		DepartureDate: dep,
		ArrivalDate:   dep + 7200,
		BookingLink:   "https://example.test/book",
		JourneySteps: []domain.StepRecord{{
			Type:              "Train",
			Label:             "TGV 6601",
			DistanceM:         450000,
			DurationS:         7200,
			PriceEUR:          []float64{49},
			GCO2:              1300,
			DeparturePoint:    from,
			ArrivalPoint:      to,
			DepartureStopName: "Paris Gare de Lyon",
			ArrivalStopName:   "Lyon Part-Dieu",
			DepartureDate:     dep,
			ArrivalDate:       dep + 7200,
		}},
	}
}

func successEntry(t *testing.T, provider string, recs ...domain.ItineraryRecord) domain.Entry {
	t.Helper()
	e, err := domain.NewSuccessEntry(provider, recs, 0)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func newTestStitcher(st store.Store, r GapResolver) *Stitcher {
	pub := NewPublisher(st, nil, nil, nil, testLogger())
	return NewStitcher(st, r, pub, 4, nil, testLogger())
}

func scenarioResolver() *countingResolver {
	return newCountingResolver(func(q domain.Query) ([]domain.Step, error) {
		if samePlace(q.To, gareDeLyon) {
			return []domain.Step{walk(600, 300, q.From, q.To)}, nil
		}
		return []domain.Step{walk(900, 400, q.From, q.To)}, nil
	})
}

func TestAggregateScenario(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rc := requestContext("req-1")
	st.SaveRequestContext(ctx, rc)
	st.Append(ctx, "req-1", successEntry(t, "train", trainRecord(gareDeLyon, partDieu, 10000)))

	res := scenarioResolver()
	journeys, err := newTestStitcher(st, res).Aggregate(ctx, "req-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(journeys) != 1 {
		t.Fatalf("expected one journey, got %d", len(journeys))
	}

	j := journeys[0]
	if len(j.Steps) != 3 {
		t.Fatalf("expected walk, train, walk; got %d steps", len(j.Steps))
	}
	wantModes := []domain.Mode{domain.ModeWalk, domain.ModeTrain, domain.ModeWalk}
	for i, m := range wantModes {
		if j.Steps[i].Type != m {
			t.Errorf("step %d: expected %s, got %s", i, m, j.Steps[i].Type)
		}
		if j.Steps[i].ID != i {
			t.Errorf("step %d: expected id %d, got %d", i, i, j.Steps[i].ID)
		}
	}
	if j.TotalDistance != 451500 {
		t.Errorf("expected total distance 451500, got %v", j.TotalDistance)
	}
	if j.TotalDuration != 7900 {
		t.Errorf("expected total duration 7900, got %v", j.TotalDuration)
	}
	if j.DepartureDate != 9700 || j.ArrivalDate != 17600 {
		t.Errorf("expected dates 9700-17600, got %d-%d", j.DepartureDate, j.ArrivalDate)
	}
	if diff := pretty.Diff(j.Category, []domain.Mode{domain.ModeWalk, domain.ModeTrain}); len(diff) > 0 {
		t.Errorf("category mismatch: %v", diff)
	}

	// destination gap leaves when the train arrives
	for _, q := range res.queries {
		if samePlace(q.From, partDieu) && q.Departure != 17200 {
			t.Errorf("expected destination gap at 17200, got %d", q.Departure)
		}
		if samePlace(q.To, gareDeLyon) && q.Departure != 9000 {
			t.Errorf("expected origin gap at the request start time, got %d", q.Departure)
		}
	}

	if j.Steps[0].ArrivalStopName != "Paris Gare de Lyon" || j.Steps[2].DepartureStopName != "Lyon Part-Dieu" {
		t.Errorf("expected stop names borrowed from the train, got %q and %q",
			j.Steps[0].ArrivalStopName, j.Steps[2].DepartureStopName)
	}

	stored, err := st.ReadFinal(ctx, "req-1")
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if len(stored) != 1 || stored[0].TotalDistance != 451500 {
		t.Errorf("unexpected stored result %+v", stored)
	}
}

func TestAggregateDeduplicatesGapsAcrossProviders(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.SaveRequestContext(ctx, requestContext("req-2"))

	// same departure point once rounded, different arrival times
	st.Append(ctx, "req-2", successEntry(t, "train", trainRecord(gareDeLyon, partDieu, 10000)))
	st.Append(ctx, "req-2", successEntry(t, "coach", trainRecord(domain.NewPoint(48.840001, 2.370001), partDieu, 12000)))

	res := scenarioResolver()
	journeys, err := newTestStitcher(st, res).Aggregate(ctx, "req-2")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(journeys) != 2 {
		t.Fatalf("expected two journeys, got %d", len(journeys))
	}

	originGap := domain.NewQuery(parisOrigin, gareDeLyon, 9000).Key()
	if got := res.calls[originGap]; got != 1 {
		t.Errorf("expected one resolver call for the shared origin gap, got %d", got)
	}
	// one shared origin gap plus two destination gaps at different times
	if got := res.total(); got != 3 {
		t.Errorf("expected 3 resolver calls, got %d", got)
	}
	for _, j := range journeys {
		if len(j.Steps) != 3 {
			t.Errorf("journey %d: expected 3 steps, got %d", j.ID, len(j.Steps))
		}
	}
	if journeys[0].ID != 0 || journeys[1].ID != 1 {
		t.Errorf("expected journey ids 0 and 1, got %d and %d", journeys[0].ID, journeys[1].ID)
	}
}

func TestAggregateWithoutEntriesPublishesEmptyList(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.SaveRequestContext(ctx, requestContext("req-3"))

	journeys, err := newTestStitcher(st, scenarioResolver()).Aggregate(ctx, "req-3")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if journeys == nil || len(journeys) != 0 {
		t.Errorf("expected an empty list, got %v", journeys)
	}

	stored, err := st.ReadFinal(ctx, "req-3")
	if err != nil {
		t.Fatalf("expected a published result, got %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected no journeys, got %d", len(stored))
	}
}

func TestAggregateUnknownRequestFails(t *testing.T) {
	_, err := newTestStitcher(store.NewMemoryStore(), scenarioResolver()).Aggregate(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStitchEndpointsAlreadyMatch(t *testing.T) {
	rc := requestContext("req-4")
	entry := successEntry(t, "train", trainRecord(parisOrigin, lyonDest, 10000))

	// a resolver without sources only answers degenerate queries
	s := newTestStitcher(store.NewMemoryStore(), resolver.New(testLogger()))
	journeys := s.Stitch(context.Background(), rc, []domain.Entry{entry})
	if len(journeys) != 1 {
		t.Fatalf("expected one journey, got %d", len(journeys))
	}

	want := trainRecord(parisOrigin, lyonDest, 10000).ToJourney(0)
	if diff := pretty.Diff(journeys[0], want); len(diff) > 0 {
		t.Errorf("journey changed: %v", diff)
	}
}

func TestStitchSkipsMalformedEnd(t *testing.T) {
	rc := requestContext("req-5")
	rec := trainRecord(domain.Point{48.84}, partDieu, 10000)
	res := scenarioResolver()

	journeys := newTestStitcher(store.NewMemoryStore(), res).Stitch(context.Background(), rc, []domain.Entry{successEntry(t, "train", rec)})
	if len(journeys) != 1 {
		t.Fatalf("expected the journey to be kept, got %d", len(journeys))
	}
	j := journeys[0]
	if res.total() != 1 {
		t.Errorf("expected only the destination gap to be resolved, got %d calls", res.total())
	}
	if len(j.Steps) != 2 || j.Steps[0].Type != domain.ModeTrain || j.Steps[1].Type != domain.ModeWalk {
		t.Errorf("expected train then walk, got %+v", j.Steps)
	}
	if j.DepartureDate != 10000 {
		t.Errorf("expected departure unchanged, got %d", j.DepartureDate)
	}
}

func TestStitchExcludesErrorsAndInvalidRecords(t *testing.T) {
	rc := requestContext("req-6")
	bad := trainRecord(gareDeLyon, partDieu, 10000)
	bad.JourneySteps[0].Type = "Teleport"

	entries := []domain.Entry{
		domain.NewErrorEntry("plane", errors.New("upstream 503"), time.Second),
		successEntry(t, "train", bad, trainRecord(gareDeLyon, partDieu, 10000)),
		{Provider: "coach", Status: domain.StatusSuccess, Result: []json.RawMessage{json.RawMessage(`{"journey_steps":`)}},
	}

	journeys := newTestStitcher(store.NewMemoryStore(), scenarioResolver()).Stitch(context.Background(), rc, entries)
	if len(journeys) != 1 {
		t.Fatalf("expected only the valid record, got %d journeys", len(journeys))
	}
	if journeys[0].ID != 0 {
		t.Errorf("expected id 0, got %d", journeys[0].ID)
	}
}

func TestStitchLeavesUnresolvedEndAlone(t *testing.T) {
	rc := requestContext("req-7")
	res := newCountingResolver(func(q domain.Query) ([]domain.Step, error) {
		if samePlace(q.To, gareDeLyon) {
			return []domain.Step{walk(600, 300, q.From, q.To)}, nil
		}
		return nil, resolver.ErrUnresolved
	})

	journeys := newTestStitcher(store.NewMemoryStore(), res).Stitch(context.Background(), rc, []domain.Entry{
		successEntry(t, "train", trainRecord(gareDeLyon, partDieu, 10000)),
	})
	j := journeys[0]
	if len(j.Steps) != 2 || j.Steps[1].Type != domain.ModeTrain {
		t.Errorf("expected walk then train, got %+v", j.Steps)
	}
	if j.ArrivalDate != 17200 {
		t.Errorf("expected arrival unchanged, got %d", j.ArrivalDate)
	}
	if j.TotalDistance != 450600 {
		t.Errorf("expected 450600, got %v", j.TotalDistance)
	}
}

func TestStitchUsesRequestNamesAtTheEnds(t *testing.T) {
	rc := requestContext("req-8")
	rc.OriginName = "Home"
	rc.DestinationName = "Office"

	journeys := newTestStitcher(store.NewMemoryStore(), scenarioResolver()).Stitch(context.Background(), rc, []domain.Entry{
		successEntry(t, "train", trainRecord(gareDeLyon, partDieu, 10000)),
	})
	j := journeys[0]
	if j.Steps[0].DepartureStopName != "Home" || j.Steps[len(j.Steps)-1].ArrivalStopName != "Office" {
		t.Errorf("expected Home and Office, got %q and %q", j.Steps[0].DepartureStopName, j.Steps[len(j.Steps)-1].ArrivalStopName)
	}
}
