package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/store"
)

func TestResultsFinal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rc := requestContext("req-1")
	rc.CreatedAt = time.Unix(1000, 0)
	st.SaveRequestContext(ctx, rc)

	r := NewResults(st, time.Minute)

	r.now = func() time.Time { return time.Unix(1030, 0) }
	if _, err := r.Final(ctx, "req-1"); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending before the timeout, got %v", err)
	}

	r.now = func() time.Time { return time.Unix(1060, 0) }
	if _, err := r.Final(ctx, "req-1"); !errors.Is(err, ErrTimedOut) {
		t.Errorf("expected ErrTimedOut after the timeout, got %v", err)
	}

	if _, err := r.Final(ctx, "nope"); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}

	st.PublishFinal(ctx, "req-1", []domain.Journey{})
	res, err := r.Final(ctx, "req-1")
	if err != nil {
		t.Fatalf("expected an empty result to be final, got %v", err)
	}
	if res.Journeys == nil || len(res.Journeys) != 0 {
		t.Errorf("expected empty journeys, got %v", res.Journeys)
	}
	if res.RequestID != "req-1" || res.Params.StartTime != rc.StartTime {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestResultsPartial(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.SaveRequestContext(ctx, requestContext("req-2"))
	r := NewResults(st, time.Minute)

	p, err := r.Partial(ctx, "req-2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Complete || p.Partial == nil || len(p.Partial) != 0 {
		t.Errorf("expected empty incomplete result, got %+v", p)
	}

	st.Append(ctx, "req-2", domain.NewErrorEntry("plane", errors.New("down"), time.Second))
	st.PublishFinal(ctx, "req-2", nil)

	p, err = r.Partial(ctx, "req-2")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Complete || len(p.Partial) != 1 || p.Partial[0].Provider != "plane" {
		t.Errorf("unexpected partial result %+v", p)
	}

	if _, err := r.Partial(ctx, "nope"); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func (b *recordingBroadcaster) Broadcast(subject string, data []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][]domain.Event)
	}
	b.events[subject] = append(b.events[subject], ev)
	return nil
}

type failingArchive struct{ calls int }

func (a *failingArchive) Save(context.Context, string, []domain.Journey) error {
	a.calls++
	return errors.New("archive offline")
}

func TestPublisherNotifiesAndToleratesArchiveFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	events := &recordingBroadcaster{}
	archive := &failingArchive{}
	p := NewPublisher(st, archive, events, nil, testLogger())

	journeys := []domain.Journey{trainRecord(gareDeLyon, partDieu, 10000).ToJourney(0)}
	if err := p.Publish(ctx, "req-9", journeys); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if archive.calls != 1 {
		t.Errorf("expected one archive write, got %d", archive.calls)
	}

	got := events.events["journey.events.req-9"]
	if len(got) != 1 || got[0].Type != domain.EventFinal || got[0].Journeys != 1 {
		t.Errorf("unexpected events %+v", got)
	}

	stored, err := st.ReadFinal(ctx, "req-9")
	if err != nil || len(stored) != 1 {
		t.Errorf("expected stored result, got %v, %v", stored, err)
	}
}
