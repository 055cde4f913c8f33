package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/queue"
)

type finalWriter interface {
	PublishFinal(ctx context.Context, requestID string, journeys []domain.Journey) error
}

// Archive keeps published results beyond the store's expiry.
type Archive interface {
	Save(ctx context.Context, requestID string, journeys []domain.Journey) error
}

type broadcaster interface {
	Broadcast(subject string, data []byte) error
}

type PublishMetrics interface {
	Published(journeys int)
	Archived(err error)
}

type nopPublishMetrics struct{}

func (nopPublishMetrics) Published(int)  {}
func (nopPublishMetrics) Archived(error) {}

// Publisher makes the final journeys of a request retrievable and tells
// listeners they are ready. Archive and events are optional.
type Publisher struct {
	store   finalWriter
	archive Archive
	events  broadcaster
	metrics PublishMetrics
	logger  *slog.Logger
}

func NewPublisher(store finalWriter, archive Archive, events broadcaster, m PublishMetrics, logger *slog.Logger) *Publisher {
	if m == nil {
		m = nopPublishMetrics{}
	}
	return &Publisher{
		store:   store,
		archive: archive,
		events:  events,
		metrics: m,
		logger:  logger.With("component", "publisher"),
	}
}

// Publish stores journeys under requestID. Publishing the same request twice
// overwrites the previous result.
func (p *Publisher) Publish(ctx context.Context, requestID string, journeys []domain.Journey) error {
	if journeys == nil {
		journeys = []domain.Journey{}
	}
	if err := p.store.PublishFinal(ctx, requestID, journeys); err != nil {
		return fmt.Errorf("publish final results: %w", err)
	}
	p.metrics.Published(len(journeys))

	if p.archive != nil {
		err := p.archive.Save(ctx, requestID, journeys)
		p.metrics.Archived(err)
		if err != nil {
			p.logger.Warn("archive failed", "request_id", requestID, "error", err)
		}
	}

	p.notify(domain.Event{
		Type:      domain.EventFinal,
		RequestID: requestID,
		Journeys:  len(journeys),
		At:        time.Now().UTC(),
	})
	return nil
}

func (p *Publisher) notify(ev domain.Event) {
	if p.events == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode event", "request_id", ev.RequestID, "error", err)
		return
	}
	if err := p.events.Broadcast(queue.SubjectEvents(ev.RequestID), data); err != nil {
		p.logger.Warn("failed to broadcast event", "request_id", ev.RequestID, "error", err)
	}
}
