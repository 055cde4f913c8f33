package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/provider"
	"bonvoyage/internal/queue"
)

type appender interface {
	Append(ctx context.Context, requestID string, entry domain.Entry) error
}

type broadcaster interface {
	Broadcast(subject string, data []byte) error
}

type ProviderMetrics interface {
	ProviderObserve(provider, status string, d time.Duration)
}

type nopProviderMetrics struct{}

func (nopProviderMetrics) ProviderObserve(string, string, time.Duration) {}

// ProviderWorker runs provider tasks and stores each outcome as an entry.
// A provider failure is an entry like any other; only a store failure
// makes the task fail.
type ProviderWorker struct {
	registry *provider.Registry
	store    appender
	events   broadcaster
	timeout  time.Duration
	metrics  ProviderMetrics
	logger   *slog.Logger
}

func NewProviderWorker(registry *provider.Registry, store appender, events broadcaster, timeout time.Duration, m ProviderMetrics, logger *slog.Logger) *ProviderWorker {
	if m == nil {
		m = nopProviderMetrics{}
	}
	return &ProviderWorker{
		registry: registry,
		store:    store,
		events:   events,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With("component", "provider_worker"),
	}
}

// Start consumes the tasks of every registered provider.
func (w *ProviderWorker) Start(ctx context.Context, q queue.Queue) error {
	for _, name := range w.registry.Names() {
		if err := q.Consume(ctx, queue.SubjectProvider(name), "provider-"+name, w.Handle); err != nil {
			return fmt.Errorf("consume %s tasks: %w", name, err)
		}
	}
	return nil
}

func (w *ProviderWorker) Handle(ctx context.Context, data []byte) error {
	var task domain.ProviderTask
	if err := json.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("decode provider task: %v: %w", err, queue.ErrPermanent)
	}
	p, ok := w.registry.Get(task.Provider)
	if !ok {
		return fmt.Errorf("provider %q not registered: %w", task.Provider, queue.ErrPermanent)
	}

	logger := w.logger.With("request_id", task.RequestID, "provider", task.Provider)
	entry := w.run(ctx, logger, p, task)

	if err := w.store.Append(ctx, task.RequestID, entry); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	w.metrics.ProviderObserve(task.Provider, string(entry.Status), time.Duration(entry.DurationMS)*time.Millisecond)

	logger.Info("provider replied",
		"status", entry.Status,
		"itineraries", len(entry.Result),
		"duration_ms", entry.DurationMS,
	)
	w.notify(logger, domain.Event{
		Type:      domain.EventPartial,
		RequestID: task.RequestID,
		Provider:  task.Provider,
		Status:    entry.Status,
		Journeys:  len(entry.Result),
		At:        time.Now().UTC(),
	})
	return nil
}

func (w *ProviderWorker) run(ctx context.Context, logger *slog.Logger, p provider.Provider, task domain.ProviderTask) domain.Entry {
	qctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	records, err := p.Query(qctx, task)
	took := time.Since(start)
	if err != nil {
		logger.Warn("provider query failed", "error", err)
		return domain.NewErrorEntry(task.Provider, err, took)
	}

	valid := records[:0:0]
	for i, rec := range records {
		if err := domain.ValidateRecord(rec); err != nil {
			logger.Warn("provider returned an invalid record", "index", i, "error", err)
			continue
		}
		valid = append(valid, rec)
	}

	entry, err := domain.NewSuccessEntry(task.Provider, valid, took)
	if err != nil {
		return domain.NewErrorEntry(task.Provider, err, took)
	}
	return entry
}

func (w *ProviderWorker) notify(logger *slog.Logger, ev domain.Event) {
	if w.events == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to encode event", "error", err)
		return
	}
	if err := w.events.Broadcast(queue.SubjectEvents(ev.RequestID), data); err != nil {
		logger.Warn("failed to broadcast event", "error", err)
	}
}
