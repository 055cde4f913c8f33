package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/queue"
	"bonvoyage/internal/store"
)

// Join triggers reported to JoinMetrics.
const (
	TriggerComplete = "complete"
	TriggerDeadline = "deadline"
)

type repliedCounter interface {
	Replied(ctx context.Context, requestID string) (int, error)
}

type aggregator interface {
	Aggregate(ctx context.Context, requestID string) ([]domain.Journey, error)
}

type JoinMetrics interface {
	AggregationObserve(trigger string, d time.Duration)
}

type nopJoinMetrics struct{}

func (nopJoinMetrics) AggregationObserve(string, time.Duration) {}

// JoinWorker waits until every provider of a request replied or the join
// deadline passed, then runs the aggregation once.
type JoinWorker struct {
	store            repliedCounter
	aggregator       aggregator
	pollInterval     time.Duration
	aggregateTimeout time.Duration
	metrics          JoinMetrics
	logger           *slog.Logger
	now              func() time.Time
}

func NewJoinWorker(store repliedCounter, agg aggregator, pollInterval, aggregateTimeout time.Duration, m JoinMetrics, logger *slog.Logger) *JoinWorker {
	if m == nil {
		m = nopJoinMetrics{}
	}
	return &JoinWorker{
		store:            store,
		aggregator:       agg,
		pollInterval:     pollInterval,
		aggregateTimeout: aggregateTimeout,
		metrics:          m,
		logger:           logger.With("component", "join_worker"),
		now:              time.Now,
	}
}

func (w *JoinWorker) Start(ctx context.Context, q queue.Queue) error {
	if err := q.Consume(ctx, queue.SubjectJoin, "join", w.Handle); err != nil {
		return fmt.Errorf("consume join tasks: %w", err)
	}
	return nil
}

func (w *JoinWorker) Handle(ctx context.Context, data []byte) error {
	var task domain.JoinTask
	if err := json.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("decode join task: %v: %w", err, queue.ErrPermanent)
	}
	logger := w.logger.With("request_id", task.RequestID)

	trigger, err := w.wait(ctx, task)
	if err != nil {
		return err
	}

	// the aggregation runs to completion even if the consumer is stopping
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.aggregateTimeout)
	defer cancel()

	start := time.Now()
	journeys, err := w.aggregator.Aggregate(actx, task.RequestID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("request %s expired: %w", task.RequestID, queue.ErrPermanent)
	}
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	w.metrics.AggregationObserve(trigger, time.Since(start))

	logger.Info("request joined", "trigger", trigger, "journeys", len(journeys))
	return nil
}

func (w *JoinWorker) wait(ctx context.Context, task domain.JoinTask) (string, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		n, err := w.store.Replied(ctx, task.RequestID)
		if err != nil {
			return "", fmt.Errorf("count replies: %w", err)
		}
		if n >= task.Expected {
			return TriggerComplete, nil
		}
		if !w.now().Before(task.Deadline) {
			w.logger.Info("join deadline reached",
				"request_id", task.RequestID,
				"replied", n,
				"expected", task.Expected,
			)
			return TriggerDeadline, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
