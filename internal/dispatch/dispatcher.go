package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/queue"
)

// ErrDispatchUnavailable wraps any failure of the store or the task transport.
var ErrDispatchUnavailable = errors.New("dispatch unavailable")

type contextSaver interface {
	SaveRequestContext(ctx context.Context, rc domain.RequestContext) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, subject, msgID string, data []byte) error
}

type Metrics interface {
	Dispatched(err error)
}

type nopMetrics struct{}

func (nopMetrics) Dispatched(error) {}

type Options struct {
	Providers   []string
	JoinTimeout time.Duration
	Metrics     Metrics
}

// Dispatcher fans a journey request out to one task per provider plus a
// trailing join task.
type Dispatcher struct {
	store       contextSaver
	queue       enqueuer
	providers   []string
	joinTimeout time.Duration
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func New(store contextSaver, q enqueuer, opts Options, logger *slog.Logger) *Dispatcher {
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &Dispatcher{
		store:       store,
		queue:       q,
		providers:   append([]string(nil), opts.Providers...),
		joinTimeout: opts.JoinTimeout,
		metrics:     m,
		logger:      logger.With("component", "dispatcher"),
		now:         time.Now,
	}
}

func (d *Dispatcher) Providers() []string {
	return append([]string(nil), d.providers...)
}

// Dispatch validates req, records its context and enqueues the tasks. It
// returns as soon as the tasks are accepted by the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	requestID := uuid.NewString()
	createdAt := d.now().UTC()

	rc := domain.RequestContext{
		RequestID: requestID,
		Request:   req,
		Providers: d.Providers(),
		CreatedAt: createdAt,
	}
	if err := d.store.SaveRequestContext(ctx, rc); err != nil {
		return "", d.fail(requestID, fmt.Errorf("%w: save request context: %w", ErrDispatchUnavailable, err))
	}

	for _, name := range d.providers {
		task := domain.ProviderTask{
			RequestID:   requestID,
			Provider:    name,
			Origin:      req.Origin,
			Destination: req.Destination,
			StartTime:   req.StartTime,
			Passengers:  req.Passengers,
		}
		if err := d.enqueue(ctx, queue.SubjectProvider(name), requestID+"."+name, task); err != nil {
			return "", d.fail(requestID, err)
		}
	}

	join := domain.JoinTask{
		RequestID: requestID,
		Expected:  len(d.providers),
		Deadline:  createdAt.Add(d.joinTimeout),
	}
	if err := d.enqueue(ctx, queue.SubjectJoin, requestID+".join", join); err != nil {
		return "", d.fail(requestID, err)
	}

	d.metrics.Dispatched(nil)
	d.logger.Info("request dispatched",
		"request_id", requestID,
		"providers", len(d.providers),
		"deadline", join.Deadline,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return requestID, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode task for %s: %w", subject, err)
	}
	if err := d.queue.Enqueue(ctx, subject, msgID, data); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchUnavailable, err)
	}
	return nil
}

func (d *Dispatcher) fail(requestID string, err error) error {
	d.metrics.Dispatched(err)
	d.logger.Error("dispatch failed", "request_id", requestID, "error", err)
	return err
}
