package queue

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent marks a task failure that must not be redelivered.
var ErrPermanent = errors.New("permanent task failure")

// Handler processes one task payload. A nil return acknowledges the task,
// an error wrapping ErrPermanent drops it, any other error redelivers it.
type Handler func(ctx context.Context, data []byte) error

// Listener receives broadcast events. It must not block.
type Listener func(subject string, data []byte)

// Queue carries work tasks with at-least-once delivery and fire-and-forget
// events to any number of listeners.
type Queue interface {
	// Enqueue publishes a task. msgID de-duplicates repeated publishes.
	Enqueue(ctx context.Context, subject, msgID string, data []byte) error
	// Consume starts delivering tasks matching subject to h until ctx ends.
	// Consumers sharing a durable name split the work between them.
	Consume(ctx context.Context, subject, durable string, h Handler) error
	Broadcast(subject string, data []byte) error
	Subscribe(subject string, l Listener) (unsubscribe func(), err error)
	Close()
}

// Metrics receives transport measurements.
type Metrics interface {
	QueuePublishObserve(d time.Duration, err error)
	QueueDelivery(subject string, outcome string)
	QueueSetConnected(connected bool)
}

// Delivery outcomes reported to Metrics.
const (
	OutcomeAck   = "ack"
	OutcomeRetry = "retry"
	OutcomeDrop  = "drop"
)

type nopMetrics struct{}

func (nopMetrics) QueuePublishObserve(time.Duration, error) {}
func (nopMetrics) QueueDelivery(string, string)             {}
func (nopMetrics) QueueSetConnected(bool)                   {}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrPermanent):
		return OutcomeDrop
	default:
		return OutcomeRetry
	}
}
