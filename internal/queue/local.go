package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const localDedupeWindow = 2 * time.Minute

type localConsumer struct {
	ctx     context.Context
	pattern string
	durable string
	handler Handler
}

type localMessage struct {
	subject string
	data    []byte
}

type localListener struct {
	pattern string
	fn      Listener
}

// Local is an in-process Queue. Tasks run on their own goroutine and are
// retried up to maxDeliver times; tasks published before any matching
// consumer exists are held until one registers.
type Local struct {
	mu         sync.Mutex
	consumers  []localConsumer
	next       map[string]int
	pending    []localMessage
	seen       map[string]time.Time
	listeners  map[int]localListener
	listenerID int
	closed     bool

	maxDeliver int
	retryDelay time.Duration
	metrics    Metrics
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewLocal(maxDeliver int, retryDelay time.Duration, m Metrics, logger *slog.Logger) *Local {
	if maxDeliver < 1 {
		maxDeliver = 1
	}
	if m == nil {
		m = nopMetrics{}
	}
	m.QueueSetConnected(true)
	return &Local{
		next:       make(map[string]int),
		seen:       make(map[string]time.Time),
		listeners:  make(map[int]localListener),
		maxDeliver: maxDeliver,
		retryDelay: retryDelay,
		metrics:    m,
		logger:     logger.With("component", "local_queue"),
	}
}

func (l *Local) Enqueue(_ context.Context, subject, msgID string, data []byte) error {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		err := errors.New("queue closed")
		l.metrics.QueuePublishObserve(time.Since(start), err)
		return err
	}

	now := time.Now()
	for id, at := range l.seen {
		if now.Sub(at) > localDedupeWindow {
			delete(l.seen, id)
		}
	}
	if msgID != "" {
		if _, dup := l.seen[msgID]; dup {
			l.logger.Debug("duplicate task ignored", "subject", subject, "msg_id", msgID)
			return nil
		}
		l.seen[msgID] = now
	}

	msg := localMessage{subject: subject, data: append([]byte(nil), data...)}
	if c, ok := l.pick(subject); ok {
		l.dispatch(c, msg)
	} else {
		l.pending = append(l.pending, msg)
	}
	l.metrics.QueuePublishObserve(time.Since(start), nil)
	return nil
}

// pick selects a consumer round-robin among those sharing the matching
// durable name. Must be called with mu held.
func (l *Local) pick(subject string) (localConsumer, bool) {
	var matches []localConsumer
	for _, c := range l.consumers {
		if c.ctx.Err() == nil && matchSubject(c.pattern, subject) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return localConsumer{}, false
	}
	durable := matches[0].durable
	var group []localConsumer
	for _, c := range matches {
		if c.durable == durable {
			group = append(group, c)
		}
	}
	i := l.next[durable] % len(group)
	l.next[durable]++
	return group[i], true
}

// dispatch must be called with mu held.
func (l *Local) dispatch(c localConsumer, msg localMessage) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.deliver(c, msg)
	}()
}

func (l *Local) deliver(c localConsumer, msg localMessage) {
	for attempt := 1; attempt <= l.maxDeliver; attempt++ {
		err := c.handler(c.ctx, msg.data)
		outcome := outcomeOf(err)
		l.metrics.QueueDelivery(msg.subject, outcome)

		switch outcome {
		case OutcomeAck:
			return
		case OutcomeDrop:
			l.logger.Warn("task dropped", "subject", msg.subject, "error", err)
			return
		}

		l.logger.Warn("task failed", "subject", msg.subject, "attempt", attempt, "error", err)
		if attempt == l.maxDeliver {
			break
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
	l.logger.Error("task exhausted retries", "subject", msg.subject, "max_deliver", l.maxDeliver)
}

func (l *Local) Consume(ctx context.Context, subject, durable string, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.New("queue closed")
	}
	c := localConsumer{ctx: ctx, pattern: subject, durable: durable, handler: h}
	l.consumers = append(l.consumers, c)

	kept := l.pending[:0]
	for _, msg := range l.pending {
		if matchSubject(subject, msg.subject) {
			l.dispatch(c, msg)
			continue
		}
		kept = append(kept, msg)
	}
	l.pending = kept

	l.logger.Info("consumer started", "subject", subject, "durable", durable)
	return nil
}

func (l *Local) Broadcast(subject string, data []byte) error {
	l.mu.Lock()
	listeners := make([]localListener, 0, len(l.listeners))
	for _, ls := range l.listeners {
		if matchSubject(ls.pattern, subject) {
			listeners = append(listeners, ls)
		}
	}
	l.mu.Unlock()

	for _, ls := range listeners {
		ls.fn(subject, data)
	}
	return nil
}

func (l *Local) Subscribe(subject string, fn Listener) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil listener", subject)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.listenerID++
	id := l.listenerID
	l.listeners[id] = localListener{pattern: subject, fn: fn}

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}, nil
}

// Close rejects new tasks and waits for running ones. Consumer contexts
// should be cancelled first so retries stop.
func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
	l.metrics.QueueSetConnected(false)
}
