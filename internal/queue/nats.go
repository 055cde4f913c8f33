package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type NATSConfig struct {
	URL         string
	ClientName  string
	StreamName  string
	MaxDeliver  int
	AckWait     time.Duration
	MaxAge      time.Duration
	Concurrency int
}

// NATS carries tasks on a JetStream work-queue stream and events on core
// NATS subjects.
type NATS struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	cfg     NATSConfig
	metrics Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewNATS(ctx context.Context, cfg NATSConfig, m Metrics, logger *slog.Logger) (*NATS, error) {
	if m == nil {
		m = nopMetrics{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger = logger.With("component", "nats_queue")

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.QueueSetConnected(false)
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			m.QueueSetConnected(true)
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.QueueSetConnected(false)
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{SubjectTasks},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     cfg.MaxAge,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	m.QueueSetConnected(true)
	logger.Info("jetstream ready", "stream", cfg.StreamName, "url", cfg.URL)

	return &NATS{
		nc:      nc,
		js:      js,
		stream:  stream,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}, nil
}

func (n *NATS) Enqueue(ctx context.Context, subject, msgID string, data []byte) error {
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	start := time.Now()
	ack, err := n.js.Publish(ctx, subject, data, opts...)
	n.metrics.QueuePublishObserve(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if ack.Duplicate {
		n.logger.Debug("duplicate task ignored", "subject", subject, "msg_id", msgID)
	}
	return nil
}

func (n *NATS) Consume(ctx context.Context, subject, durable string, h Handler) error {
	consumer, err := n.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       n.cfg.AckWait,
		MaxDeliver:    n.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.consumeLoop(ctx, consumer, durable, h)
	}()

	n.logger.Info("consumer started", "subject", subject, "durable", durable)
	return nil
}

// consumeLoop fetches one message at a time and hands it to a goroutine,
// keeping at most cfg.Concurrency tasks in flight.
func (n *NATS) consumeLoop(ctx context.Context, consumer jetstream.Consumer, name string, h Handler) {
	sem := make(chan struct{}, n.cfg.Concurrency)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return
			}
			n.logger.Debug("fetch timeout or error", "consumer", name, "error", err)
			continue
		}

		received := false
		for msg := range msgs.Messages() {
			received = true
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				defer func() { <-sem }()
				n.handle(ctx, msg, h)
			}()
		}
		if !received {
			<-sem
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			n.logger.Warn("message fetch error", "consumer", name, "error", err)
		}
	}
}

func (n *NATS) handle(ctx context.Context, msg jetstream.Msg, h Handler) {
	err := h(ctx, msg.Data())
	outcome := outcomeOf(err)
	n.metrics.QueueDelivery(msg.Subject(), outcome)

	switch outcome {
	case OutcomeAck:
		if err := msg.Ack(); err != nil {
			n.logger.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
		}
	case OutcomeDrop:
		n.logger.Warn("task dropped", "subject", msg.Subject(), "error", err)
		if err := msg.Term(); err != nil {
			n.logger.Warn("failed to term message", "subject", msg.Subject(), "error", err)
		}
	default:
		n.logger.Warn("task failed", "subject", msg.Subject(), "error", err)
		if err := msg.Nak(); err != nil {
			n.logger.Warn("failed to nak message", "subject", msg.Subject(), "error", err)
		}
	}
}

func (n *NATS) Broadcast(subject string, data []byte) error {
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("broadcast %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Subscribe(subject string, fn Listener) (func(), error) {
	sub, err := n.nc.Subscribe(subject, func(m *nats.Msg) {
		fn(m.Subject, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Debug("unsubscribe failed", "subject", subject, "error", err)
		}
	}, nil
}

// Close waits for the consume loops, whose contexts must already be
// cancelled, then drains the connection.
func (n *NATS) Close() {
	n.wg.Wait()
	if n.nc != nil {
		if err := n.nc.Drain(); err != nil {
			n.logger.Warn("nats drain failed", "error", err)
		}
		n.nc.Close()
	}
}
