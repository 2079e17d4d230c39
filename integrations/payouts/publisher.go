// Package payouts publishes escrow movements and courier approvals to Kafka so
// settlement services can pay out receivers.
package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"deliverynet/core/events"
	"deliverynet/native/escrow"
	"deliverynet/observability"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 500 * time.Millisecond
	defaultMaxBackoff  = 15 * time.Second
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// published lists the event types forwarded to the topic.
var published = map[string]struct{}{
	escrow.EventTypeEscrowLocked:   {},
	escrow.EventTypeEscrowReleased: {},
	events.TypeProposalApproved:    {},
}

// Notification is the message value written to Kafka.
type Notification struct {
	DeliveryID  string            `json:"deliveryId"`
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	PublishedAt time.Time         `json:"publishedAt"`
}

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous writer that waits for all in-sync
// replicas.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher forwards payout-relevant events to Kafka from a background worker
// with retry and exponential backoff. It implements events.Emitter and never
// blocks the engine: when the queue is full the event is dropped and counted.
type Publisher struct {
	writer      MessageWriter
	logger      *slog.Logger
	metrics     *observability.PayoutMetrics
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	nowFn       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

// Option mutates publisher configuration.
type Option func(*Publisher)

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(p *Publisher) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			p.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			p.maxBackoff = maxBackoff
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics attaches the payout metrics registry.
func WithMetrics(m *observability.PayoutMetrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithQueueSize overrides the buffered queue capacity.
func WithQueueSize(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Notification, size)
		}
	}
}

// NewPublisher starts the worker goroutine.
func NewPublisher(writer MessageWriter, opts ...Option) (*Publisher, error) {
	if writer == nil {
		return nil, errors.New("payouts: writer required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		writer:      writer,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		nowFn:       time.Now,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan Notification, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "payouts"))
	p.wg.Add(1)
	go p.worker()
	return p, nil
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(evt events.Event) {
	if p == nil || evt == nil {
		return
	}
	if _, ok := published[evt.EventType()]; !ok {
		return
	}
	canonical := events.Canonical(evt).Clone()
	n := Notification{
		DeliveryID:  uuid.NewString(),
		Type:        canonical.Type,
		Attributes:  canonical.Attributes,
		PublishedAt: p.nowFn().UTC(),
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- n:
	default:
		p.metrics.RecordError("queue_full")
		p.logger.Warn("payout queue full, dropping notification", slog.String("type", n.Type))
	}
}

// Close drains queued notifications, stops the worker and closes the writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
	return p.writer.Close()
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for n := range p.queue {
		p.process(n)
	}
}

func (p *Publisher) process(n Notification) {
	value, err := json.Marshal(n)
	if err != nil {
		p.metrics.RecordError("encode")
		return
	}
	msg := kafka.Message{Key: []byte(messageKey(n)), Value: value, Time: n.PublishedAt}
	backoff := p.minBackoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		ctx, cancel := context.WithTimeout(p.ctx, defaultSendTimeout)
		err = p.writer.WriteMessages(ctx, msg)
		cancel()
		p.metrics.ObservePublish(n.Type, time.Since(start), err)
		if err == nil {
			return
		}
		if attempt >= p.maxAttempts {
			p.logger.Error("payout notification abandoned",
				slog.String("type", n.Type),
				slog.String("deliveryId", n.DeliveryID),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
			return
		}
		select {
		case <-time.After(backoff):
		case <-p.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, p.maxBackoff)
	}
}

// messageKey partitions by escrow (or order) so the notifications of one hold
// stay ordered.
func messageKey(n Notification) string {
	if id := n.Attributes["escrowId"]; id != "" {
		return n.Attributes["payer"] + "/" + id
	}
	return n.Attributes["orderId"]
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
