package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

const DefaultTopic = "acp-order-events"

// OutboxStore is the part of the repository the poller drains.
type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OrderEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays committed order events to Kafka. Delivery is at least
// once: an event is marked only after the broker acknowledged it.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batch     int
	repo      OutboxStore
	writer    MessageWriter
	log       *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo OutboxStore, writer MessageWriter, interval time.Duration, log *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: interval,
		batch:     100,
		repo:      repo,
		writer:    writer,
		log:       log,
	}
}

// Run polls until ctx is done, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) error {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("failed to close kafka writer", slog.String("error", err.Error()))
		}
	}()

	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", slog.String("error", err.Error()))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.ErrorContext(ctx, "failed to publish outbox event",
				slog.Int64("event_id", event.ID), slog.String("error", err.Error()))
			// later events of the same session must not overtake this one
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark outbox event as processed",
				slog.Int64("event_id", event.ID), slog.String("error", err.Error()))
			return
		}
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *domain.OrderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // checkout session id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
