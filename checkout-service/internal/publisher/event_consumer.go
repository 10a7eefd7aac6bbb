package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReceivedEvent is an order event read back from the topic.
type ReceivedEvent struct {
	Type      domain.OrderEventType
	SessionID string
	Partition int
	Offset    int64
	Payload   domain.OrderEventPayload
}

// EventConsumer reads the order events the outbox poller publishes.
type EventConsumer struct {
	reader MessageReader
	log    *slog.Logger
}

func NewKafkaReader(topic, group string, brokers ...string) *kafka.Reader {
	if topic == "" {
		topic = DefaultTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

func NewEventConsumer(reader MessageReader, log *slog.Logger) *EventConsumer {
	return &EventConsumer{reader: reader, log: log}
}

// Run hands every decodable event to handle until ctx is done or handle
// returns an error. Undecodable messages are logged and skipped.
func (c *EventConsumer) Run(ctx context.Context, handle func(*ReceivedEvent) error) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("failed to close kafka reader", slog.String("error", err.Error()))
		}
	}()

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read order event: %w", err)
		}

		ev, err := decodeEvent(m)
		if err != nil {
			c.log.WarnContext(ctx, "skipping order event",
				slog.Int64("offset", m.Offset), slog.String("error", err.Error()))
			continue
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
}

func decodeEvent(m kafka.Message) (*ReceivedEvent, error) {
	ev := &ReceivedEvent{
		SessionID: string(m.Key),
		Partition: m.Partition,
		Offset:    m.Offset,
	}
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			ev.Type = domain.OrderEventType(h.Value)
		}
	}
	if ev.Type == "" {
		return nil, errors.New("missing event_type header")
	}
	if err := json.Unmarshal(m.Value, &ev.Payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return ev, nil
}
