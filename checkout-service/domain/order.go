package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// OrderRecord is the persisted order, including payment details that are
// never exposed on the session.
type OrderRecord struct {
	ID                string      `json:"id"`
	CheckoutSessionID string      `json:"checkout_session_id"`
	PermalinkURL      string      `json:"permalink_url"`
	PaymentToken      string      `json:"payment_token"`
	PaymentProvider   string      `json:"payment_provider"`
	PaymentReference  string      `json:"payment_reference,omitempty"`
	TotalCents        int64       `json:"total_cents"`
	Currency          string      `json:"currency"`
	Status            OrderStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
}

func (o *OrderRecord) Public() *Order {
	return &Order{
		ID:                o.ID,
		CheckoutSessionID: o.CheckoutSessionID,
		PermalinkURL:      o.PermalinkURL,
	}
}

type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order_created"
	OrderEventUpdated OrderEventType = "order_updated"
)

type OrderEventPayload struct {
	OrderID           string      `json:"order_id"`
	CheckoutSessionID string      `json:"checkout_session_id"`
	Status            OrderStatus `json:"status"`
	TotalCents        int64       `json:"total_cents"`
	Currency          string      `json:"currency"`
}

// OrderEvent is one outbox row.
type OrderEvent struct {
	ID          int64           `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   OrderEventType  `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// NewOrderEvents returns the created and confirmed events for an order, in
// the order they are delivered.
func NewOrderEvents(o *OrderRecord) ([]*OrderEvent, error) {
	events := make([]*OrderEvent, 0, 2)
	for _, step := range []struct {
		typ    OrderEventType
		status OrderStatus
	}{
		{OrderEventCreated, OrderStatusCreated},
		{OrderEventUpdated, OrderStatusConfirmed},
	} {
		payload, err := json.Marshal(OrderEventPayload{
			OrderID:           o.ID,
			CheckoutSessionID: o.CheckoutSessionID,
			Status:            step.status,
			TotalCents:        o.TotalCents,
			Currency:          o.Currency,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, &OrderEvent{
			AggregateID: o.CheckoutSessionID,
			EventType:   step.typ,
			Payload:     payload,
			CreatedAt:   o.CreatedAt,
		})
	}
	return events, nil
}
