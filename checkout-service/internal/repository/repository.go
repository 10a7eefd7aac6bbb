// Package repository persists checkout sessions, their orders and the order
// event outbox.
package repository

import (
	"context"
	"errors"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionExists   = errors.New("checkout session already exists")
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicateOrder  = errors.New("order for this checkout session already exists")
)

// Mutation carries the rows written together with a session update.
type Mutation struct {
	Order  *domain.OrderRecord
	Events []*domain.OrderEvent
}

// MutateFunc edits the session in place while the session is locked. A
// returned error aborts the update and leaves everything as it was.
type MutateFunc func(s *domain.CheckoutSession) (*Mutation, error)

type Repository interface {
	CreateSession(ctx context.Context, s *domain.CheckoutSession) error
	GetSession(ctx context.Context, id string) (*domain.CheckoutSession, error)
	// UpdateSession serializes mutations of one session. The session, the
	// order and the events of the mutation are persisted atomically.
	UpdateSession(ctx context.Context, id string, fn MutateFunc) (*domain.CheckoutSession, error)

	GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error)
	GetOrderBySession(ctx context.Context, sessionID string) (*domain.OrderRecord, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OrderEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	Close() error
}
