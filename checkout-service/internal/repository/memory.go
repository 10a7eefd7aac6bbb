package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

type sessionEntry struct {
	mu   sync.Mutex
	data []byte
}

// MemoryRepository keeps everything in process. Sessions are stored as JSON
// so callers never share state with the repository.
type MemoryRepository struct {
	mu         sync.RWMutex
	sessions   map[string]*sessionEntry
	orders     map[string]*domain.OrderRecord
	bySession  map[string]string
	events     []*domain.OrderEvent
	nextEvent  int64
	dropEvents bool
	now        func() time.Time
}

type MemoryOption func(*MemoryRepository)

// WithoutOutbox discards order events instead of queueing them. Use it when
// no relay drains the outbox.
func WithoutOutbox() MemoryOption {
	return func(r *MemoryRepository) { r.dropEvents = true }
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		sessions:  make(map[string]*sessionEntry),
		orders:    make(map[string]*domain.OrderRecord),
		bySession: make(map[string]string),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *domain.CheckoutSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	r.sessions[s.ID] = &sessionEntry{data: data}
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, id string) (*domain.CheckoutSession, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	data := e.data
	e.mu.Unlock()
	return decodeSession(data)
}

func (r *MemoryRepository) UpdateSession(ctx context.Context, id string, fn MutateFunc) (*domain.CheckoutSession, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := decodeSession(e.data)
	if err != nil {
		return nil, err
	}
	m, err := fn(s)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	if m != nil {
		if err := r.apply(m); err != nil {
			return nil, err
		}
	}
	e.data = data
	return s, nil
}

func (r *MemoryRepository) apply(m *Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := m.Order; o != nil {
		if _, ok := r.bySession[o.CheckoutSessionID]; ok {
			return ErrDuplicateOrder
		}
		if _, ok := r.orders[o.ID]; ok {
			return ErrDuplicateOrder
		}
		stored := *o
		r.orders[o.ID] = &stored
		r.bySession[o.CheckoutSessionID] = o.ID
	}

	if r.dropEvents {
		return nil
	}
	for _, ev := range m.Events {
		r.nextEvent++
		ev.ID = r.nextEvent
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = r.now()
		}
		stored := *ev
		r.events = append(r.events, &stored)
	}
	return nil
}

func (r *MemoryRepository) GetOrder(_ context.Context, id string) (*domain.OrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := *o
	return &out, nil
}

func (r *MemoryRepository) GetOrderBySession(ctx context.Context, sessionID string) (*domain.OrderRecord, error) {
	r.mu.RLock()
	id, ok := r.bySession[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.GetOrder(ctx, id)
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OrderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.OrderEvent
	for _, ev := range r.events {
		if len(out) == limit {
			break
		}
		if ev.ProcessedAt == nil {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Processed events are dropped; only the pending tail is kept.
	for i, ev := range r.events {
		if ev.ID == id {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("outbox event %d not found", id)
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) entry(id string) (*sessionEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func decodeSession(data []byte) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

var _ Repository = (*MemoryRepository)(nil)
