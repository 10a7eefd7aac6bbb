package audit

import (
	"context"
	"sync"
)

// MemorySink keeps events in process memory. Used in development and
// tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []ActionEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, event *ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a snapshot in append order.
func (s *MemorySink) Events() []ActionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActionEvent, len(s.events))
	copy(out, s.events)
	return out
}

var _ Sink = (*MemorySink)(nil)
