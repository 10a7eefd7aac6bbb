package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
//
// It is only suitable for a single instance: records are lost on restart
// and are not shared between replicas. Use RedisStore or PostgresStore
// behind a load balancer.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	ttl     time.Duration
	now     func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithTTL bounds how long records are kept. Zero keeps them forever.
// Default: 24 hours.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*Record),
		ttl:     24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func memoryKey(route, key string) string {
	return route + "\x00" + key
}

func (s *MemoryStore) Claim(_ context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()

	k := memoryKey(rec.Route, rec.Key)
	if existing, ok := s.records[k]; ok {
		return cloneRecord(existing), false, nil
	}

	stored := cloneRecord(rec)
	stored.Completed = false
	stored.CreatedAt = s.now().UTC()
	s.records[k] = stored
	return rec, true, nil
}

func (s *MemoryStore) Get(_ context.Context, route, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[memoryKey(route, key)]
	if !ok || s.expiredLocked(rec) {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Complete(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(rec.Route, rec.Key)
	if existing, ok := s.records[k]; ok && existing.Completed {
		return nil
	}

	stored := cloneRecord(rec)
	stored.Completed = true
	if existing, ok := s.records[k]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.records[k] = stored
	return nil
}

func (s *MemoryStore) Release(_ context.Context, route, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(route, key)
	if rec, ok := s.records[k]; ok && !rec.Completed {
		delete(s.records, k)
	}
	return nil
}

// Len reports the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked()
	return len(s.records)
}

func (s *MemoryStore) expiredLocked(rec *Record) bool {
	return s.ttl > 0 && s.now().After(rec.CreatedAt.Add(s.ttl))
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (s *MemoryStore) cleanupExpiredLocked() {
	if s.ttl <= 0 {
		return
	}
	for k, rec := range s.records {
		if s.expiredLocked(rec) {
			delete(s.records, k)
		}
	}
}

func cloneRecord(rec *Record) *Record {
	cp := *rec
	if rec.Body != nil {
		cp.Body = append([]byte(nil), rec.Body...)
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
