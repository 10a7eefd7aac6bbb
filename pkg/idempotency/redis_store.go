package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares records between replicas. Claims use SET NX so only
// one request can own a key; every record expires after ttl.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, rec *Record) (*Record, bool, error) {
	pending := *rec
	pending.Completed = false
	data, err := json.Marshal(&pending)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record failed: %w", err)
	}

	k := redisKey(rec.Route, rec.Key)
	// The key can expire between SETNX and GET; retry once in that case.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, k, data, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return rec, true, nil
		}

		existing, err := s.Get(ctx, rec.Route, rec.Key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("redis claim for %s did not settle", k)
}

func (s *RedisStore) Get(ctx context.Context, route, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(route, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record failed: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Complete(ctx context.Context, rec *Record) error {
	existing, err := s.Get(ctx, rec.Route, rec.Key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Completed {
		return nil
	}

	done := *rec
	done.Completed = true
	data, err := json.Marshal(&done)
	if err != nil {
		return fmt.Errorf("marshal record failed: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(rec.Route, rec.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release deletes the key only while it is still pending. Only the owner of
// a claim calls Release, so the read-then-delete does not race a Complete.
func (s *RedisStore) Release(ctx context.Context, route, key string) error {
	rec, err := s.Get(ctx, route, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Completed {
		return nil
	}

	if err := s.client.Del(ctx, redisKey(route, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func redisKey(route, key string) string {
	return fmt.Sprintf("idem:%s:%s", route, key)
}

var _ Store = (*RedisStore)(nil)
