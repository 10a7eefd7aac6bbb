// Package idempotency deduplicates retried protocol requests. A request is
// identified by (route, idempotency key); the first request claims the key,
// executes, and stores its response, and any retry with the same canonical
// payload replays that response byte for byte.
package idempotency

import (
	"context"
	"embed"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("idempotency record not found")
	ErrInProgress = errors.New("idempotent request still in progress")
)

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsTable = "schema_migrations_idempotency"

// Record is one claimed key. A record starts pending (Completed false) and
// becomes immutable once completed.
type Record struct {
	Route       string    `json:"route"`
	Key         string    `json:"key"`
	PayloadHash string    `json:"payload_hash"`
	RequestID   string    `json:"request_id,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists records. Implementations must be safe for concurrent use
// and Claim must be an atomic check-and-insert.
type Store interface {
	// Claim inserts rec as pending unless (rec.Route, rec.Key) already
	// exists. It returns (rec, true) when this caller now owns the key and
	// (existing, false) otherwise.
	Claim(ctx context.Context, rec *Record) (*Record, bool, error)

	// Get returns ErrNotFound for unknown or expired keys.
	Get(ctx context.Context, route, key string) (*Record, error)

	// Complete stores the final response and marks the record completed.
	Complete(ctx context.Context, rec *Record) error

	// Release drops a pending record so the key can be claimed again.
	// Completed records are left alone.
	Release(ctx context.Context, route, key string) error
}
