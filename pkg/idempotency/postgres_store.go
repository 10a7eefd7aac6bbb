package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps records in the idempotency_records table. Claims are
// a conditional insert on the (route, idempotency_key) primary key.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore returns a store whose records older than ttl are treated
// as absent. A zero ttl keeps records forever.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

func (s *PostgresStore) Claim(ctx context.Context, rec *Record) (*Record, bool, error) {
	if s.ttl > 0 {
		const purge = `DELETE FROM idempotency_records
			WHERE route = $1 AND idempotency_key = $2 AND created_at < $3`
		if _, err := s.db.ExecContext(ctx, purge, rec.Route, rec.Key, time.Now().Add(-s.ttl)); err != nil {
			return nil, false, fmt.Errorf("failed to purge expired record: %w", err)
		}
	}

	const insert = `INSERT INTO idempotency_records
			(route, idempotency_key, payload_hash, request_id, completed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (route, idempotency_key) DO NOTHING`

	// A concurrent Release can delete the row between the insert and the
	// read; retry once in that case.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.db.ExecContext(ctx, insert, rec.Route, rec.Key, rec.PayloadHash, rec.RequestID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to claim record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 1 {
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
	return nil, false, fmt.Errorf("claim for %s %s did not settle", rec.Route, rec.Key)
}

func (s *PostgresStore) Get(ctx context.Context, route, key string) (*Record, error) {
	const query = `SELECT route, idempotency_key, payload_hash, request_id, status_code,
			response_body, completed, created_at
		FROM idempotency_records
		WHERE route = $1 AND idempotency_key = $2`

	var rec Record
	err := s.db.QueryRowContext(ctx, query, route, key).Scan(
		&rec.Route,
		&rec.Key,
		&rec.PayloadHash,
		&rec.RequestID,
		&rec.StatusCode,
		&rec.Body,
		&rec.Completed,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Complete(ctx context.Context, rec *Record) error {
	const upsert = `INSERT INTO idempotency_records
			(route, idempotency_key, payload_hash, request_id, status_code, response_body, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		ON CONFLICT (route, idempotency_key) DO UPDATE
		SET request_id = EXCLUDED.request_id,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			completed = TRUE
		WHERE idempotency_records.completed = FALSE`

	_, err := s.db.ExecContext(ctx, upsert,
		rec.Route, rec.Key, rec.PayloadHash, rec.RequestID, rec.StatusCode, rec.Body)
	if err != nil {
		return fmt.Errorf("failed to complete record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, route, key string) error {
	const query = `DELETE FROM idempotency_records
		WHERE route = $1 AND idempotency_key = $2 AND completed = FALSE`
	if _, err := s.db.ExecContext(ctx, query, route, key); err != nil {
		return fmt.Errorf("failed to release record: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
