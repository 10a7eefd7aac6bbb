package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/postgres"
)

// MigrationsTable keeps the checkout schema version apart from the other
// services sharing the database.
const MigrationsTable = "checkout_schema_migrations"

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, s *domain.CheckoutSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO checkout_sessions (id, status, session_data, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`,
		s.ID, s.Status, string(data))
	if postgres.IsUniqueViolation(err) {
		return ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT session_data FROM checkout_sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout session: %w", err)
	}
	return decodeSession(data)
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, id string, fn MutateFunc) (*domain.CheckoutSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT session_data FROM checkout_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock checkout session: %w", err)
	}

	s, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	m, err := fn(s)
	if err != nil {
		return nil, err
	}

	updated, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE checkout_sessions SET status = $2, session_data = $3, updated_at = NOW() WHERE id = $1`,
		id, s.Status, string(updated)); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}

	if m != nil {
		if m.Order != nil {
			if err := insertOrder(ctx, tx, m.Order); err != nil {
				return nil, err
			}
		}
		for _, ev := range m.Events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkout session: %w", err)
	}
	return s, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.OrderRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, checkout_session_id, permalink_url, payment_token, payment_provider,
		                     payment_reference, total_cents, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.CheckoutSessionID, o.PermalinkURL, o.PaymentToken, o.PaymentProvider,
		o.PaymentReference, o.TotalCents, o.Currency, o.Status, o.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *domain.OrderEvent) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()))
		 RETURNING id, created_at`,
		ev.AggregateID, ev.EventType, string(ev.Payload), nullTime(ev)).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func nullTime(ev *domain.OrderEvent) sql.NullTime {
	return sql.NullTime{Time: ev.CreatedAt, Valid: !ev.CreatedAt.IsZero()}
}

const orderColumns = `id, checkout_session_id, permalink_url, payment_token, payment_provider,
	payment_reference, total_cents, currency, status, created_at`

func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error) {
	return r.queryOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *PostgresRepository) GetOrderBySession(ctx context.Context, sessionID string) (*domain.OrderRecord, error) {
	return r.queryOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_session_id = $1`, sessionID)
}

func (r *PostgresRepository) queryOrder(ctx context.Context, query, arg string) (*domain.OrderRecord, error) {
	var o domain.OrderRecord
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&o.ID,
		&o.CheckoutSessionID,
		&o.PermalinkURL,
		&o.PaymentToken,
		&o.PaymentProvider,
		&o.PaymentReference,
		&o.TotalCents,
		&o.Currency,
		&o.Status,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OrderEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE processed_at IS NULL ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OrderEvent
	for rows.Next() {
		var (
			ev      domain.OrderEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Payload = payload
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox event %d not found", id)
	}
	return nil
}

// Ping is used by the health server.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*PostgresRepository)(nil)
