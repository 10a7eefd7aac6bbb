package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Append(ctx context.Context, event *ActionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal action event: %w", err)
	}

	const query = `INSERT INTO acp_action_events
			(id, session_id, actor_type, actor_id, intent_type, action_type, idempotency_key,
			 service, status, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.ExecContext(ctx, query,
		event.ActionID,
		event.SessionID,
		event.Actor.Type,
		event.Actor.ID,
		string(event.Intent.Type),
		event.Action.Type,
		event.Action.IdempotencyKey,
		event.Execution.Service,
		string(event.Execution.Status),
		data,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action event: %w", err)
	}
	return nil
}

var _ Sink = (*PostgresSink)(nil)
