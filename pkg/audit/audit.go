// Package audit records every externally visible protocol action as an
// append-only ActionEvent: who acted, what they intended, whether the
// request passed verification and how execution ended.
package audit

import (
	"context"
	"embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shabazpatel/acp-infra/pkg/ids"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsTable = "schema_migrations_audit"

type IntentType string

const (
	IntentSearch   IntentType = "search"
	IntentCompare  IntentType = "compare"
	IntentPurchase IntentType = "purchase"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Action types recorded in ActionEvent.Action.Type.
const (
	ActionCheckoutCreate   = "checkout.create"
	ActionCheckoutUpdate   = "checkout.update"
	ActionCheckoutComplete = "checkout.complete"
	ActionCheckoutCancel   = "checkout.cancel"
	ActionCheckoutGet      = "checkout.get"
	ActionDelegatePayment  = "delegate_payment"
	ActionVaultTokenGet    = "vault_token.get"
	ActionSearch           = "search"
	ActionProductGet       = "product.get"
	ActionRatingsGet       = "ratings.get"
	ActionCompare          = "compare"
	ActionPurchaseSimulate = "purchase.simulate"
)

type Actor struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id" bson:"id"`
}

type Intent struct {
	Type          IntentType `json:"type" bson:"type"`
	Confidence    float64    `json:"confidence" bson:"confidence"`
	UserUtterance string     `json:"user_utterance" bson:"user_utterance"`
}

type Action struct {
	Type           string         `json:"type" bson:"type"`
	Input          map[string]any `json:"input" bson:"input"`
	IdempotencyKey string         `json:"idempotency_key" bson:"idempotency_key"`
}

type Verification struct {
	SchemaValid    bool     `json:"schema_valid" bson:"schema_valid"`
	ResourceChecks []string `json:"resource_checks" bson:"resource_checks"`
	PolicyChecks   []string `json:"policy_checks" bson:"policy_checks"`
	Approved       bool     `json:"approved" bson:"approved"`
	FailReasons    []string `json:"fail_reasons" bson:"fail_reasons"`
}

type Execution struct {
	Status    Status `json:"status" bson:"status"`
	Service   string `json:"service" bson:"service"`
	LatencyMS int64  `json:"latency_ms" bson:"latency_ms"`
	ResultRef string `json:"result_ref,omitempty" bson:"result_ref,omitempty"`
	Error     string `json:"error,omitempty" bson:"error,omitempty"`
}

type ActionEvent struct {
	ActionID     string       `json:"action_id" bson:"_id"`
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
	SessionID    string       `json:"session_id" bson:"session_id"`
	Actor        Actor        `json:"actor" bson:"actor"`
	Intent       Intent       `json:"intent" bson:"intent"`
	Action       Action       `json:"action" bson:"action"`
	Verification Verification `json:"verification" bson:"verification"`
	Execution    Execution    `json:"execution" bson:"execution"`
}

// Entry is what a handler knows about an action once it has finished.
type Entry struct {
	SessionID      string
	Intent         IntentType
	ActionType     string
	Input          any
	IdempotencyKey string
	Outcome        Status
	ResultRef      string
	Error          string
	// SchemaInvalid marks a request rejected by payload validation.
	SchemaInvalid  bool
	ResourceChecks []string
	PolicyChecks   []string
	Latency        time.Duration
}

// Sink persists events. Append must not modify earlier events.
type Sink interface {
	Append(ctx context.Context, event *ActionEvent) error
}

type Log struct {
	sink    Sink
	service string
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewLog writes events for service ("seller" or "psp") to sink.
func NewLog(sink Sink, service string, log *slog.Logger) *Log {
	return &Log{
		sink:    sink,
		service: service,
		log:     log,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Record builds and appends an event. Sink failures are logged and never
// returned: auditing must not change the outcome of the action.
func (l *Log) Record(ctx context.Context, e Entry) *ActionEvent {
	event := l.build(e)

	// The response may already be on its way; keep writing even if the
	// caller has gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.sink.Append(ctx, event); err != nil {
		l.log.WarnContext(ctx, "failed to append audit event",
			slog.String("action_id", event.ActionID),
			slog.String("action", event.Action.Type),
			slog.String("error", err.Error()))
	}
	return event
}

func (l *Log) build(e Entry) *ActionEvent {
	intent := e.Intent
	if intent == "" {
		intent = IntentPurchase
	}
	key := e.IdempotencyKey
	if key == "" {
		key = ids.New(string(intent)+"_", 10)
	}

	v := Verification{
		SchemaValid:    !e.SchemaInvalid,
		ResourceChecks: orEmpty(e.ResourceChecks),
		PolicyChecks:   orEmpty(e.PolicyChecks),
		Approved:       e.Outcome == StatusSucceeded,
		FailReasons:    []string{},
	}
	if e.Outcome != StatusSucceeded {
		reason := e.Error
		if reason == "" {
			reason = string(e.Outcome)
		}
		v.FailReasons = []string{reason}
	}

	return &ActionEvent{
		ActionID:  ids.New("act_", 12),
		Timestamp: l.now().UTC(),
		SessionID: e.SessionID,
		Actor:     Actor{Type: "agent", ID: "commerce-assistant"},
		Intent: Intent{
			Type:          intent,
			Confidence:    1.0,
			UserUtterance: string(intent) + " via API",
		},
		Action: Action{
			Type:           e.ActionType,
			Input:          toInput(e.Input),
			IdempotencyKey: key,
		},
		Verification: v,
		Execution: Execution{
			Status:    e.Outcome,
			Service:   l.service,
			LatencyMS: e.Latency.Milliseconds(),
			ResultRef: e.ResultRef,
			Error:     e.Error,
		},
	}
}

// toInput normalises any JSON-encodable payload to an object. Non-object
// payloads are wrapped under "value"; undecodable ones are dropped.
func toInput(in any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	if m, ok := in.(map[string]any); ok {
		return m
	}

	raw, ok := in.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(in)
		if err != nil {
			return map[string]any{}
		}
		raw = b
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]any{}
	}
	if m, ok := generic.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": generic}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
