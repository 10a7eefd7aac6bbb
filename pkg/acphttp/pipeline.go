package acphttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shabazpatel/acp-infra/pkg/apperr"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/canonical"
	"github.com/shabazpatel/acp-infra/pkg/idempotency"
	"github.com/shabazpatel/acp-infra/pkg/schema"
)

// Defaulter is implemented by request types that fill in default values
// after decoding. Defaults are applied before the payload is hashed.
type Defaulter interface {
	ApplyDefaults()
}

// Action describes one protocol operation for Pipeline.Do.
type Action struct {
	// Route is the idempotency scope, e.g. "POST:/checkout_sessions".
	// Empty disables deduplication.
	Route      string
	Intent     audit.IntentType
	ActionType string
	SessionID  string
	// Public skips authentication.
	Public bool
	// Schema validates the body before it is decoded into Request.
	Schema schema.Name
	// Request is a pointer the body is decoded into. Nil means the body is
	// ignored and the payload hashes as {}.
	Request any
	// Input is recorded in the audit log when Request is nil.
	Input any
	// Redact rewrites the raw body before it is recorded in the audit log.
	Redact func(raw []byte) any
	// Exec runs the operation. A non-nil error is rendered with
	// apperr.From and stored like any other response.
	Exec func(ctx context.Context) (status int, body any, resultRef string, err error)
}

type PipelineConfig struct {
	Auth         *auth.Authenticator
	Ledger       *idempotency.Ledger
	Validator    *schema.Validator
	Audit        *audit.Log
	Log          *slog.Logger
	MaxBodyBytes int64
}

// Pipeline runs a request through authenticate, validate, decode,
// idempotency lookup, execute, store and audit, in that order.
type Pipeline struct {
	auth      *auth.Authenticator
	ledger    *idempotency.Ledger
	validator *schema.Validator
	audit     *audit.Log
	log       *slog.Logger
	maxBody   int64
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Pipeline{
		auth:      cfg.Auth,
		ledger:    cfg.Ledger,
		validator: cfg.Validator,
		audit:     cfg.Audit,
		log:       cfg.Log,
		maxBody:   maxBody,
	}
}

type call struct {
	w         http.ResponseWriter
	r         *http.Request
	a         Action
	idemKey   string
	requestID string
	start     time.Time
	entry     audit.Entry
}

func (p *Pipeline) Do(w http.ResponseWriter, r *http.Request, a Action) {
	c := &call{
		w:         w,
		r:         r,
		a:         a,
		idemKey:   r.Header.Get(HeaderIdempotencyKey),
		requestID: r.Header.Get(HeaderRequestID),
		start:     time.Now(),
	}
	c.entry = audit.Entry{
		SessionID:      a.SessionID,
		Intent:         a.Intent,
		ActionType:     a.ActionType,
		Input:          a.Input,
		IdempotencyKey: c.idemKey,
	}
	if c.entry.IdempotencyKey == "" {
		c.entry.IdempotencyKey = r.URL.Query().Get("idempotency_key")
	}
	ctx := r.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.maxBody))
	if err != nil {
		p.reject(ctx, c, apperr.New(apperr.CodeMalformedJSON, "Request body could not be read"), false)
		return
	}

	if !a.Public {
		if err := p.auth.Authenticate(r.Header, raw); err != nil {
			p.reject(ctx, c, err, false)
			return
		}
	}

	var payload any = map[string]any{}
	if a.Request != nil {
		if !json.Valid(raw) {
			p.reject(ctx, c, apperr.New(apperr.CodeMalformedJSON, "Request body is not valid JSON"), false)
			return
		}
		c.entry.Input = json.RawMessage(raw)
		if a.Redact != nil {
			c.entry.Input = a.Redact(raw)
		}

		if a.Schema != "" {
			if err := p.validator.Validate(a.Schema, raw); err != nil {
				p.reject(ctx, c, err, true)
				return
			}
		}
		if err := json.Unmarshal(raw, a.Request); err != nil {
			p.reject(ctx, c, apperr.New(apperr.CodeMalformedJSON, "Request body does not match the expected shape"), true)
			return
		}
		if d, ok := a.Request.(Defaulter); ok {
			d.ApplyDefaults()
		}
		payload = a.Request
	}

	claimed := false
	var hash string
	if c.idemKey != "" && a.Route != "" {
		hash, err = canonical.Hash(payload)
		if err != nil {
			p.fail(ctx, c, err)
			return
		}

		res, err := p.ledger.Lookup(ctx, a.Route, c.idemKey, hash, c.requestID)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			p.reject(ctx, c, apperr.New(apperr.CodeRequestInProgress,
				"A request with this Idempotency-Key is still being processed").
				WithParam("$.headers.Idempotency-Key"), false)
			return
		case err != nil:
			p.fail(ctx, c, err)
			return
		}

		switch res.Outcome {
		case idempotency.Conflict:
			c.requestID = res.Record.RequestID
			p.reject(ctx, c, apperr.New(apperr.CodeRequestNotIdempotent,
				"Idempotency key reused with different request payload").
				WithParam("$.headers.Idempotency-Key"), false)
			return
		case idempotency.Replay:
			p.replay(ctx, c, res.Record)
			return
		}
		claimed = true
	}

	stored := false
	if claimed {
		defer func() {
			if !stored {
				if err := p.ledger.Release(context.WithoutCancel(ctx), a.Route, c.idemKey); err != nil {
					p.log.ErrorContext(ctx, "failed to release idempotency key",
						slog.String("route", a.Route), slog.String("error", err.Error()))
				}
			}
		}()
	}

	status, body, resultRef, execErr := a.Exec(ctx)
	if execErr != nil {
		e := apperr.From(execErr)
		if _, ok := apperr.As(execErr); !ok {
			p.log.ErrorContext(ctx, "operation failed",
				slog.String("action", a.ActionType), slog.String("error", execErr.Error()))
		}
		status, body = e.HTTPStatus(), apperr.Envelope{Error: e}
	}

	out, err := json.Marshal(body)
	if err != nil {
		p.fail(ctx, c, err)
		return
	}

	if claimed {
		// The response is recorded even if the client has gone, so its retry
		// replays instead of re-executing.
		if err := p.ledger.Store(context.WithoutCancel(ctx), a.Route, c.idemKey, c.requestID, hash, status, out); err != nil {
			p.log.ErrorContext(ctx, "failed to store idempotent response",
				slog.String("route", a.Route), slog.String("error", err.Error()))
		} else {
			stored = true
		}
	}

	echoHeaders(c.w, c.idemKey, c.requestID)
	writeBody(c.w, status, out)

	c.entry.ResultRef = resultRef
	if c.entry.SessionID == "" {
		// Creates only learn their session id from the result.
		c.entry.SessionID = resultRef
	}
	c.entry.Outcome = audit.StatusSucceeded
	if execErr != nil {
		c.entry.Outcome = audit.StatusFailed
		c.entry.Error = string(apperr.From(execErr).Code)
	}
	p.record(ctx, c)
}

func (p *Pipeline) replay(ctx context.Context, c *call, rec *idempotency.Record) {
	echoHeaders(c.w, c.idemKey, rec.RequestID)
	writeBody(c.w, rec.StatusCode, rec.Body)

	c.entry.Outcome = audit.StatusSucceeded
	if rec.StatusCode >= http.StatusBadRequest {
		c.entry.Outcome = audit.StatusFailed
	}
	c.entry.PolicyChecks = []string{"idempotency_replay"}
	p.record(ctx, c)
}

// reject answers a request that failed verification before execution.
func (p *Pipeline) reject(ctx context.Context, c *call, err error, schemaInvalid bool) {
	e := apperr.From(err)
	echoHeaders(c.w, c.idemKey, c.requestID)
	RespondJSON(c.w, e.HTTPStatus(), apperr.Envelope{Error: e})

	c.entry.Outcome = audit.StatusRejected
	c.entry.Error = string(e.Code)
	c.entry.SchemaInvalid = schemaInvalid
	p.record(ctx, c)
}

// fail answers an infrastructure failure outside the operation itself.
func (p *Pipeline) fail(ctx context.Context, c *call, err error) {
	p.log.ErrorContext(ctx, "request pipeline failed",
		slog.String("action", c.a.ActionType), slog.String("error", err.Error()))
	echoHeaders(c.w, c.idemKey, c.requestID)
	RespondError(c.w, err)

	c.entry.Outcome = audit.StatusFailed
	c.entry.Error = string(apperr.CodeInternal)
	p.record(ctx, c)
}

func (p *Pipeline) record(ctx context.Context, c *call) {
	c.entry.Latency = time.Since(c.start)
	p.audit.Record(ctx, c.entry)
}
