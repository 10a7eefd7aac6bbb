package idempotency

import (
	"context"
	"fmt"
	"time"
)

type Outcome int

const (
	// Miss means the caller claimed the key and must Store or Release.
	Miss Outcome = iota
	// Replay means a completed record with the same payload exists.
	Replay
	// Conflict means the key was used with a different payload.
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case Replay:
		return "replay"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	// Record is the stored record for Replay and Conflict.
	Record *Record
}

type Ledger struct {
	store        Store
	pollInterval time.Duration
	now          func() time.Time
}

type LedgerOption func(*Ledger)

// WithPollInterval sets how often a retry re-checks a key that another
// request is still executing. Default: 25ms.
func WithPollInterval(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.pollInterval = d }
}

func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:        store,
		pollInterval: 25 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup claims (route, key) for payloadHash. A pending record with the
// same payload is waited on until it completes or is released; when ctx
// ends first Lookup returns ErrInProgress.
func (l *Ledger) Lookup(ctx context.Context, route, key, payloadHash, requestID string) (Result, error) {
	claim := &Record{
		Route:       route,
		Key:         key,
		PayloadHash: payloadHash,
		RequestID:   requestID,
		CreatedAt:   l.now().UTC(),
	}

	for {
		existing, claimed, err := l.store.Claim(ctx, claim)
		if err != nil {
			return Result{}, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if claimed {
			return Result{Outcome: Miss}, nil
		}
		if existing.PayloadHash != payloadHash {
			return Result{Outcome: Conflict, Record: existing}, nil
		}
		if existing.Completed {
			return Result{Outcome: Replay, Record: existing}, nil
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ErrInProgress
		case <-timer.C:
		}
	}
}

// Store completes a claimed key with the response that was sent.
func (l *Ledger) Store(ctx context.Context, route, key, requestID, payloadHash string, status int, body []byte) error {
	rec := &Record{
		Route:       route,
		Key:         key,
		PayloadHash: payloadHash,
		RequestID:   requestID,
		StatusCode:  status,
		Body:        body,
		Completed:   true,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.store.Complete(ctx, rec); err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}
	return nil
}

// Release gives up a claim without a response.
func (l *Ledger) Release(ctx context.Context, route, key string) error {
	if err := l.store.Release(ctx, route, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
