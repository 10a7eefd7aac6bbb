// Package provider turns raw card credentials into delegated vault tokens.
// A Provider does the tokenization; the Tokenizer checks the request
// preconditions first so no provider ever sees an unusable request.
package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/shabazpatel/acp-infra/payment-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

const minCardNumberLength = 13

type Provider interface {
	// Name is reported by the health endpoint.
	Name() string
	Tokenize(ctx context.Context, req *domain.DelegatePaymentRequest) (*domain.DelegatePaymentResponse, error)
}

// VaultEntry is what a provider remembers about a token it issued.
type VaultEntry struct {
	Token     string           `json:"id"`
	Allowance domain.Allowance `json:"allowance"`
	Created   string           `json:"created"`
	Last4     string           `json:"payment_method_last4"`
}

// Vault is implemented by providers that can look their tokens up again.
type Vault interface {
	Lookup(token string) (*VaultEntry, bool)
}

type Tokenizer struct {
	provider Provider
	log      *slog.Logger
}

func NewTokenizer(p Provider, log *slog.Logger) *Tokenizer {
	return &Tokenizer{provider: p, log: log}
}

func (t *Tokenizer) ProviderName() string {
	return t.provider.Name()
}

// Tokenize validates the allowance and card, then asks the provider for a
// token. Provider failures surface as internal errors.
func (t *Tokenizer) Tokenize(ctx context.Context, req *domain.DelegatePaymentRequest) (*domain.DelegatePaymentResponse, error) {
	if req.Allowance.MaxAmount <= 0 {
		return nil, apperr.New(apperr.CodeInvalidAmount, "max_amount must be positive").
			WithParam("$.allowance.max_amount")
	}
	if len(req.PaymentMethod.Number) < minCardNumberLength {
		return nil, apperr.New(apperr.CodeInvalidCard, "Card number is too short").
			WithParam("$.payment_method.number")
	}

	start := time.Now()
	resp, err := t.provider.Tokenize(ctx, req)
	if err != nil {
		t.log.ErrorContext(ctx, "tokenization failed",
			slog.String("provider", t.provider.Name()),
			slog.String("error", err.Error()))
		return nil, apperr.Internal()
	}

	t.log.InfoContext(ctx, "payment credentials tokenized",
		slog.String("provider", t.provider.Name()),
		slog.String("last4", req.PaymentMethod.Last4()),
		slog.Int64("max_amount", req.Allowance.MaxAmount),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

// Lookup returns the vault entry for token when the provider keeps one.
func (t *Tokenizer) Lookup(token string) (*VaultEntry, error) {
	if v, ok := t.provider.(Vault); ok {
		if entry, ok := v.Lookup(token); ok {
			return entry, nil
		}
	}
	return nil, apperr.New(apperr.CodeTokenNotFound, "Vault token not found")
}

func withMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
