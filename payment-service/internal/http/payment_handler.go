package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shabazpatel/acp-infra/payment-service/domain"
	"github.com/shabazpatel/acp-infra/payment-service/internal/provider"
	"github.com/shabazpatel/acp-infra/pkg/acphttp"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/schema"
)

const delegateRoute = "POST:/agentic_commerce/delegate_payment"

var redactCard = acphttp.RedactFields(
	"payment_method.number",
	"payment_method.cvc",
	"payment_method.exp_month",
	"payment_method.exp_year",
)

type PaymentHandler struct {
	tokenizer *provider.Tokenizer
	pipeline  *acphttp.Pipeline
	timeout   time.Duration
}

func NewPaymentHandler(tokenizer *provider.Tokenizer, pipeline *acphttp.Pipeline, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		tokenizer: tokenizer,
		pipeline:  pipeline,
		timeout:   timeout,
	}
}

// POST /agentic_commerce/delegate_payment
func (h *PaymentHandler) DelegatePayment(w http.ResponseWriter, r *http.Request) {
	req := &domain.DelegatePaymentRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Route:      delegateRoute,
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionDelegatePayment,
		Schema:     schema.DelegatePayment,
		Request:    req,
		Redact:     redactCard,
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			resp, err := h.tokenizer.Tokenize(ctx, req)
			if err != nil {
				return 0, nil, "", err
			}
			// The token never reaches the audit log; the delegation is
			// filed under the checkout session it was issued for.
			return http.StatusCreated, resp, sessionOf(req), nil
		},
	})
}

// GET /agentic_commerce/vault_tokens/{id}
func (h *PaymentHandler) GetVaultToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionVaultTokenGet,
		Exec: func(context.Context) (int, any, string, error) {
			entry, err := h.tokenizer.Lookup(id)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, entry, "", nil
		},
	})
}

func sessionOf(req *domain.DelegatePaymentRequest) string {
	if req.Allowance.CheckoutSessionID == nil {
		return ""
	}
	return *req.Allowance.CheckoutSessionID
}
