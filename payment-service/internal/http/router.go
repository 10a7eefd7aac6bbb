// Package http exposes the delegated payment API of the PSP.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shabazpatel/acp-infra/pkg/acphttp"
)

const serviceName = "psp"

func NewRouter(payments *PaymentHandler, log *slog.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(acphttp.RequestLogger(log))
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/health", payments.Health)

	r.Route("/agentic_commerce", func(r chi.Router) {
		r.Post("/delegate_payment", payments.DelegatePayment)
		r.Get("/vault_tokens/{id}", payments.GetVaultToken)
	})

	return otelhttp.NewHandler(r, "payment-service")
}

// GET /health
func (h *PaymentHandler) Health(w http.ResponseWriter, _ *http.Request) {
	acphttp.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"service":  serviceName,
		"provider": h.tokenizer.ProviderName(),
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
