// Package http exposes the seller over the Agentic Commerce Protocol:
// checkout session endpoints plus the product browsing endpoints agents
// use before they create a session.
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

const serviceName = "seller"

// NewRouter mounts both handlers. requestTimeout bounds the whole request,
// including authentication and the idempotency ledger.
func NewRouter(checkout *CheckoutHandler, products *ProductHandler, log *slog.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(acphttp.RequestLogger(log))
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/health", Health)

	r.Route("/checkout_sessions", func(r chi.Router) {
		r.Post("/", checkout.CreateSession)
		r.Get("/{id}", checkout.GetSession)
		r.Post("/{id}", checkout.UpdateSession)
		r.Post("/{id}/complete", checkout.CompleteSession)
		r.Post("/{id}/cancel", checkout.CancelSession)
	})

	r.Get("/products/search", products.Search)
	r.Get("/products/{id}", products.GetProduct)
	r.Get("/ratings/{id}", products.GetRatings)
	r.Post("/compare", products.Compare)
	r.Post("/purchase/simulate", products.SimulatePurchase)

	return otelhttp.NewHandler(r, "checkout-service")
}

// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	acphttp.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
