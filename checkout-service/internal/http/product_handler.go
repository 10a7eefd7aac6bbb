package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/service"
	"github.com/shabazpatel/acp-infra/pkg/acphttp"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/schema"
)

// Audit session ids for actions that are not tied to a checkout session.
const (
	searchSessionID   = "search-session"
	compareSessionID  = "compare-session"
	simulateSessionID = "purchase-sim-session"
)

// ProductHandler serves the unauthenticated browsing endpoints. They are
// audited but never deduplicated.
type ProductHandler struct {
	svc      *service.CheckoutService
	pipeline *acphttp.Pipeline
	timeout  time.Duration
}

func NewProductHandler(svc *service.CheckoutService, pipeline *acphttp.Pipeline, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		svc:      svc,
		pipeline: pipeline,
		timeout:  timeout,
	}
}

// GET /products/search
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, perr := parseSearchQuery(r.URL.Query())
	input := map[string]any{
		"q":         q.Text,
		"limit":     q.Limit,
		"category":  nilIfEmpty(q.Category),
		"price_min": q.PriceMin,
		"price_max": q.PriceMax,
	}
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentSearch,
		ActionType: audit.ActionSearch,
		SessionID:  searchSessionID,
		Public:     true,
		Input:      input,
		Exec: func(ctx context.Context) (int, any, string, error) {
			if perr != nil {
				return 0, nil, "", perr
			}
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			res, err := h.svc.SearchProducts(ctx, q)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, res, "search", nil
		},
	})
}

// GET /products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentSearch,
		ActionType: audit.ActionProductGet,
		SessionID:  searchSessionID,
		Public:     true,
		Input:      map[string]any{"product_id": id},
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			p, err := h.svc.GetProduct(ctx, id)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, p, p.ID, nil
		},
	})
}

// GET /ratings/{id}
func (h *ProductHandler) GetRatings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentSearch,
		ActionType: audit.ActionRatingsGet,
		SessionID:  searchSessionID,
		Public:     true,
		Input:      map[string]any{"product_id": id},
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			rating, err := h.svc.GetRatings(ctx, id)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, rating, id, nil
		},
	})
}

// POST /compare
func (h *ProductHandler) Compare(w http.ResponseWriter, r *http.Request) {
	req := &domain.CompareProductsRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentCompare,
		ActionType: audit.ActionCompare,
		SessionID:  compareSessionID,
		Public:     true,
		Schema:     schema.CompareProducts,
		Request:    req,
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			resp, err := h.svc.CompareProducts(ctx, req)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, resp, "compare", nil
		},
	})
}

// POST /purchase/simulate
func (h *ProductHandler) SimulatePurchase(w http.ResponseWriter, r *http.Request) {
	req := &domain.PurchaseSimulateRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionPurchaseSimulate,
		SessionID:  simulateSessionID,
		Public:     true,
		Schema:     schema.PurchaseSimulate,
		Request:    req,
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			resp, err := h.svc.SimulatePurchase(ctx, req)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, resp, resp.SimulationID, nil
		},
	})
}

// parseSearchQuery reads the search parameters. The returned query is
// usable for auditing even when the error is non-nil.
func parseSearchQuery(v url.Values) (catalog.Query, error) {
	q := catalog.Query{
		Text:     strings.TrimSpace(v.Get("q")),
		Category: strings.TrimSpace(v.Get("category")),
		Limit:    catalog.DefaultLimit,
	}
	if q.Text == "" {
		return q, invalidParam("q", "Query parameter 'q' is required")
	}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > catalog.MaxLimit {
			return q, invalidParam("limit", "Query parameter 'limit' must be an integer between 1 and 50")
		}
		q.Limit = n
	}

	for _, p := range []struct {
		name string
		dst  **int64
	}{{"price_min", &q.PriceMin}, {"price_max", &q.PriceMax}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, invalidParam(p.name, "Query parameter '"+p.name+"' must be an integer amount in minor units")
		}
		*p.dst = &n
	}
	return q, nil
}

func invalidParam(name, message string) *apperr.Error {
	return apperr.New(apperr.CodeInvalidField, message).WithParam("$.query." + name)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
