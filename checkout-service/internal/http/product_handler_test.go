package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
	"github.com/shabazpatel/acp-infra/pkg/audit"
)

// publicRequest carries no protocol headers; browsing is unauthenticated.
func publicRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	return httptest.NewRequest(method, path, strings.NewReader(body))
}

func productIDs(products []domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodGet, "/health", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","service":"seller"}`, rr.Body.String())
}

func TestSearch(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodGet, "/products/search?q=sofa&idempotency_key=search-key", ""))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res domain.ProductSearchResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, []string{"p3"}, productIDs(res.Products))
	assert.Equal(t, "sofa", res.Query)

	events := s.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "search-session", events[0].SessionID)
	assert.Equal(t, audit.IntentSearch, events[0].Intent.Type)
	assert.Equal(t, "search-key", events[0].Action.IdempotencyKey)
	assert.Equal(t, "search", events[0].Execution.ResultRef)
	assert.Equal(t, "sofa", events[0].Action.Input["q"])
}

func TestSearch_Filters(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodGet, "/products/search?q=a&price_min=2000&price_max=20000&limit=2", ""))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res domain.ProductSearchResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.LessOrEqual(t, len(res.Products), 2)
	for _, p := range res.Products {
		assert.GreaterOrEqual(t, p.Price, int64(2000))
		assert.LessOrEqual(t, p.Price, int64(20000))
	}
}

func TestSearch_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		param string
	}{
		{"missing q", "", "$.query.q"},
		{"limit zero", "q=sofa&limit=0", "$.query.limit"},
		{"limit too large", "q=sofa&limit=51", "$.query.limit"},
		{"limit not a number", "q=sofa&limit=ten", "$.query.limit"},
		{"price not a number", "q=sofa&price_min=cheap", "$.query.price_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)

			rr := s.do(publicRequest(http.MethodGet, "/products/search?"+tt.query, ""))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			e := decodeError(t, rr)
			assert.Equal(t, apperr.CodeInvalidField, e.Code)
			assert.Equal(t, tt.param, e.Param)
		})
	}
}

func TestGetProduct(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodGet, "/products/p1", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	var p domain.Product
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "p1", p.ID)

	rr = s.do(publicRequest(http.MethodGet, "/products/nope", ""))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apperr.CodeProductNotFound, decodeError(t, rr).Code)
}

func TestGetRatings(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodGet, "/ratings/p1", ""))

	require.Equal(t, http.StatusOK, rr.Code)
	var rating domain.RatingSummary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rating))
	assert.Equal(t, "p1", rating.ProductID)
	assert.InDelta(t, 4.5, rating.AverageRating, 0.001)
	assert.Equal(t, int64(120), rating.RatingCount)
}

func TestCompare(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodPost, "/compare", `{"product_ids":["p1","p2","missing"]}`))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp domain.CompareProductsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "p1", resp.Products[0].ID)
	assert.Equal(t, "p2", resp.Products[1].ID)
}

func TestCompare_InsufficientProducts(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodPost, "/compare", `{"product_ids":["p1","missing"]}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, apperr.CodeInsufficientProducts, e.Code)
	assert.Equal(t, "$.product_ids", e.Param)

	events := s.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.StatusFailed, events[0].Execution.Status)
}

func TestCompare_TooManyIDs(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodPost, "/compare", `{"product_ids":["p1","p2","p3","p4","p5"]}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperr.CodeInvalidField, decodeError(t, rr).Code)
}

func TestSimulatePurchase(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodPost, "/purchase/simulate", `{"product_id":"p2","quantity":3}`))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp domain.PurchaseSimulateResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.SimulationID, "sim_"))
	assert.Equal(t, int64(7497), resp.Subtotal)
	assert.Equal(t, int64(600), resp.Tax)
	assert.Equal(t, int64(8097), resp.Total)

	events := s.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "purchase-sim-session", events[0].SessionID)
	assert.Equal(t, resp.SimulationID, events[0].Execution.ResultRef)
}

func TestSimulatePurchase_DefaultQuantity(t *testing.T) {
	s := newServer(t)

	rr := s.do(publicRequest(http.MethodPost, "/purchase/simulate", `{"product_id":"p1"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp domain.PurchaseSimulateResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.Quantity)
	assert.Equal(t, int64(1000), resp.Subtotal)
}
