package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

func TestSearchProducts(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.SearchProducts(context.Background(), catalog.Query{Text: "sofa"})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "p3", res.Products[0].ID)
	assert.Equal(t, "sofa", res.Query)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.svc.GetProduct(context.Background(), "p4")
	require.NoError(t, err)
	assert.Equal(t, "Brass Floor Lamp", p.Name)

	_, err = f.svc.GetProduct(context.Background(), "nope")
	requireCode(t, err, apperr.CodeProductNotFound, 404)
}

func TestGetRatings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.svc.GetRatings(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 4.1, r.AverageRating)
	assert.Equal(t, int64(38), r.RatingCount)

	_, err = f.svc.GetRatings(ctx, "p3")
	requireCode(t, err, apperr.CodeRatingsUnavailable, 404)

	_, err = f.svc.GetRatings(ctx, "nope")
	requireCode(t, err, apperr.CodeProductNotFound, 404)
}

func TestCompareProducts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.CompareProducts(ctx, &domain.CompareProductsRequest{ProductIDs: []string{"p1", "ghost", "p3"}})
	require.NoError(t, err)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "p1", resp.Products[0].ID)
	assert.NotNil(t, resp.Products[0].Rating)
	assert.Nil(t, resp.Products[1].Rating)

	_, err = f.svc.CompareProducts(ctx, &domain.CompareProductsRequest{ProductIDs: []string{"p1", "ghost"}})
	e := requireCode(t, err, apperr.CodeInsufficientProducts, 422)
	assert.Equal(t, "$.product_ids", e.Param)
}

func TestSimulatePurchase(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp, err := f.svc.SimulatePurchase(ctx, &domain.PurchaseSimulateRequest{ProductID: "p2", Quantity: 3})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.SimulationID, "sim_"))
	assert.Equal(t, int64(7497), resp.Subtotal)
	assert.Equal(t, int64(600), resp.Tax)
	assert.Equal(t, int64(8097), resp.Total)
	assert.Equal(t, "usd", resp.Currency)

	// out of stock products can still be quoted
	_, err = f.svc.SimulatePurchase(ctx, &domain.PurchaseSimulateRequest{ProductID: "p5", Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.SimulatePurchase(ctx, &domain.PurchaseSimulateRequest{ProductID: "nope", Quantity: 1})
	requireCode(t, err, apperr.CodeProductNotFound, 404)
}
