package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

type stubProducts map[string]*domain.Product

func (s stubProducts) Get(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrProductNotFound
}

type failingProducts struct{}

func (failingProducts) Get(context.Context, string) (*domain.Product, error) {
	return nil, errors.New("connection reset")
}

func newTestEngine(coupons ...Coupon) *Engine {
	products := stubProducts{
		"p1":   {ID: "p1", Price: 1000, InStock: true},
		"p2":   {ID: "p2", Price: 1001, InStock: true},
		"gone": {ID: "gone", Price: 500, InStock: false},
	}
	return NewEngine(products, DefaultTaxRate, coupons...)
}

func ptr(s string) *string { return &s }

func totalTypes(totals []domain.Total) []domain.TotalType {
	out := make([]domain.TotalType, 0, len(totals))
	for _, t := range totals {
		out = append(out, t.Type)
	}
	return out
}

func TestPrice_TwoUnits(t *testing.T) {
	e := newTestEngine()

	q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 2}}, nil, nil)
	require.NoError(t, err)

	require.Len(t, q.LineItems, 1)
	assert.Equal(t, domain.LineItem{
		ID:         "li_p1",
		Item:       domain.Item{ID: "p1", Quantity: 2},
		BaseAmount: 2000,
		Subtotal:   2000,
		Tax:        160,
		Total:      2160,
	}, q.LineItems[0])

	assert.Equal(t, int64(2000), q.Subtotal)
	assert.Equal(t, int64(160), q.Tax)
	assert.Equal(t, int64(2160), q.GrandTotal)
	assert.Nil(t, q.Discounts)
	assert.Equal(t, []domain.Total{
		{Type: domain.TotalTypeItemsBaseAmount, DisplayText: "Item(s) total", Amount: 2000},
		{Type: domain.TotalTypeSubtotal, DisplayText: "Subtotal", Amount: 2000},
		{Type: domain.TotalTypeTax, DisplayText: "Tax", Amount: 160},
		{Type: domain.TotalTypeTotal, DisplayText: "Total", Amount: 2160},
	}, q.Totals)
}

func TestPrice_TaxIsCeiled(t *testing.T) {
	e := newTestEngine()

	q, err := e.Price(context.Background(), []domain.Item{{ID: "p2", Quantity: 1}, {ID: "p1", Quantity: 1}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(81), q.LineItems[0].Tax)
	assert.Equal(t, int64(1082), q.LineItems[0].Total)
	assert.Equal(t, int64(2001), q.Subtotal)
	assert.Equal(t, int64(161), q.Tax)
	assert.Equal(t, []string{"li_p2", "li_p1"}, []string{q.LineItems[0].ID, q.LineItems[1].ID})
}

func TestPrice_Fulfillment(t *testing.T) {
	tests := []struct {
		option      string
		fulfillment int64
	}{
		{OptionStandard, 863},
		{OptionExpress, 1619},
	}

	for _, tt := range tests {
		t.Run(tt.option, func(t *testing.T) {
			e := newTestEngine()
			q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 2}}, ptr(tt.option), nil)
			require.NoError(t, err)

			assert.Equal(t, tt.fulfillment, q.Fulfillment)
			assert.Equal(t, 2160+tt.fulfillment, q.GrandTotal)
			assert.Equal(t, []domain.TotalType{
				domain.TotalTypeItemsBaseAmount,
				domain.TotalTypeSubtotal,
				domain.TotalTypeTax,
				domain.TotalTypeFulfillment,
				domain.TotalTypeTotal,
			}, totalTypes(q.Totals))
			assert.Equal(t, "Shipping", q.Totals[3].DisplayText)
		})
	}
}

func TestFulfillmentOptions(t *testing.T) {
	e := newTestEngine()
	opts := e.FulfillmentOptions()
	require.Len(t, opts, 2)

	assert.Equal(t, domain.FulfillmentOption{
		Type: "shipping", ID: "ship_std", Title: "Standard Shipping", Subtitle: "5-7 business days",
		Carrier: "UPS", Subtotal: 799, Tax: 64, Total: 863,
	}, opts[0])
	assert.Equal(t, domain.FulfillmentOption{
		Type: "shipping", ID: "ship_exp", Title: "Express Shipping", Subtitle: "2-3 business days",
		Carrier: "FedEx", Subtotal: 1499, Tax: 120, Total: 1619,
	}, opts[1])

	opts[0].Total = 0
	assert.Equal(t, int64(863), e.FulfillmentOptions()[0].Total)
}

func TestPrice_UnknownOption(t *testing.T) {
	e := newTestEngine()
	_, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 1}}, ptr("ship_moon"), nil)

	e2, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidFulfillmentOption, e2.Code)
	assert.Equal(t, "$.fulfillment_option_id", e2.Param)
	assert.Equal(t, 400, e2.HTTPStatus())

	assert.NoError(t, e.ValidateOption("ship_std"))
}

func TestPrice_OutOfStock(t *testing.T) {
	for _, id := range []string{"missing", "gone"} {
		t.Run(id, func(t *testing.T) {
			e := newTestEngine()
			_, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 1}, {ID: id, Quantity: 1}}, nil, nil)

			e2, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.CodeOutOfStock, e2.Code)
			assert.Equal(t, apperr.TypeInvalidRequest, e2.Type)
			assert.Equal(t, "$.items", e2.Param)
			assert.Equal(t, 409, e2.HTTPStatus())
		})
	}
}

func TestPrice_CatalogFailureIsInternal(t *testing.T) {
	e := NewEngine(failingProducts{}, DefaultTaxRate)
	_, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 1}}, nil, nil)

	require.Error(t, err)
	_, ok := apperr.As(err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPrice_Coupons(t *testing.T) {
	e := newTestEngine(
		Coupon{Code: "SAVE10", Name: "10% off", PercentOff: 10},
		Coupon{Code: "FIVE", Name: "$5 off", AmountOff: 500},
		Coupon{Code: "HUGE", Name: "Everything", AmountOff: 1_000_000},
	)

	t.Run("percent and amount", func(t *testing.T) {
		q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 2}}, nil, []string{"save10", "FIVE", "BOGUS"})
		require.NoError(t, err)

		require.NotNil(t, q.Discounts)
		require.Len(t, q.Discounts.Applied, 2)
		assert.Equal(t, int64(200), q.Discounts.Applied[0].Amount)
		assert.Equal(t, int64(500), q.Discounts.Applied[1].Amount)
		assert.Equal(t, []domain.RejectedDiscount{{Code: "BOGUS", Reason: "invalid_code", Message: "Code BOGUS is not valid"}}, q.Discounts.Rejected)

		assert.Equal(t, int64(700), q.Discount)
		assert.Equal(t, int64(2000+160-700), q.GrandTotal)
		assert.Equal(t, []domain.TotalType{
			domain.TotalTypeItemsBaseAmount,
			domain.TotalTypeSubtotal,
			domain.TotalTypeTax,
			domain.TotalTypeDiscount,
			domain.TotalTypeTotal,
		}, totalTypes(q.Totals))
	})

	t.Run("capped at subtotal", func(t *testing.T) {
		q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 1}}, nil, []string{"FIVE", "HUGE", "huge"})
		require.NoError(t, err)

		require.Len(t, q.Discounts.Applied, 2)
		assert.Equal(t, int64(500), q.Discounts.Applied[0].Amount)
		assert.Equal(t, int64(500), q.Discounts.Applied[1].Amount)
		assert.Equal(t, int64(1000), q.Discount)
		assert.Equal(t, int64(80), q.GrandTotal)
	})

	t.Run("percent rounds down", func(t *testing.T) {
		q, err := e.Price(context.Background(), []domain.Item{{ID: "p2", Quantity: 1}}, nil, []string{"SAVE10"})
		require.NoError(t, err)
		assert.Equal(t, int64(100), q.Discount)
	})

	t.Run("only rejected codes", func(t *testing.T) {
		q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 1}}, nil, []string{"NOPE"})
		require.NoError(t, err)
		assert.Empty(t, q.Discounts.Applied)
		assert.Len(t, q.Discounts.Rejected, 1)
		assert.Equal(t, int64(1080), q.GrandTotal)
		assert.NotContains(t, totalTypes(q.Totals), domain.TotalTypeDiscount)
	})
}

func TestPrice_CustomTaxRate(t *testing.T) {
	e := NewEngine(stubProducts{"p1": {ID: "p1", Price: 999, InStock: true}}, decimal.RequireFromString("0.0725"))
	q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: 3}}, nil, nil)
	require.NoError(t, err)

	// 2997 × 0.0725 = 217.2825
	assert.Equal(t, int64(218), q.Tax)
}

func TestSimulate(t *testing.T) {
	e := newTestEngine()
	subtotal, tax, total, err := e.Simulate(&domain.Product{ID: "p1", Price: 1000}, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), subtotal)
	assert.Equal(t, int64(240), tax)
	assert.Equal(t, int64(3240), total)
}

func TestSimulate_AmountTooLarge(t *testing.T) {
	e := newTestEngine()

	_, _, _, err := e.Simulate(&domain.Product{ID: "p1", Price: 1000}, math.MaxInt64/1000+1)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeInvalidField, ae.Code)
	assert.Equal(t, "$.quantity", ae.Param)
}

func TestPrice_AmountTooLarge(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.Item
	}{
		{"line overflows int64", []domain.Item{{ID: "p1", Quantity: math.MaxInt64/1000 + 1}}},
		{"line above limit", []domain.Item{{ID: "p1", Quantity: MaxAmount/1000 + 1}}},
		{"subtotal above limit", []domain.Item{{ID: "p1", Quantity: MaxAmount / 1000}, {ID: "p2", Quantity: 1}}},
		{"merged quantity overflows", []domain.Item{{ID: "p1", Quantity: math.MaxInt64}, {ID: "p1", Quantity: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()

			q, err := e.Price(context.Background(), tt.items, nil, nil)

			assert.Nil(t, q)
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.CodeInvalidField, ae.Code)
			assert.Equal(t, "$.items", ae.Param)
			assert.Equal(t, 400, ae.HTTPStatus())
		})
	}
}

func TestPrice_AtAmountLimit(t *testing.T) {
	e := newTestEngine()

	q, err := e.Price(context.Background(), []domain.Item{{ID: "p1", Quantity: MaxAmount / 1000}}, ptr(OptionExpress), nil)
	require.NoError(t, err)

	assert.Equal(t, MaxAmount, q.Subtotal)
	assert.Equal(t, MaxAmount+q.Tax+q.Fulfillment, q.GrandTotal)
	assert.Positive(t, q.GrandTotal)
}

func TestPrice_MergesRepeatedItems(t *testing.T) {
	e := newTestEngine()

	q, err := e.Price(context.Background(), []domain.Item{
		{ID: "p2", Quantity: 1},
		{ID: "p1", Quantity: 1},
		{ID: "p2", Quantity: 2},
	}, nil, nil)
	require.NoError(t, err)

	require.Len(t, q.LineItems, 2)
	assert.Equal(t, "li_p2", q.LineItems[0].ID)
	assert.Equal(t, domain.Item{ID: "p2", Quantity: 3}, q.LineItems[0].Item)
	assert.Equal(t, int64(3003), q.LineItems[0].BaseAmount)
	assert.Equal(t, "li_p1", q.LineItems[1].ID)
	assert.Equal(t, int64(4003), q.Subtotal)
}
