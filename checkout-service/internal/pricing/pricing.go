// Package pricing computes line items, fulfillment options, discounts and
// totals for a checkout session. All amounts are minor units; every
// ceiling and floor is taken on an exact decimal product.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

const (
	OptionStandard = "ship_std"
	OptionExpress  = "ship_exp"

	RejectInvalidCode = "invalid_code"
)

var DefaultTaxRate = decimal.RequireFromString("0.08")

// MaxAmount bounds every base amount and the session subtotal. Tax,
// fulfillment and the grand total stay well inside int64 below it.
const MaxAmount int64 = 1_000_000_000_000

var maxAmount = decimal.NewFromInt(MaxAmount)

// ProductSource is the part of the catalog pricing needs.
type ProductSource interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type Coupon struct {
	Code       string
	Name       string
	PercentOff float64
	AmountOff  int64
}

type shippingRate struct {
	id, title, subtitle, carrier string
	subtotal                     int64
}

var shippingRates = []shippingRate{
	{OptionStandard, "Standard Shipping", "5-7 business days", "UPS", 799},
	{OptionExpress, "Express Shipping", "2-3 business days", "FedEx", 1499},
}

type Engine struct {
	products ProductSource
	taxRate  decimal.Decimal
	coupons  map[string]Coupon
	options  []domain.FulfillmentOption
}

func NewEngine(products ProductSource, taxRate decimal.Decimal, coupons ...Coupon) *Engine {
	e := &Engine{
		products: products,
		taxRate:  taxRate,
		coupons:  make(map[string]Coupon, len(coupons)),
	}
	for _, c := range coupons {
		e.coupons[strings.ToUpper(c.Code)] = c
	}
	for _, r := range shippingRates {
		tax := e.Tax(r.subtotal)
		e.options = append(e.options, domain.FulfillmentOption{
			Type:     "shipping",
			ID:       r.id,
			Title:    r.title,
			Subtitle: r.subtitle,
			Carrier:  r.carrier,
			Subtotal: r.subtotal,
			Tax:      tax,
			Total:    r.subtotal + tax,
		})
	}
	return e
}

// Tax returns ceil(amount × rate).
func (e *Engine) Tax(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(e.taxRate).Ceil().IntPart()
}

// FulfillmentOptions returns a fresh copy of the offered options.
func (e *Engine) FulfillmentOptions() []domain.FulfillmentOption {
	out := make([]domain.FulfillmentOption, len(e.options))
	copy(out, e.options)
	return out
}

func (e *Engine) option(id string) (domain.FulfillmentOption, bool) {
	for _, o := range e.options {
		if o.ID == id {
			return o, true
		}
	}
	return domain.FulfillmentOption{}, false
}

// ValidateOption reports invalid_fulfillment_option for an unknown id.
func (e *Engine) ValidateOption(id string) error {
	if _, ok := e.option(id); !ok {
		return apperr.Newf(apperr.CodeInvalidFulfillmentOption, "Unknown fulfillment option %q", id).
			WithParam("$.fulfillment_option_id")
	}
	return nil
}

type Quote struct {
	LineItems          []domain.LineItem
	FulfillmentOptions []domain.FulfillmentOption
	Totals             []domain.Total
	Discounts          *domain.Discounts
	Subtotal           int64
	Tax                int64
	Fulfillment        int64
	Discount           int64
	GrandTotal         int64
}

// Price runs a full pricing pass. Repeated item ids are merged into one line
// in first-seen order. Any missing or out-of-stock product fails the whole
// pass with out_of_stock.
func (e *Engine) Price(ctx context.Context, items []domain.Item, optionID *string, codes []string) (*Quote, error) {
	items, err := mergeItems(items)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		LineItems:          make([]domain.LineItem, 0, len(items)),
		FulfillmentOptions: e.FulfillmentOptions(),
	}

	for _, item := range items {
		product, err := e.products.Get(ctx, item.ID)
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			return nil, apperr.Newf(apperr.CodeOutOfStock, "Product %s is not available", item.ID).WithParam("$.items")
		case err != nil:
			return nil, fmt.Errorf("failed to look up product %s: %w", item.ID, err)
		case !product.InStock:
			return nil, apperr.Newf(apperr.CodeOutOfStock, "Product %s is out of stock", item.ID).WithParam("$.items")
		}

		base, err := extend(product.Price, item.Quantity, "$.items")
		if err != nil {
			return nil, err
		}
		if q.Subtotal > MaxAmount-base {
			return nil, amountTooLarge("$.items")
		}
		tax := e.Tax(base)
		q.LineItems = append(q.LineItems, domain.LineItem{
			ID:         "li_" + product.ID,
			Item:       domain.Item{ID: product.ID, Quantity: item.Quantity},
			BaseAmount: base,
			Subtotal:   base,
			Tax:        tax,
			Total:      base + tax,
		})
		q.Subtotal += base
	}

	q.Tax = e.Tax(q.Subtotal)

	if optionID != nil {
		opt, ok := e.option(*optionID)
		if !ok {
			return nil, e.ValidateOption(*optionID)
		}
		q.Fulfillment = opt.Total
	}

	if len(codes) > 0 {
		q.Discounts = e.applyCoupons(codes, q.Subtotal)
		for _, d := range q.Discounts.Applied {
			q.Discount += d.Amount
		}
	}

	q.GrandTotal = q.Subtotal + q.Tax + q.Fulfillment - q.Discount

	q.Totals = []domain.Total{
		{Type: domain.TotalTypeItemsBaseAmount, DisplayText: "Item(s) total", Amount: q.Subtotal},
		{Type: domain.TotalTypeSubtotal, DisplayText: "Subtotal", Amount: q.Subtotal},
		{Type: domain.TotalTypeTax, DisplayText: "Tax", Amount: q.Tax},
	}
	if q.Fulfillment != 0 {
		q.Totals = append(q.Totals, domain.Total{Type: domain.TotalTypeFulfillment, DisplayText: "Shipping", Amount: q.Fulfillment})
	}
	if q.Discount != 0 {
		q.Totals = append(q.Totals, domain.Total{Type: domain.TotalTypeDiscount, DisplayText: "Discount", Amount: q.Discount})
	}
	q.Totals = append(q.Totals, domain.Total{Type: domain.TotalTypeTotal, DisplayText: "Total", Amount: q.GrandTotal})

	return q, nil
}

// applyCoupons resolves codes in request order. The running discount never
// exceeds the subtotal.
func (e *Engine) applyCoupons(codes []string, subtotal int64) *domain.Discounts {
	d := &domain.Discounts{
		Codes:    codes,
		Applied:  []domain.AppliedDiscount{},
		Rejected: []domain.RejectedDiscount{},
	}
	seen := make(map[string]bool, len(codes))
	remaining := subtotal

	for _, code := range codes {
		key := strings.ToUpper(strings.TrimSpace(code))
		if seen[key] {
			continue
		}
		seen[key] = true

		c, ok := e.coupons[key]
		if !ok {
			d.Rejected = append(d.Rejected, domain.RejectedDiscount{
				Code:    code,
				Reason:  RejectInvalidCode,
				Message: fmt.Sprintf("Code %s is not valid", code),
			})
			continue
		}

		amount := c.AmountOff
		if c.PercentOff > 0 {
			amount = decimal.NewFromInt(subtotal).
				Mul(decimal.NewFromFloat(c.PercentOff)).
				Div(decimal.NewFromInt(100)).
				Floor().IntPart()
		}
		amount = min(amount, remaining)
		remaining -= amount

		d.Applied = append(d.Applied, domain.AppliedDiscount{
			ID:          "disc_" + strings.ToLower(key),
			Code:        code,
			Coupon:      c.toDomain(),
			Amount:      amount,
			Automatic:   false,
			Allocations: []domain.DiscountAllocation{{Path: "$.totals", Amount: amount}},
		})
	}
	return d
}

func (c Coupon) toDomain() *domain.Coupon {
	out := &domain.Coupon{ID: strings.ToLower(c.Code), Name: c.Name}
	if c.PercentOff > 0 {
		pct := c.PercentOff
		out.PercentOff = &pct
	} else {
		amt := c.AmountOff
		out.AmountOff = &amt
		out.Currency = domain.DefaultCurrency
	}
	return out
}

// Simulate prices quantity units of p the way a one-line session would,
// without a stock check or fulfillment.
func (e *Engine) Simulate(p *domain.Product, quantity int64) (subtotal, tax, total int64, err error) {
	subtotal, err = extend(p.Price, quantity, "$.quantity")
	if err != nil {
		return 0, 0, 0, err
	}
	tax = e.Tax(subtotal)
	return subtotal, tax, subtotal + tax, nil
}

// extend returns price × quantity, or invalid_field at param when the product
// exceeds MaxAmount.
func extend(price, quantity int64, param string) (int64, error) {
	amount := decimal.NewFromInt(price).Mul(decimal.NewFromInt(quantity))
	if amount.GreaterThan(maxAmount) {
		return 0, amountTooLarge(param)
	}
	return amount.IntPart(), nil
}

func amountTooLarge(param string) error {
	return apperr.Newf(apperr.CodeInvalidField, "Amount exceeds the maximum of %d", MaxAmount).WithParam(param)
}

func mergeItems(items []domain.Item) ([]domain.Item, error) {
	out := make([]domain.Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		i, ok := index[it.ID]
		if !ok {
			index[it.ID] = len(out)
			out = append(out, it)
			continue
		}
		if it.Quantity > math.MaxInt64-out[i].Quantity {
			return nil, amountTooLarge("$.items")
		}
		out[i].Quantity += it.Quantity
	}
	return out, nil
}
