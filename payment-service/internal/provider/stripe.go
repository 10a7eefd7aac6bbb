package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/shabazpatel/acp-infra/payment-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/circuitbreaker"
)

// SharedTokenPrefix is prepended to the Stripe PaymentMethod id. The checkout
// service strips it again before confirming a PaymentIntent.
const SharedTokenPrefix = "spt_"

const (
	defaultExpMonth = "12"
	defaultExpYear  = "2027"
	defaultCVC      = "123"
)

// StripeProvider creates a Stripe card PaymentMethod per delegation.
type StripeProvider struct {
	api     *client.API
	breaker *circuitbreaker.Breaker[*stripe.PaymentMethod]
	now     func() time.Time
}

func NewStripeProvider(api *client.API, log *slog.Logger) *StripeProvider {
	return &StripeProvider{
		api:     api,
		breaker: circuitbreaker.New[*stripe.PaymentMethod](circuitbreaker.DefaultSettings("stripe-payment-methods"), log),
		now:     time.Now,
	}
}

func NewStripeClient(key string) *client.API {
	return client.New(key, nil)
}

func (s *StripeProvider) Name() string { return "stripe" }

func (s *StripeProvider) Tokenize(ctx context.Context, req *domain.DelegatePaymentRequest) (*domain.DelegatePaymentResponse, error) {
	card := req.PaymentMethod
	month, err := strconv.ParseInt(valueOr(card.ExpMonth, defaultExpMonth), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("exp_month: %w", err)
	}
	year, err := strconv.ParseInt(valueOr(card.ExpYear, defaultExpYear), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("exp_year: %w", err)
	}
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(month),
			ExpYear:  stripe.Int64(year),
			CVC:      stripe.String(valueOr(card.CVC, defaultCVC)),
		},
	}
	params.Context = ctx

	pm, err := s.breaker.Execute(func() (*stripe.PaymentMethod, error) {
		return s.api.PaymentMethods.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe payment method: %w", err)
	}

	base := map[string]any{
		"source":       "stripe_delegate_payment",
		"stripe_pm_id": pm.ID,
	}
	if req.Allowance.MerchantID != nil {
		base["merchant_id"] = *req.Allowance.MerchantID
	}
	return &domain.DelegatePaymentResponse{
		ID:       SharedTokenPrefix + pm.ID,
		Created:  s.now().UTC().Format(time.RFC3339),
		Metadata: withMetadata(base, req.Metadata),
	}, nil
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
