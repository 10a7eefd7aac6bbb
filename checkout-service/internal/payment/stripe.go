package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/shabazpatel/acp-infra/pkg/circuitbreaker"
)

// SharedTokenPrefix marks tokens minted by the payment service's Stripe
// provider. The rest of the token is the Stripe PaymentMethod id.
const SharedTokenPrefix = "spt_"

// StripeAuthorizer confirms a PaymentIntent for the session total. Card
// errors are declines; everything else counts against the breaker.
type StripeAuthorizer struct {
	api     *client.API
	breaker *circuitbreaker.Breaker[*stripe.PaymentIntent]
	log     *slog.Logger
}

func NewStripeAuthorizer(api *client.API, log *slog.Logger) *StripeAuthorizer {
	settings := circuitbreaker.DefaultSettings("stripe-payment-intents")
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrDeclined)
	}
	return &StripeAuthorizer{
		api:     api,
		breaker: circuitbreaker.New[*stripe.PaymentIntent](settings, log),
		log:     log,
	}
}

// NewStripeClient builds a client for the given secret key.
func NewStripeClient(key string) *client.API {
	return client.New(key, nil)
}

func (a *StripeAuthorizer) Authorize(ctx context.Context, req Request) (*Authorization, error) {
	pm, ok := strings.CutPrefix(req.Token, SharedTokenPrefix)
	if !ok || pm == "" {
		return nil, ErrDeclined
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(pm),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	// A new token after a decline is a new attempt.
	params.SetIdempotencyKey(idempotencyKey(req.SessionID, pm))
	params.AddMetadata("checkout_session_id", req.SessionID)

	pi, err := a.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		pi, err := a.api.PaymentIntents.New(params)
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return nil, errors.Join(ErrDeclined, err)
		}
		return pi, err
	})
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			a.log.InfoContext(ctx, "stripe declined payment", slog.String("session_id", req.SessionID))
			return nil, ErrDeclined
		}
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusProcessing:
		return &Authorization{Reference: pi.ID}, nil
	default:
		a.log.InfoContext(ctx, "payment intent not authorized",
			slog.String("session_id", req.SessionID), slog.String("status", string(pi.Status)))
		return nil, ErrDeclined
	}
}

func idempotencyKey(sessionID, paymentMethod string) string {
	return "acp_" + sessionID + "_" + paymentMethod
}
