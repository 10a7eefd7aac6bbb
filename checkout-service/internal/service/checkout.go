package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/payment"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/pricing"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/repository"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
	"github.com/shabazpatel/acp-infra/pkg/ids"
)

func errSessionNotFound() *apperr.Error {
	return apperr.New(apperr.CodeSessionNotFound, "Session not found")
}

// CreateSession prices the items and stores a new session. A session created
// with an address is immediately ready for payment.
func (s *CheckoutService) CreateSession(ctx context.Context, req *domain.CreateSessionRequest) (*domain.CheckoutSession, error) {
	var codes []string
	if req.Discounts != nil {
		codes = req.Discounts.Codes
	}

	quote, err := s.pricing.Price(ctx, req.Items, nil, codes)
	if err != nil {
		return nil, err
	}

	sess := &domain.CheckoutSession{
		ID:                 ids.New("cs_", 12),
		Buyer:              req.Buyer,
		FulfillmentAddress: req.FulfillmentAddress,
		Status:             domain.CheckoutStatusNotReady,
	}
	if req.FulfillmentAddress != nil {
		sess.Status = domain.CheckoutStatusReady
	}
	s.apply(sess, quote)

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("status", sess.Status.String()),
		slog.Int64("total", sess.GrandTotal()))
	return sess, nil
}

// UpdateSession merges the request into the session, re-prices it and
// recomputes readiness from address and fulfillment option.
func (s *CheckoutService) UpdateSession(ctx context.Context, id string, req *domain.UpdateSessionRequest) (*domain.CheckoutSession, error) {
	sess, err := s.repo.UpdateSession(ctx, id, func(cur *domain.CheckoutSession) (*repository.Mutation, error) {
		if cur.Status.IsTerminal() {
			return nil, apperr.New(apperr.CodeSessionTerminal, "Session is already terminal")
		}
		if req.FulfillmentOptionID != nil {
			if err := s.pricing.ValidateOption(*req.FulfillmentOptionID); err != nil {
				return nil, err
			}
		}

		items := cur.Items()
		if len(req.Items) > 0 {
			items = req.Items
		}
		if req.Buyer != nil {
			cur.Buyer = req.Buyer
		}
		if req.FulfillmentAddress != nil {
			cur.FulfillmentAddress = req.FulfillmentAddress
		}
		if req.FulfillmentOptionID != nil {
			cur.FulfillmentOptionID = req.FulfillmentOptionID
		}
		codes := cur.DiscountCodes()
		if req.Discounts != nil {
			codes = req.Discounts.Codes
		}

		quote, err := s.pricing.Price(ctx, items, cur.FulfillmentOptionID, codes)
		if err != nil {
			return nil, err
		}
		s.apply(cur, quote)
		cur.Status = domain.StatusFor(cur.FulfillmentAddress != nil, cur.FulfillmentOptionID != nil)
		return nil, nil
	})
	if err != nil {
		return nil, s.sessionError(err, "update")
	}
	return sess, nil
}

// CompleteSession re-prices the session, authorizes the payment for the
// grand total and records the order with its outbox events in the same
// write. A declined payment leaves the session untouched.
func (s *CheckoutService) CompleteSession(ctx context.Context, id string, req *domain.CompleteSessionRequest) (*domain.CheckoutSession, error) {
	var events []*domain.OrderEvent

	sess, err := s.repo.UpdateSession(ctx, id, func(cur *domain.CheckoutSession) (*repository.Mutation, error) {
		if cur.Status != domain.CheckoutStatusReady {
			return nil, apperr.Newf(apperr.CodeNotReady,
				"Session is '%s', must be '%s'", cur.Status, domain.CheckoutStatusReady)
		}

		quote, err := s.pricing.Price(ctx, cur.Items(), cur.FulfillmentOptionID, cur.DiscountCodes())
		if err != nil {
			return nil, err
		}
		s.apply(cur, quote)
		if req.Buyer != nil {
			cur.Buyer = req.Buyer
		}

		auth, err := s.authorize(ctx, cur, req.PaymentData, quote.GrandTotal)
		if err != nil {
			return nil, err
		}

		order := &domain.OrderRecord{
			ID:                ids.New("order_", 12),
			CheckoutSessionID: cur.ID,
			PaymentToken:      req.PaymentData.Token,
			PaymentProvider:   req.PaymentData.Provider,
			PaymentReference:  auth.Reference,
			TotalCents:        quote.GrandTotal,
			Currency:          cur.Currency,
			Status:            domain.OrderStatusConfirmed,
			CreatedAt:         s.now().UTC(),
		}
		order.PermalinkURL = s.permalink(order.ID)

		events, err = domain.NewOrderEvents(order)
		if err != nil {
			return nil, fmt.Errorf("failed to build order events: %w", err)
		}

		cur.Status = domain.CheckoutStatusCompleted
		cur.Order = order.Public()
		return &repository.Mutation{Order: order, Events: events}, nil
	})
	if err != nil {
		return nil, s.sessionError(err, "complete")
	}

	s.log.InfoContext(ctx, "checkout session completed",
		slog.String("session_id", sess.ID),
		slog.String("order_id", sess.Order.ID),
		slog.Int64("total", sess.GrandTotal()))

	if s.notifier != nil {
		s.notifier.Notify(ctx, events)
	}
	return sess, nil
}

func (s *CheckoutService) authorize(ctx context.Context, cur *domain.CheckoutSession, pd domain.PaymentData, amount int64) (*payment.Authorization, error) {
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	auth, err := s.payments.Authorize(payCtx, payment.Request{
		SessionID: cur.ID,
		Token:     pd.Token,
		Provider:  pd.Provider,
		Amount:    amount,
		Currency:  cur.Currency,
	})
	if errors.Is(err, payment.ErrDeclined) {
		s.log.InfoContext(ctx, "payment declined", slog.String("session_id", cur.ID))
		return nil, apperr.New(apperr.CodePaymentDeclined, "Payment was declined by issuer").
			WithParam("$.payment_data.token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to authorize payment: %w", err)
	}
	return auth, nil
}

func (s *CheckoutService) CancelSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	sess, err := s.repo.UpdateSession(ctx, id, func(cur *domain.CheckoutSession) (*repository.Mutation, error) {
		if cur.Status.IsTerminal() {
			return nil, apperr.Newf(apperr.CodeAlreadyTerminal, "Session is already %s", cur.Status)
		}
		cur.Status = domain.CheckoutStatusCanceled
		return nil, nil
	})
	if err != nil {
		return nil, s.sessionError(err, "cancel")
	}

	s.log.InfoContext(ctx, "checkout session canceled", slog.String("session_id", sess.ID))
	return sess, nil
}

func (s *CheckoutService) GetSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, s.sessionError(err, "get")
	}
	return sess, nil
}

// apply copies a pricing pass and the merchant's static fields onto sess.
func (s *CheckoutService) apply(sess *domain.CheckoutSession, q *pricing.Quote) {
	sess.Currency = s.merchant.Currency
	sess.PaymentProvider = domain.PaymentProvider{Provider: "stripe", SupportedPaymentMethods: []string{"card"}}
	sess.Capabilities = domain.MerchantCapabilities(s.merchant.ID)
	sess.LineItems = q.LineItems
	sess.FulfillmentOptions = q.FulfillmentOptions
	sess.Totals = q.Totals
	sess.Discounts = q.Discounts
	sess.Messages = []domain.Message{{
		Type:        "info",
		Code:        "checkout_state",
		ContentType: "plain",
		Content:     "Checkout session updated",
	}}
	sess.Links = []domain.Link{
		{Type: "terms_of_use", URL: s.merchant.TermsURL},
		{Type: "privacy_policy", URL: s.merchant.PrivacyURL},
	}
}

func (s *CheckoutService) sessionError(err error, op string) error {
	if errors.Is(err, repository.ErrSessionNotFound) {
		return errSessionNotFound()
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return fmt.Errorf("failed to %s checkout session: %w", op, err)
}
