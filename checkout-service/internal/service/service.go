// Package service implements the checkout session state machine and the
// catalog browsing operations of the seller.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/payment"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/pricing"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/repository"
)

// Notifier is told about order events once they are committed.
type Notifier interface {
	Notify(ctx context.Context, events []*domain.OrderEvent)
}

type Merchant struct {
	ID            string
	Currency      string
	TermsURL      string
	PrivacyURL    string
	PermalinkBase string
}

func DefaultMerchant() Merchant {
	return Merchant{
		ID:            "merchant_demo",
		Currency:      domain.DefaultCurrency,
		TermsURL:      "https://example.com/terms",
		PrivacyURL:    "https://example.com/privacy",
		PermalinkBase: "https://demo.example.com/orders",
	}
}

type CheckoutService struct {
	repo           repository.Repository
	catalog        catalog.Catalog
	pricing        *pricing.Engine
	payments       payment.Authorizer
	notifier       Notifier
	merchant       Merchant
	paymentTimeout time.Duration
	log            *slog.Logger
	now            func() time.Time
}

type Option func(*CheckoutService)

func WithNotifier(n Notifier) Option {
	return func(s *CheckoutService) { s.notifier = n }
}

func WithMerchant(m Merchant) Option {
	return func(s *CheckoutService) {
		d := DefaultMerchant()
		if m.ID == "" {
			m.ID = d.ID
		}
		if m.Currency == "" {
			m.Currency = d.Currency
		}
		if m.TermsURL == "" {
			m.TermsURL = d.TermsURL
		}
		if m.PrivacyURL == "" {
			m.PrivacyURL = d.PrivacyURL
		}
		if m.PermalinkBase == "" {
			m.PermalinkBase = d.PermalinkBase
		}
		s.merchant = m
	}
}

func WithPaymentTimeout(d time.Duration) Option {
	return func(s *CheckoutService) { s.paymentTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *CheckoutService) { s.now = now }
}

func NewCheckoutService(
	repo repository.Repository,
	cat catalog.Catalog,
	engine *pricing.Engine,
	payments payment.Authorizer,
	log *slog.Logger,
	opts ...Option,
) *CheckoutService {
	s := &CheckoutService{
		repo:           repo,
		catalog:        cat,
		pricing:        engine,
		payments:       payments,
		merchant:       DefaultMerchant(),
		paymentTimeout: 10 * time.Second,
		log:            log,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CheckoutService) permalink(orderID string) string {
	return strings.TrimRight(s.merchant.PermalinkBase, "/") + "/" + orderID
}
