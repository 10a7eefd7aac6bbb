package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	checkouthttp "github.com/shabazpatel/acp-infra/checkout-service/internal/http"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/pricing"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/publisher"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/service"
	"github.com/shabazpatel/acp-infra/pkg/bootstrap"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/logger"
)

const serviceName = "checkout-service"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	cfg, err := config.Load("seller", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("checkout-service stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("checkout-service exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := bootstrap.New(cfg, log)
	defer deps.Close(context.Background())

	w := &wiring{deps: deps}
	repo, err := w.repository(ctx)
	if err != nil {
		return err
	}
	cat, err := w.catalog(ctx)
	if err != nil {
		return err
	}
	engine, err := newPricingEngine(cfg.Pricing, cat)
	if err != nil {
		return err
	}
	pipeline, err := deps.Pipeline(ctx, "seller")
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithMerchant(service.Merchant{
			ID:            cfg.Merchant.ID,
			Currency:      cfg.Merchant.Currency,
			TermsURL:      cfg.Merchant.TermsURL,
			PrivacyURL:    cfg.Merchant.PrivacyURL,
			PermalinkBase: cfg.Merchant.PermalinkBase,
		}),
	}
	var notifier *publisher.Notifier
	if cfg.Webhook.URL != "" {
		webhook := publisher.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout, log)
		notifier = publisher.NewNotifier(webhook, log)
		opts = append(opts, service.WithNotifier(notifier))
		log.Info("order webhooks enabled")
	}

	svc := service.NewCheckoutService(repo, cat, engine, newAuthorizer(cfg.Stripe, log), log, opts...)

	router := checkouthttp.NewRouter(
		checkouthttp.NewCheckoutHandler(svc, pipeline, cfg.Server.RequestTimeout),
		checkouthttp.NewProductHandler(svc, pipeline, cfg.Server.RequestTimeout),
		log,
		cfg.Server.RequestTimeout,
	)

	var runners []bootstrap.Runner
	if cfg.Backends.Outbox {
		poller, err := w.outboxPoller(repo)
		if err != nil {
			return err
		}
		runners = append(runners, poller.Run)
	}

	err = deps.Serve(ctx, router, runners...)
	if notifier != nil {
		notifier.Wait()
	}
	return err
}

func newPricingEngine(cfg config.Pricing, products pricing.ProductSource) (*pricing.Engine, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", cfg.TaxRate, err)
	}
	coupons := make([]pricing.Coupon, 0, len(cfg.Coupons))
	for _, c := range cfg.Coupons {
		coupons = append(coupons, pricing.Coupon{
			Code:       c.Code,
			Name:       c.Name,
			PercentOff: c.PercentOff,
			AmountOff:  c.AmountOff,
		})
	}
	return pricing.NewEngine(products, rate, coupons...), nil
}
