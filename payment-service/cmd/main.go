package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pspHTTP "github.com/shabazpatel/acp-infra/payment-service/internal/http"
	"github.com/shabazpatel/acp-infra/payment-service/internal/provider"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/bootstrap"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/logger"
)

const serviceName = "payment-service"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	cfg, err := config.Load("psp", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("payment-service stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("payment-service exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := bootstrap.New(cfg, log)
	defer deps.Close(context.Background())

	pipeline, err := deps.Pipeline(ctx, "psp", auth.WithBearer(true), auth.WithBearerFirst())
	if err != nil {
		return err
	}

	p := newProvider(cfg.Stripe, log)
	log.Info("payment provider selected", slog.String("provider", p.Name()))

	tokenizer := provider.NewTokenizer(p, log)
	router := pspHTTP.NewRouter(
		pspHTTP.NewPaymentHandler(tokenizer, pipeline, cfg.Server.RequestTimeout),
		log,
		cfg.Server.RequestTimeout,
	)
	return deps.Serve(ctx, router)
}

// newProvider picks Stripe when a secret key is configured.
func newProvider(cfg config.Stripe, log *slog.Logger) provider.Provider {
	if cfg.APIKey == "" {
		return provider.NewMockProvider()
	}
	return provider.NewStripeProvider(provider.NewStripeClient(cfg.APIKey), log)
}
