package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/payment"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/publisher"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/repository"
	"github.com/shabazpatel/acp-infra/pkg/bootstrap"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/postgres"
)

// wiring selects the checkout backends. Storage and catalog may share one
// Postgres database; its migrations run once.
type wiring struct {
	deps     *bootstrap.Deps
	migrated bool
}

func (w *wiring) checkoutDB(ctx context.Context) (*sql.DB, error) {
	deps := w.deps
	db, err := deps.Postgres(ctx)
	if err != nil {
		return nil, err
	}
	if w.migrated {
		return db, nil
	}
	if err := postgres.RunMigrations(db, deps.Config.Postgres.MigrationsDirPath, repository.MigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to migrate checkout schema: %w", err)
	}
	deps.Log.Info("checkout migrations completed")
	w.migrated = true
	return db, nil
}

func (w *wiring) repository(ctx context.Context) (repository.Repository, error) {
	if w.deps.Config.Backends.Storage != bootstrap.BackendPostgres {
		var opts []repository.MemoryOption
		if !w.deps.Config.Backends.Outbox {
			opts = append(opts, repository.WithoutOutbox())
		}
		return repository.NewMemoryRepository(opts...), nil
	}
	db, err := w.checkoutDB(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresRepository(db), nil
}

func (w *wiring) catalog(ctx context.Context) (catalog.Catalog, error) {
	deps, cfg := w.deps, w.deps.Config

	var store catalog.Store
	switch cfg.Backends.Catalog {
	case bootstrap.BackendSQLite:
		sc, err := catalog.NewSQLiteCatalog(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := sc.RunMigrations(cfg.SQLite.MigrationsDirPath); err != nil {
			_ = sc.Close()
			return nil, err
		}
		deps.Health.Register("sqlite", sc.Ping)
		deps.OnClose(func(context.Context) error { return sc.Close() })
		store = sc
	case bootstrap.BackendPostgres:
		db, err := w.checkoutDB(ctx)
		if err != nil {
			return nil, err
		}
		store = catalog.NewPostgresCatalog(db)
	default:
		store = catalog.NewMemoryCatalog(catalog.DemoProducts()...)
	}

	if !cfg.Backends.CatalogCache {
		return store, nil
	}
	client, err := deps.Redis(ctx)
	if err != nil {
		return nil, err
	}
	deps.Log.Info("product cache enabled")
	return catalog.NewCachedCatalog(store, catalog.NewRedisCache(client, 0), deps.Log), nil
}

// newAuthorizer picks Stripe when an API key is configured.
func newAuthorizer(cfg config.Stripe, log *slog.Logger) payment.Authorizer {
	if cfg.APIKey == "" {
		log.Info("using mock payment authorizer")
		return payment.MockAuthorizer{}
	}
	log.Info("using stripe payment authorizer")
	return payment.NewStripeAuthorizer(payment.NewStripeClient(cfg.APIKey), log)
}

func (w *wiring) outboxPoller(repo repository.Repository) (*publisher.OutboxPoller, error) {
	deps, kc := w.deps, w.deps.Config.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when the outbox is enabled")
	}

	deps.Health.Register("kafka", func(ctx context.Context) error {
		conn, err := kafka.DialContext(ctx, "tcp", kc.Brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	})
	writer := publisher.NewKafkaWriter(kc.Topic, kc.Brokers...)
	deps.Log.Info("outbox relay enabled", slog.String("topic", kc.Topic))
	return publisher.NewOutboxPoller(repo, writer, kc.PollInterval, deps.Log), nil
}
