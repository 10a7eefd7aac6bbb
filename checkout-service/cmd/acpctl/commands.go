package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/publisher"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/repository"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/canonical"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/idempotency"
	"github.com/shabazpatel/acp-infra/pkg/logger"
	"github.com/shabazpatel/acp-infra/pkg/postgres"
)

const commandTimeout = 2 * time.Minute

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "acpctl",
		Short:         "Operate the checkout and payment services",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	load := func(service string) (*config.Config, error) {
		return config.Load(service, configPath)
	}

	root.AddCommand(migrateCmd(load))
	root.AddCommand(seedCatalogCmd(load))
	root.AddCommand(signCmd(load))
	root.AddCommand(hashCmd())
	root.AddCommand(tailEventsCmd(load))
	return root
}

type loader func(service string) (*config.Config, error)

func migrateCmd(load loader) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations for a service",
		Long: `Apply every pending Postgres migration for a service.

The seller gets the checkout schema (sessions, orders, outbox, products)
plus the idempotency and audit tables; the PSP gets only the latter two.

Examples:
  acpctl migrate
  acpctl migrate --service psp --config psp.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service != "seller" && service != "psp" {
				return fmt.Errorf("unknown service %q: want seller or psp", service)
			}
			cfg, err := load(service)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			db, err := postgres.Open(ctx, credentials(cfg.Postgres))
			if err != nil {
				return err
			}
			defer db.Close()

			if service == "seller" {
				if err := postgres.RunMigrations(db, cfg.Postgres.MigrationsDirPath, repository.MigrationsTable); err != nil {
					return fmt.Errorf("checkout schema: %w", err)
				}
			}
			if err := postgres.RunMigrationsFS(db, idempotency.Migrations, "migrations", idempotency.MigrationsTable); err != nil {
				return fmt.Errorf("idempotency schema: %w", err)
			}
			if err := postgres.RunMigrationsFS(db, audit.Migrations, "migrations", audit.MigrationsTable); err != nil {
				return fmt.Errorf("audit schema: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied for %s\n", service)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "seller", "service whose schema to migrate (seller or psp)")
	return cmd
}

func seedCatalogCmd(load loader) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "seed-catalog <file.yaml>",
		Short: "Upsert products from a YAML file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := catalog.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := load("seller")
			if err != nil {
				return err
			}
			if backend == "" {
				backend = cfg.Backends.Catalog
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			store, err := openCatalog(ctx, cfg, backend)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Upsert(ctx, products...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d products into the %s catalog\n", len(products), backend)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "catalog backend (sqlite or postgres); defaults to backends.catalog")
	return cmd
}

func openCatalog(ctx context.Context, cfg *config.Config, backend string) (catalog.Store, error) {
	switch backend {
	case "sqlite":
		sc, err := catalog.NewSQLiteCatalog(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := sc.RunMigrations(cfg.SQLite.MigrationsDirPath); err != nil {
			_ = sc.Close()
			return nil, err
		}
		return sc, nil
	case "postgres":
		db, err := postgres.Open(ctx, credentials(cfg.Postgres))
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db, cfg.Postgres.MigrationsDirPath, repository.MigrationsTable); err != nil {
			_ = db.Close()
			return nil, err
		}
		return dbCatalog{Store: catalog.NewPostgresCatalog(db), db: db}, nil
	default:
		return nil, fmt.Errorf("catalog backend %q cannot be seeded: want sqlite or postgres", backend)
	}
}

// dbCatalog closes the connection the command opened for it.
type dbCatalog struct {
	catalog.Store
	db *sql.DB
}

func (c dbCatalog) Close() error {
	return c.db.Close()
}

func signCmd(load loader) *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "sign <file>",
		Short: "Print the " + auth.HeaderSignature + " value for a request body",
		Long: `Print the hex HMAC-SHA256 of the file's exact bytes. The secret
defaults to protocol.signature_secret (ACP_OPENAI_SIGNATURE_SECRET).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if secret == "" {
				cfg, err := load("seller")
				if err != nil {
					return err
				}
				secret = cfg.Protocol.SignatureSecret
			}
			if secret == "" {
				return fmt.Errorf("no signature secret: pass --secret or set ACP_OPENAI_SIGNATURE_SECRET")
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.Sign([]byte(secret), body))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signature secret")
	return cmd
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the canonical payload hash of a JSON document",
		Long: `Print the hash the idempotency ledger compares for a request body.
Key order and whitespace do not change it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			var payload any
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%s is not valid JSON: %w", args[0], err)
			}
			sum, err := canonical.Hash(payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func tailEventsCmd(load loader) *cobra.Command {
	var (
		group string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "tail-events",
		Short: "Print order events as the outbox relays them to Kafka",
		Long: `Consume the order events topic and print one line per event.

Examples:
  acpctl tail-events
  acpctl tail-events --limit 10 --group ops-debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load("seller")
			if err != nil {
				return err
			}
			reader := publisher.NewKafkaReader(cfg.Kafka.Topic, group, cfg.Kafka.Brokers...)
			return tailEvents(cmd, publisher.NewEventConsumer(reader, logger.Nop()), limit)
		},
	}
	cmd.Flags().StringVar(&group, "group", "acpctl", "Kafka consumer group")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many events (0 means run until interrupted)")
	return cmd
}

var errLimitReached = errors.New("limit reached")

func tailEvents(cmd *cobra.Command, consumer *publisher.EventConsumer, limit int) error {
	seen := 0
	err := consumer.Run(cmd.Context(), func(ev *publisher.ReceivedEvent) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%d %s\n",
			ev.Type, ev.SessionID, ev.Payload.OrderID, ev.Payload.Status,
			ev.Payload.TotalCents, ev.Payload.Currency)
		seen++
		if limit > 0 && seen >= limit {
			return errLimitReached
		}
		return nil
	})
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

func credentials(pg config.Postgres) *postgres.Credentials {
	return &postgres.Credentials{
		Host:              pg.Host,
		Port:              pg.Port,
		User:              pg.User,
		Password:          pg.Password,
		DBName:            pg.DBName,
		MigrationsDirPath: pg.MigrationsDirPath,
	}
}
