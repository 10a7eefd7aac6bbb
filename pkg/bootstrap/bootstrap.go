// Package bootstrap opens the infrastructure a service binary selects
// through configuration, registers each connection with the admin health
// server, and closes everything on shutdown.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shabazpatel/acp-infra/pkg/acphttp"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/config"
	"github.com/shabazpatel/acp-infra/pkg/healthcheck"
	"github.com/shabazpatel/acp-infra/pkg/idempotency"
	"github.com/shabazpatel/acp-infra/pkg/postgres"
	"github.com/shabazpatel/acp-infra/pkg/schema"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendSQLite   = "sqlite"

	idempotencyTTL = 24 * time.Hour
)

// Deps opens connections lazily so a binary only dials what its
// configuration selects. It is not safe for concurrent use; wire
// everything before serving.
type Deps struct {
	Config *config.Config
	Log    *slog.Logger
	Health *healthcheck.Server

	db      *sql.DB
	redis   *redis.Client
	mongo   *mongo.Database
	closers []func(context.Context) error
}

func New(cfg *config.Config, log *slog.Logger) *Deps {
	return &Deps{
		Config: cfg,
		Log:    log,
		Health: healthcheck.New(log),
	}
}

// OnClose registers fn to run, in reverse order, from Close.
func (d *Deps) OnClose(fn func(context.Context) error) {
	d.closers = append(d.closers, fn)
}

func (d *Deps) Postgres(ctx context.Context) (*sql.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	pg := d.Config.Postgres
	db, err := postgres.Open(ctx, &postgres.Credentials{
		Host:              pg.Host,
		Port:              pg.Port,
		User:              pg.User,
		Password:          pg.Password,
		DBName:            pg.DBName,
		MigrationsDirPath: pg.MigrationsDirPath,
	})
	if err != nil {
		return nil, err
	}
	d.Log.Info("connected to postgres", slog.String("host", pg.Host), slog.String("database", pg.DBName))

	d.db = db
	d.Health.Register("postgres", db.PingContext)
	d.OnClose(func(context.Context) error { return db.Close() })
	return db, nil
}

func (d *Deps) Redis(ctx context.Context) (*redis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	rc := d.Config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
	}
	d.Log.Info("connected to redis", slog.String("addr", rc.Addr))

	d.redis = client
	d.Health.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	d.OnClose(func(context.Context) error { return client.Close() })
	return client, nil
}

func (d *Deps) Mongo(ctx context.Context) (*mongo.Database, error) {
	if d.mongo != nil {
		return d.mongo, nil
	}
	mc := d.Config.Mongo
	db, err := audit.ConnectMongoDB(ctx, mc.URI, mc.Database)
	if err != nil {
		return nil, err
	}
	d.Log.Info("connected to mongodb", slog.String("database", mc.Database))

	d.mongo = db
	d.Health.Register("mongodb", func(ctx context.Context) error { return db.Client().Ping(ctx, nil) })
	d.OnClose(func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
	return db, nil
}

// IdempotencyStore returns the ledger backend named by
// backends.idempotency, applying its migrations when it lives in Postgres.
func (d *Deps) IdempotencyStore(ctx context.Context) (idempotency.Store, error) {
	switch d.Config.Backends.Idempotency {
	case BackendRedis:
		client, err := d.Redis(ctx)
		if err != nil {
			return nil, err
		}
		return idempotency.NewRedisStore(client, d.Config.Redis.TTL), nil
	case BackendPostgres:
		db, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrationsFS(db, idempotency.Migrations, "migrations", idempotency.MigrationsTable); err != nil {
			return nil, fmt.Errorf("failed to migrate idempotency store: %w", err)
		}
		return idempotency.NewPostgresStore(db, idempotencyTTL), nil
	default:
		return idempotency.NewMemoryStore(idempotency.WithTTL(idempotencyTTL)), nil
	}
}

// AuditSink returns the sink named by backends.audit.
func (d *Deps) AuditSink(ctx context.Context) (audit.Sink, error) {
	switch d.Config.Backends.Audit {
	case BackendPostgres:
		db, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrationsFS(db, audit.Migrations, "migrations", audit.MigrationsTable); err != nil {
			return nil, fmt.Errorf("failed to migrate audit log: %w", err)
		}
		return audit.NewPostgresSink(db), nil
	case BackendMongo:
		db, err := d.Mongo(ctx)
		if err != nil {
			return nil, err
		}
		return audit.NewMongoSink(db), nil
	default:
		return audit.NewMemorySink(), nil
	}
}

// Authenticator builds the protocol checks from the protocol section.
func (d *Deps) Authenticator(extra ...auth.Option) *auth.Authenticator {
	p := d.Config.Protocol
	opts := []auth.Option{
		auth.WithVersions(p.SupportedAPIVersions...),
		auth.WithBearer(p.RequireAuth),
		auth.WithTokens(p.BearerTokens...),
		auth.WithSignatureSecret(p.SignatureSecret),
	}
	return auth.New(append(opts, extra...)...)
}

// Pipeline wires authentication, schema validation, the idempotency
// ledger and the audit log for service ("seller" or "psp").
func (d *Deps) Pipeline(ctx context.Context, service string, authOpts ...auth.Option) (*acphttp.Pipeline, error) {
	store, err := d.IdempotencyStore(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := d.AuditSink(ctx)
	if err != nil {
		return nil, err
	}
	validator, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}

	a := d.Authenticator(authOpts...)
	if !a.SignatureEnabled() {
		d.Log.Warn("request signature verification disabled")
	}

	return acphttp.NewPipeline(acphttp.PipelineConfig{
		Auth:         a,
		Ledger:       idempotency.NewLedger(store),
		Validator:    validator,
		Audit:        audit.NewLog(sink, service, d.Log),
		Log:          d.Log,
		MaxBodyBytes: d.Config.Protocol.MaxBodyBytes,
	}), nil
}

// Close runs the registered closers newest first and logs failures.
func (d *Deps) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			d.Log.Warn("failed to close dependency", slog.String("error", err.Error()))
		}
	}
	d.closers = nil
}
