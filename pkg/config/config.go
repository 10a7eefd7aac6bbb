// Package config loads service configuration with viper. Values come from
// built-in defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigFile names the YAML file to load when no explicit path is given.
const EnvConfigFile = "ACP_CONFIG_FILE"

type Config struct {
	Server   Server   `mapstructure:"server"`
	Protocol Protocol `mapstructure:"protocol"`
	Merchant Merchant `mapstructure:"merchant"`
	Pricing  Pricing  `mapstructure:"pricing"`
	Webhook  Webhook  `mapstructure:"webhook"`
	Backends Backends `mapstructure:"backends"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Mongo    Mongo    `mapstructure:"mongo"`
	SQLite   SQLite   `mapstructure:"sqlite"`
	Stripe   Stripe   `mapstructure:"stripe"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

type Protocol struct {
	SupportedAPIVersions []string `mapstructure:"supported_api_versions"`
	RequireAuth          bool     `mapstructure:"require_auth"`
	BearerTokens         []string `mapstructure:"bearer_tokens"`
	SignatureSecret      string   `mapstructure:"signature_secret"`
	MaxBodyBytes         int64    `mapstructure:"max_body_bytes"`
}

type Merchant struct {
	ID            string `mapstructure:"id"`
	Currency      string `mapstructure:"currency"`
	TermsURL      string `mapstructure:"terms_url"`
	PrivacyURL    string `mapstructure:"privacy_url"`
	PermalinkBase string `mapstructure:"permalink_base"`
}

type Pricing struct {
	TaxRate string   `mapstructure:"tax_rate"`
	Coupons []Coupon `mapstructure:"coupons"`
}

// Coupon is a configured discount code. Exactly one of PercentOff and
// AmountOff is expected to be set.
type Coupon struct {
	Code       string  `mapstructure:"code"`
	Name       string  `mapstructure:"name"`
	PercentOff float64 `mapstructure:"percent_off"`
	AmountOff  int64   `mapstructure:"amount_off"`
}

type Webhook struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Backends struct {
	// Storage holds sessions and orders: memory | postgres.
	Storage string `mapstructure:"storage"`
	// Idempotency: memory | redis | postgres.
	Idempotency string `mapstructure:"idempotency"`
	// Audit: memory | postgres | mongo.
	Audit string `mapstructure:"audit"`
	// Catalog: memory | sqlite | postgres.
	Catalog      string `mapstructure:"catalog"`
	CatalogCache bool   `mapstructure:"catalog_cache"`
	// Outbox enables the Kafka order-event poller (postgres storage only).
	Outbox bool `mapstructure:"outbox"`
}

type Postgres struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	DBName            string `mapstructure:"dbname"`
	MigrationsDirPath string `mapstructure:"migrations_dir"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Kafka struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SQLite struct {
	Path              string `mapstructure:"path"`
	MigrationsDirPath string `mapstructure:"migrations_dir"`
}

type Stripe struct {
	APIKey string `mapstructure:"api_key"`
}

// envBindings maps config keys to the environment variables operators
// already use for the protocol services.
var envBindings = map[string]string{
	"server.http_addr":                "HTTP_ADDR",
	"server.grpc_addr":                "GRPC_ADDR",
	"server.request_timeout":          "REQUEST_TIMEOUT",
	"server.shutdown_timeout":         "SHUTDOWN_TIMEOUT",
	"server.log_level":                "LOG_LEVEL",
	"protocol.supported_api_versions": "ACP_SUPPORTED_API_VERSIONS",
	"protocol.require_auth":           "ACP_REQUIRE_AUTH",
	"protocol.bearer_tokens":          "ACP_BEARER_TOKENS",
	"protocol.signature_secret":       "ACP_OPENAI_SIGNATURE_SECRET",
	"protocol.max_body_bytes":         "ACP_MAX_BODY_BYTES",
	"merchant.id":                     "MERCHANT_ID",
	"merchant.currency":               "MERCHANT_CURRENCY",
	"merchant.terms_url":              "MERCHANT_TERMS_URL",
	"merchant.privacy_url":            "MERCHANT_PRIVACY_URL",
	"merchant.permalink_base":         "ORDER_PERMALINK_BASE",
	"pricing.tax_rate":                "TAX_RATE",
	"webhook.url":                     "ACP_ORDER_WEBHOOK_URL",
	"webhook.secret":                  "ACP_ORDER_WEBHOOK_SECRET",
	"webhook.timeout":                 "ACP_ORDER_WEBHOOK_TIMEOUT",
	"backends.storage":                "STORAGE_BACKEND",
	"backends.idempotency":            "IDEMPOTENCY_BACKEND",
	"backends.audit":                  "AUDIT_BACKEND",
	"backends.catalog":                "CATALOG_BACKEND",
	"backends.catalog_cache":          "CATALOG_CACHE",
	"backends.outbox":                 "OUTBOX_ENABLED",
	"postgres.host":                   "DB_HOST",
	"postgres.port":                   "DB_PORT",
	"postgres.user":                   "DB_USER",
	"postgres.password":               "DB_PASSWORD",
	"postgres.dbname":                 "DB_NAME",
	"postgres.migrations_dir":         "MIGRATIONS_DIR",
	"redis.addr":                      "REDIS_ADDR",
	"redis.password":                  "REDIS_PASSWORD",
	"redis.db":                        "REDIS_DB",
	"redis.ttl":                       "REDIS_TTL",
	"kafka.brokers":                   "KAFKA_BROKERS",
	"kafka.topic":                     "KAFKA_TOPIC",
	"kafka.poll_interval":             "KAFKA_POLL_INTERVAL",
	"mongo.uri":                       "MONGO_URI",
	"mongo.database":                  "MONGO_DATABASE",
	"sqlite.path":                     "SQLITE_PATH",
	"sqlite.migrations_dir":           "SQLITE_MIGRATIONS_DIR",
	"stripe.api_key":                  "STRIPE_API_KEY",
}

func setDefaults(v *viper.Viper, service string) {
	httpAddr, grpcAddr := ":8000", ":50056"
	if service == "psp" {
		httpAddr, grpcAddr = ":8001", ":50054"
	}

	v.SetDefault("server.http_addr", httpAddr)
	v.SetDefault("server.grpc_addr", grpcAddr)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("protocol.supported_api_versions", []string{"2026-01-30"})
	v.SetDefault("protocol.require_auth", true)
	v.SetDefault("protocol.bearer_tokens", []string{})
	v.SetDefault("protocol.signature_secret", "")
	v.SetDefault("protocol.max_body_bytes", int64(1<<20))

	v.SetDefault("merchant.id", "wayfair_demo")
	v.SetDefault("merchant.currency", "usd")
	v.SetDefault("merchant.terms_url", "https://example.com/terms")
	v.SetDefault("merchant.privacy_url", "https://example.com/privacy")
	v.SetDefault("merchant.permalink_base", "https://demo.example.com/orders")

	v.SetDefault("pricing.tax_rate", "0.08")
	v.SetDefault("pricing.coupons", []map[string]any{})

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)

	v.SetDefault("backends.storage", "memory")
	v.SetDefault("backends.idempotency", "memory")
	v.SetDefault("backends.audit", "memory")
	v.SetDefault("backends.catalog", "memory")
	v.SetDefault("backends.catalog_cache", false)
	v.SetDefault("backends.outbox", false)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "acp")
	v.SetDefault("postgres.migrations_dir", "checkout-service/internal/repository/migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "acp-order-events")
	v.SetDefault("kafka.poll_interval", time.Second)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "acp")

	v.SetDefault("sqlite.path", "catalog.db")
	v.SetDefault("sqlite.migrations_dir", "checkout-service/internal/catalog/migrations")

	v.SetDefault("stripe.api_key", "")
}

// Load builds the configuration for service ("seller" or "psp"). path may be
// empty; ACP_CONFIG_FILE is consulted then.
func Load(service, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	if path == "" {
		_ = v.BindEnv("config_file", EnvConfigFile)
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Protocol.SupportedAPIVersions = splitList(cfg.Protocol.SupportedAPIVersions)
	cfg.Protocol.BearerTokens = splitList(cfg.Protocol.BearerTokens)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects backend names no component understands.
func (c *Config) Validate() error {
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"backends.storage", c.Backends.Storage, []string{"memory", "postgres"}},
		{"backends.idempotency", c.Backends.Idempotency, []string{"memory", "redis", "postgres"}},
		{"backends.audit", c.Backends.Audit, []string{"memory", "postgres", "mongo"}},
		{"backends.catalog", c.Backends.Catalog, []string{"memory", "sqlite", "postgres"}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allowed, ch.value) {
			return fmt.Errorf("invalid %s %q: want one of %s", ch.name, ch.value, strings.Join(ch.allowed, ", "))
		}
	}
	if len(c.Protocol.SupportedAPIVersions) == 0 {
		return fmt.Errorf("protocol.supported_api_versions must not be empty")
	}
	if c.Backends.Outbox && c.Backends.Storage != "postgres" {
		return fmt.Errorf("backends.outbox requires postgres storage")
	}
	return nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
