package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pkgconfig "github.com/Swed0ua/Integration-SK-Surve/pkg/config"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/httpclient"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/tracing"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration for the sync bridge.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Entries at or above this level are also written to the store's log table.
	AuditLogLevel string `env:"AUDIT_LOG_LEVEL" envDefault:"info"`

	// SmartKasa
	SmartKasaBaseURL  string `env:"SMARTKASA_BASE_URL" envDefault:"https://core.smartkasa.ua"`
	SmartKasaPhone    string `env:"SMARTKASA_PHONE"`
	SmartKasaPassword string `env:"SMARTKASA_PASSWORD"`
	SmartKasaAPIKey   string `env:"SMARTKASA_API_KEY,required"`

	// Syrve
	SyrveBaseURL  string `env:"SYRVE_BASE_URL" envDefault:"https://api-eu.syrve.live/api/1"`
	SyrveAPILogin string `env:"SYRVE_API_LOGIN,required"`

	DiscountTypeID     string `env:"SYRVE_DISCOUNT_TYPE_ID"`
	DiscountType       string `env:"SYRVE_DISCOUNT_TYPE"`
	CashPaymentTypeID  string `env:"SYRVE_PAYMENT_TYPE_ID_CASH"`
	CardPaymentTypeID  string `env:"SYRVE_PAYMENT_TYPE_ID_CARD"`
	LegacyDiscountID   string `env:"SURVE_DISCOUT_TYPE_ID"`
	LegacyDiscountType string `env:"SURVE_DISCOUT_TYPE"`
	LegacyCashTypeID   string `env:"SURVE_TRANSACTION_TYPE_ID_CASH"`
	LegacyCardTypeID   string `env:"SURVE_TRANSACTION_TYPE_ID_CARD"`

	// Sync run
	DateFrom           string        `env:"SYNC_DATE_FROM"`
	DateTo             string        `env:"SYNC_DATE_TO"`
	PaymentSettleDelay time.Duration `env:"SYNC_PAYMENT_SETTLE_DELAY" envDefault:"5s"`
	CreateOrderTimeout time.Duration `env:"SYNC_CREATE_ORDER_TIMEOUT" envDefault:"30s"`
	AddPaymentTimeout  time.Duration `env:"SYNC_ADD_PAYMENT_TIMEOUT" envDefault:"30s"`
	CloseOrderTimeout  time.Duration `env:"SYNC_CLOSE_ORDER_TIMEOUT" envDefault:"30s"`

	// Store
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"syncbridge.db"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"syncbridge"`
	PostgresPass string `env:"POSTGRES_PASSWORD"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"syncbridge"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"4"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	DBSlowQuery       time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"500ms"`

	// Startup attempts for postgres and redis connections.
	ConnectAttempts int `env:"CONNECT_ATTEMPTS" envDefault:"3"`

	// Audit snapshot of fetched receipts; empty disables.
	SnapshotDir string `env:"SNAPSHOT_DIR" envDefault:"snapshots"`

	// Kafka; empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Redis run lock; empty address disables it.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RunLockTTL    time.Duration `env:"RUN_LOCK_TTL" envDefault:"30m"`

	// Prometheus Pushgateway; empty disables pushing.
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	ServiceVersion string  `env:"SERVICE_VERSION" envDefault:"dev"`

	// Upstream HTTP
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	SourceMaxRetries int           `env:"SOURCE_MAX_RETRIES" envDefault:"3"`
	CBFailureRatio   float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests    uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`
	CBOpenTimeout    time.Duration `env:"CB_OPEN_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, pkgconfig.WithEnvFiles(".env")); err != nil {
		if keys := pkgconfig.MissingKeys(err); len(keys) > 0 {
			return nil, fmt.Errorf("load syncbridge config: missing %s: %w", strings.Join(keys, ", "), err)
		}
		return nil, fmt.Errorf("load syncbridge config: %w", err)
	}
	cfg.applyLegacy()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLegacy fills unset Syrve type ids from their older variable names.
func (c *Config) applyLegacy() {
	fill := func(dst *string, legacy string) {
		if *dst == "" {
			*dst = legacy
		}
	}
	fill(&c.DiscountTypeID, c.LegacyDiscountID)
	fill(&c.DiscountType, c.LegacyDiscountType)
	fill(&c.CashPaymentTypeID, c.LegacyCashTypeID)
	fill(&c.CardPaymentTypeID, c.LegacyCardTypeID)
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.CashPaymentTypeID == "" {
		errs = append(errs, errors.New("SYRVE_PAYMENT_TYPE_ID_CASH is required"))
	}
	if c.CardPaymentTypeID == "" {
		errs = append(errs, errors.New("SYRVE_PAYMENT_TYPE_ID_CARD is required"))
	}
	for name, raw := range map[string]string{
		"SMARTKASA_BASE_URL": c.SmartKasaBaseURL,
		"SYRVE_BASE_URL":     c.SyrveBaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid %s: %q", name, raw))
		}
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid postgres port: %d", c.PostgresPort))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", c.StoreDriver, StoreSQLite, StorePostgres))
	}
	if c.PaymentSettleDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid payment settle delay: %s", c.PaymentSettleDelay))
	}
	if c.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("invalid connect attempts: %d", c.ConnectAttempts))
	}
	if c.SourceMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("invalid source max retries: %d", c.SourceMaxRetries))
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("invalid circuit breaker failure ratio: %v", c.CBFailureRatio))
	}

	return errors.Join(errs...)
}

// PostgresConfig returns the pool configuration for the postgres store.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		ApplicationName: "syncbridge",
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
		ConnectAttempts: c.ConnectAttempts,
	}
}

// RedisConfig returns the redis connection used for the run lock.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Addr:            c.RedisAddr,
		Password:        c.RedisPassword,
		DB:              c.RedisDB,
		ConnectAttempts: c.ConnectAttempts,
	}
}

// SourceHTTPConfig is the retrying client used for SmartKasa reads.
func (c *Config) SourceHTTPConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.HTTPTimeout
	cfg.MaxRetries = c.SourceMaxRetries
	cfg.UserAgent = c.userAgent()
	return cfg
}

// TargetHTTPConfig is the client used for Syrve. Order writes are not
// idempotent upstream, so it never retries.
func (c *Config) TargetHTTPConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.HTTPTimeout
	cfg.MaxRetries = 0
	cfg.UserAgent = c.userAgent()
	return cfg
}

func (c *Config) userAgent() string {
	return "syncbridge/" + c.ServiceVersion
}

// BreakerConfig returns circuit breaker settings for the named upstream.
func (c *Config) BreakerConfig(name string) httpclient.CircuitBreakerConfig {
	cfg := httpclient.DefaultCircuitBreakerConfig(name)
	cfg.FailureRatio = c.CBFailureRatio
	cfg.MinRequests = c.CBMinRequests
	cfg.Timeout = c.CBOpenTimeout
	return cfg
}

// TracingConfig returns the OpenTelemetry settings.
func (c *Config) TracingConfig(serviceName string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		SampleRate:     c.OTelSampleRate,
		Enabled:        c.OTelEnabled,
	}
}
