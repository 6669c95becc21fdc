// Package app wires the sync bridge together and owns the lifecycle of every
// resource a command needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Swed0ua/Integration-SK-Surve/internal/auditlog"
	"github.com/Swed0ua/Integration-SK-Surve/internal/config"
	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/event"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository/postgres"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository/sqlite"
	"github.com/Swed0ua/Integration-SK-Surve/internal/runlock"
	"github.com/Swed0ua/Integration-SK-Surve/internal/service"
	"github.com/Swed0ua/Integration-SK-Surve/internal/smartkasa"
	"github.com/Swed0ua/Integration-SK-Surve/internal/snapshot"
	"github.com/Swed0ua/Integration-SK-Surve/internal/syrve"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/health"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/httpclient"
	pkgkafka "github.com/Swed0ua/Integration-SK-Surve/pkg/kafka"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/logger"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/tracing"
)

// ServiceName tags logs, traces and pushed metrics.
const ServiceName = "syncbridge"

const (
	startupTimeout = 30 * time.Second
	closeTimeout   = 10 * time.Second
	checkTimeout   = 5 * time.Second
)

// App holds every dependency of the sync bridge. Build one per process with
// NewApp and release it with Close.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	store    repository.Store
	source   *smartkasa.Client
	target   *syrve.Client
	producer *pkgkafka.Producer
	redis    *redis.Client
	locker   *runlock.Locker

	metrics   *service.Metrics
	sync      *service.SyncService
	reconcile *service.ReconcileService

	shutdownTracer func(context.Context) error
}

// NewApp opens the store, builds the upstream clients and the optional event,
// lock and tracing integrations. Log records are written to h; records at or
// above AUDIT_LOG_LEVEL are also appended to the store.
func NewApp(ctx context.Context, cfg *config.Config, h slog.Handler) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	boot := logger.NewWithHandler(ServiceName, h)
	a := &App{
		cfg:            cfg,
		logger:         boot,
		registry:       prometheus.NewRegistry(),
		shutdownTracer: func(context.Context) error { return nil },
	}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				boot.Error("release partially initialized app", slog.String("error", cerr.Error()))
			}
		}
	}()

	shutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig(ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdown

	if cfg.DBSlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.DBSlowQuery, boot)
	}
	if err := a.openStore(ctx, boot); err != nil {
		return nil, err
	}

	a.logger = logger.NewWithHandler(ServiceName,
		auditlog.NewHandler(h, a.store, logger.ParseLevel(cfg.AuditLogLevel)))

	breakers := httpclient.NewBreakerMetrics(a.registry)

	a.source = smartkasa.NewClient(smartkasa.Config{
		BaseURL:  cfg.SmartKasaBaseURL,
		APIKey:   cfg.SmartKasaAPIKey,
		Phone:    cfg.SmartKasaPhone,
		Password: cfg.SmartKasaPassword,
	}, httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg.SourceHTTPConfig()), cfg.BreakerConfig("smartkasa"), breakers, a.logger,
	), a.logger)

	a.target = syrve.NewClient(cfg.SyrveBaseURL, cfg.SyrveAPILogin,
		httpclient.NewCircuitBreakerClient(
			httpclient.New(cfg.TargetHTTPConfig()), cfg.BreakerConfig("syrve"), breakers, a.logger,
		), a.logger)

	var events service.EventPublisher = event.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		producerMetrics, err := pkgkafka.NewProducerMetrics(a.registry)
		if err != nil {
			return nil, fmt.Errorf("register producer metrics: %w", err)
		}
		a.producer = pkgkafka.NewProducer(
			pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers),
			producerMetrics,
			a.logger,
		)
		events = event.NewProducer(a.producer, a.logger)
		boot.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	if cfg.RedisAddr != "" {
		a.redis, err = database.NewRedisClient(ctx, cfg.RedisConfig(), boot)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.locker = runlock.New(a.redis, runlock.DefaultKey, cfg.RunLockTTL, a.logger)
		boot.Info("run lock enabled", slog.String("addr", cfg.RedisAddr))
	}

	a.metrics = service.NewMetrics(a.registry)

	opts := []service.Option{
		service.WithEvents(events),
		service.WithMetrics(a.metrics),
	}
	if cfg.SnapshotDir != "" {
		opts = append(opts, service.WithSnapshots(snapshot.NewWriter(cfg.SnapshotDir)))
	}

	a.sync = service.NewSyncService(a.source, a.target, a.store, service.SyncConfig{
		Payments: domain.PaymentSettings{
			CashTypeID: cfg.CashPaymentTypeID,
			CardTypeID: cfg.CardPaymentTypeID,
		},
		Discount: domain.DiscountSettings{
			TypeID: cfg.DiscountTypeID,
			Type:   cfg.DiscountType,
		},
		SettleDelay:        cfg.PaymentSettleDelay,
		CreateOrderTimeout: cfg.CreateOrderTimeout,
		AddPaymentTimeout:  cfg.AddPaymentTimeout,
		CloseOrderTimeout:  cfg.CloseOrderTimeout,
	}, a.logger, opts...)

	a.reconcile = service.NewReconcileService(a.store, a.target, a.metrics, a.logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, boot *slog.Logger) error {
	switch a.cfg.StoreDriver {
	case config.StorePostgres:
		pgCfg := a.cfg.PostgresConfig()
		store, err := postgres.Open(ctx, &pgCfg, boot)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.store = store
		if err := database.RegisterPoolMetrics(a.registry, database.SystemPostgres, database.PgxPoolStats(store.Pool())); err != nil {
			return fmt.Errorf("register pool metrics: %w", err)
		}
		boot.Info("connected to PostgreSQL",
			slog.String("host", a.cfg.PostgresHost),
			slog.Int("port", a.cfg.PostgresPort),
			slog.String("database", a.cfg.PostgresDB),
		)
	default:
		store, err := sqlite.Open(a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = store
		if err := database.RegisterPoolMetrics(a.registry, database.SystemSQLite, database.SQLDBStats(store.DB())); err != nil {
			return fmt.Errorf("register pool metrics: %w", err)
		}
		boot.Info("opened SQLite store", slog.String("path", a.cfg.SQLitePath))
	}
	return nil
}

// DefaultWindow returns the SYNC_DATE_FROM and SYNC_DATE_TO settings.
func (a *App) DefaultWindow() (from, to string) {
	return a.cfg.DateFrom, a.cfg.DateTo
}

// Registry returns the registry holding the bridge's own metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// RunSync syncs every receipt inside window. When a run lock is configured it
// is held for the whole run; a lock held elsewhere fails the run before any
// receipt is fetched. Metrics are pushed afterwards if a Pushgateway is set.
func (a *App) RunSync(ctx context.Context, window domain.DateWindow) (*domain.RunSummary, error) {
	if a.locker != nil {
		lease, err := a.locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				a.logger.WarnContext(ctx, "release run lock", slog.String("error", err.Error()))
			}
		}()
	}

	summary, err := a.sync.Run(ctx, window)

	if perr := service.PushMetrics(context.WithoutCancel(ctx), a.cfg.PushgatewayURL, ServiceName,
		prometheus.Gatherers{a.registry, prometheus.DefaultGatherer}); perr != nil {
		a.logger.WarnContext(ctx, "push metrics failed", slog.String("error", perr.Error()))
	}

	return summary, err
}

// Stalled lists sync records that stopped before close_order.
func (a *App) Stalled(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	return a.reconcile.Stalled(ctx, limit)
}

// Reconcile compares each stalled record with the order Syrve reports.
func (a *App) Reconcile(ctx context.Context, limit int) ([]service.ReconcileResult, error) {
	return a.reconcile.Reconcile(ctx, limit)
}

// Check probes every configured dependency.
func (a *App) Check(ctx context.Context) health.Report {
	reg := health.NewRegistry(checkTimeout)
	reg.Register("store", a.store.Ping)
	reg.Register("smartkasa", a.source.Authenticate)
	reg.Register("syrve", a.target.Authenticate)
	if a.producer != nil {
		reg.Register("kafka", a.producer.Ping)
	}
	if a.redis != nil {
		reg.Register("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return reg.Run(ctx)
}

// Close releases every resource NewApp opened. It is safe to call on a
// partially built App.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.shutdownTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	return errors.Join(errs...)
}
