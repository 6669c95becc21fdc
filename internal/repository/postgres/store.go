package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Swed0ua/Integration-SK-Surve/internal/migrations"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
)

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store over a pgx pool.
type Store struct {
	*SyncRecordRepository
	*LogRepository
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		SyncRecordRepository: NewSyncRecordRepository(pool),
		LogRepository:        NewLogRepository(pool),
		pool:                 pool,
	}
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, cfg *database.PostgresConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := database.NewPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	applied, err := database.RunMigrations(ctx, pool, migrations.FS, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres store: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("postgres store migrated", slog.Any("versions", applied))
	}
	return NewStore(pool), nil
}

// Pool exposes the pool for metrics registration.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
