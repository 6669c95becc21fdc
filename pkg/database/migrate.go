package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
)

const migrationsTable = "schema_migrations"

// RunMigrations applies the *.up.sql files at the root of migrations that are
// not yet recorded in schema_migrations. Files run in name order, each in its
// own transaction together with its bookkeeping row. It returns the versions
// applied by this call. Connection failures are retried; SQL errors are not.
func RunMigrations(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pending, err := upMigrations(migrations)
	if err != nil {
		return nil, err
	}

	var applied []string
	err = newRetrier(defaultConnectAttempts, logger).do(ctx, "run migrations", func(ctx context.Context) error {
		var err error
		applied, err = migrateOnce(ctx, db, migrations, pending, logger)
		return err
	})
	return applied, err
}

// upMigrations lists the up files at the root of migrations in name order.
func upMigrations(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func migrateOnce(ctx context.Context, db DBTX, migrations fs.FS, names []string, logger *slog.Logger) ([]string, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create %s table: %w", migrationsTable, err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		if done[name] {
			logger.DebugContext(ctx, "migration already applied", slog.String("version", name))
			continue
		}
		if err := applyMigration(ctx, db, migrations, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
		logger.InfoContext(ctx, "migration applied", slog.String("version", name))
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, db DBTX) (map[string]bool, error) {
	rows, err := db.Query(ctx, "SELECT version FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return done, nil
}

func applyMigration(ctx context.Context, db DBTX, migrations fs.FS, name string) (err error) {
	content, err := fs.ReadFile(migrations, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err = tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version) VALUES ($1)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
