package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

const tracerName = "github.com/Swed0ua/Integration-SK-Surve/pkg/database"

// Values for the db.system span attribute.
const (
	SystemPostgres = "postgresql"
	SystemSQLite   = "sqlite"
)

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs store calls slower than threshold as warnings.
// A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// isAbsent reports whether err only says a looked-up row does not exist.
// Exists and GetByTargetOrderID treat that as a normal answer.
func isAbsent(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, apperrors.ErrNotFound)
}

// compactStatement folds the multi-line SQL literals used by the repositories
// onto one line.
func compactStatement(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}

// TraceQuery starts a client span around one sync store call and returns the
// function that finishes it:
//
//	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "AdvanceStep", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	statement = compactStatement(statement)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)

		switch {
		case err == nil:
		case isAbsent(err):
			span.SetAttributes(attribute.Bool("db.row_absent", true))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		cfg := slowQueries.Load()
		if cfg == nil || elapsed < cfg.threshold {
			return
		}
		attrs := []any{
			slog.String("db_system", system),
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
		}
		if err != nil && !isAbsent(err) {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		cfg.logger.WarnContext(ctx, "slow sync store query", attrs...)
	}
}
