package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func captureSlowQueries(t *testing.T, threshold time.Duration) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetSlowQueryLogging(threshold, slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	return buf
}

func TestTraceQuery_Attributes(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), SystemPostgres, "GetByTargetOrderID", `
		SELECT target_order_id
		FROM sync_records
		WHERE target_order_id = $1`)
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.GetByTargetOrderID", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "GetByTargetOrderID", attrs["db.operation"])
	assert.Equal(t, "SELECT target_order_id FROM sync_records WHERE target_order_id = $1", attrs["db.statement"])
}

func TestTraceQuery_ErrorMarksSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), SystemSQLite, "AdvanceStep", "UPDATE sync_records SET step = ?")
	end(errors.New("database is locked"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "sqlite", spanAttrs(spans[0])["db.system"])
}

func TestTraceQuery_AbsentRowIsNotAnError(t *testing.T) {
	for _, err := range []error{
		pgx.ErrNoRows,
		fmt.Errorf("scan: %w", pgx.ErrNoRows),
		apperrors.NotFound("sync record", "order-1"),
	} {
		t.Run(err.Error(), func(t *testing.T) {
			exporter := setupTestTracer(t)

			_, end := TraceQuery(context.Background(), SystemPostgres, "GetByTargetOrderID", "SELECT 1")
			end(err)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Unset, spans[0].Status.Code)
			assert.Empty(t, spans[0].Events)
			assert.Equal(t, "true", spanAttrs(spans[0])["db.row_absent"])
		})
	}
}

func TestTraceQuery_ChildOfCallerSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "sync.receipt")
	_, end := TraceQuery(ctx, SystemPostgres, "Upsert", "INSERT INTO sync_records")
	end(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.Upsert", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestSlowQueryLogging(t *testing.T) {
	t.Run("slow call logged", func(t *testing.T) {
		setupTestTracer(t)
		buf := captureSlowQueries(t, time.Nanosecond)

		_, end := TraceQuery(context.Background(), SystemPostgres, "ListStalled", "SELECT *\n\tFROM sync_records")
		time.Sleep(time.Millisecond)
		end(errors.New("conn busy"))

		out := buf.String()
		assert.Contains(t, out, "slow sync store query")
		assert.Contains(t, out, "ListStalled")
		assert.Contains(t, out, "SELECT * FROM sync_records")
		assert.Contains(t, out, "conn busy")
	})

	t.Run("fast call not logged", func(t *testing.T) {
		setupTestTracer(t)
		buf := captureSlowQueries(t, time.Hour)

		_, end := TraceQuery(context.Background(), SystemPostgres, "ExistsBySourceReceiptID", "SELECT 1")
		end(nil)

		assert.Empty(t, buf.String())
	})

	t.Run("absent row omits error", func(t *testing.T) {
		setupTestTracer(t)
		buf := captureSlowQueries(t, time.Nanosecond)

		_, end := TraceQuery(context.Background(), SystemSQLite, "GetByTargetOrderID", "SELECT 1")
		time.Sleep(time.Millisecond)
		end(pgx.ErrNoRows)

		assert.Contains(t, buf.String(), "slow sync store query")
		assert.NotContains(t, buf.String(), `"error"`)
	})

	t.Run("disabled", func(t *testing.T) {
		setupTestTracer(t)
		SetSlowQueryLogging(time.Second, nil)
		assert.Nil(t, slowQueries.Load())

		_, end := TraceQuery(context.Background(), SystemSQLite, "Upsert", "INSERT")
		end(nil)
	})
}

func TestSetSlowQueryLogging_Concurrent(t *testing.T) {
	setupTestTracer(t)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			SetSlowQueryLogging(time.Duration(i+1)*time.Hour, logger)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, end := TraceQuery(context.Background(), SystemPostgres, "Upsert", "INSERT")
			end(nil)
		}
	}()
	wg.Wait()
}
