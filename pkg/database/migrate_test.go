package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000002_sync_logs.up.sql":      {Data: []byte("CREATE TABLE sync_logs (id BIGSERIAL PRIMARY KEY)")},
		"000002_sync_logs.down.sql":    {Data: []byte("DROP TABLE sync_logs")},
		"000001_sync_records.up.sql":   {Data: []byte("CREATE TABLE sync_records (target_order_id TEXT PRIMARY KEY)")},
		"000001_sync_records.down.sql": {Data: []byte("DROP TABLE sync_records")},
		"README.md":                    {Data: []byte("docs")},
	}
}

func expectTrackingTable(mock pgxmock.PgxPoolIface, applied ...string) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	rows := pgxmock.NewRows([]string{"version"})
	for _, v := range applied {
		rows.AddRow(v)
	}
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(rows)
}

func expectApply(mock pgxmock.PgxPoolIface, stmt, version string) {
	mock.ExpectBegin()
	mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(version).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectTrackingTable(mock)
	expectApply(mock, "CREATE TABLE sync_records", "000001_sync_records.up.sql")
	expectApply(mock, "CREATE TABLE sync_logs", "000002_sync_logs.up.sql")

	applied, err := RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_sync_records.up.sql", "000002_sync_logs.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectTrackingTable(mock, "000001_sync_records.up.sql")
	expectApply(mock, "CREATE TABLE sync_logs", "000002_sync_logs.up.sql")

	applied, err := RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"000002_sync_logs.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_NothingPending(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectTrackingTable(mock, "000001_sync_records.up.sql", "000002_sync_logs.up.sql")

	applied, err := RunMigrations(context.Background(), mock, testMigrations(), nil)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RollsBackOnSQLError(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectTrackingTable(mock)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE sync_records").
		WillReturnError(errors.New(`syntax error at or near "TABLE"`))
	mock.ExpectRollback()

	applied, err := RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.Error(t, err)
	assert.Empty(t, applied)
	assert.Contains(t, err.Error(), "execute migration 000001_sync_records.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_TrackingTableError(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied for schema public"))

	_, err = RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema_migrations table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_ListAppliedError(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnError(errors.New("relation does not exist"))

	_, err = RunMigrations(context.Background(), mock, testMigrations(), newTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list applied migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}
