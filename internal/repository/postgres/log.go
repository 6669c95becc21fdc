package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
)

// LogRepository implements repository.LogRepository using PostgreSQL.
type LogRepository struct {
	pool database.DBTX
}

// NewLogRepository creates a new PostgreSQL-backed log repository.
func NewLogRepository(pool database.DBTX) *LogRepository {
	return &LogRepository{pool: pool}
}

// Append writes one log entry and fills in its id.
func (r *LogRepository) Append(ctx context.Context, entry *domain.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_logs (level, message, receipt_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if err := r.pool.QueryRow(ctx, query, entry.Level, entry.Message, entry.ReceiptID, entry.Timestamp).Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListByReceipt returns the entries tagged with receiptID, oldest first.
func (r *LogRepository) ListByReceipt(ctx context.Context, receiptID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, level, message, receipt_id, created_at
		FROM sync_logs
		WHERE receipt_id = $1
		ORDER BY id ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, receiptID, limit)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.ReceiptID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}
