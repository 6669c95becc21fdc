package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
)

// Append writes one log entry and fills in its id.
func (s *Store) Append(ctx context.Context, entry *domain.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_logs (level, message, receipt_id, created_at) VALUES (?, ?, ?, ?)`,
		entry.Level, entry.Message, entry.ReceiptID, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListByReceipt returns the entries tagged with receiptID, oldest first.
func (s *Store) ListByReceipt(ctx context.Context, receiptID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, message, receipt_id, created_at
		FROM sync_logs
		WHERE receipt_id = ?
		ORDER BY id ASC
		LIMIT ?`, receiptID, limit)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e   domain.LogEntry
			rid sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &rid, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.ReceiptID = nullStringPtr(rid)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}
