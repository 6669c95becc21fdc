package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

var _ repository.Store = (*Store)(nil)

const syncRecordColumns = `target_order_id, source_receipt_id, step, creation_status, target_timestamp,
	order_snapshot, source_created_at, source_state, payment_kind, amount, discount,
	create_order_correlation_id, add_payment_correlation_id, close_order_correlation_id,
	created_at, updated_at`

// ExistsBySourceReceiptID reports whether a record references the source receipt.
func (s *Store) ExistsBySourceReceiptID(ctx context.Context, sourceReceiptID string) (exists bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM sync_records WHERE source_receipt_id = ?)`
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "ExistsBySourceReceiptID", query)
	defer func() { end(err) }()

	if err = s.db.QueryRowContext(ctx, query, sourceReceiptID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check receipt %s: %w", sourceReceiptID, err)
	}
	return exists, nil
}

// Upsert inserts the record or replaces the row with the same target order id.
func (s *Store) Upsert(ctx context.Context, rec *domain.SyncRecord) (err error) {
	query := `
		INSERT INTO sync_records (` + syncRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (target_order_id) DO UPDATE SET
			source_receipt_id = excluded.source_receipt_id,
			step = excluded.step,
			creation_status = excluded.creation_status,
			target_timestamp = excluded.target_timestamp,
			order_snapshot = excluded.order_snapshot,
			source_created_at = excluded.source_created_at,
			source_state = excluded.source_state,
			payment_kind = excluded.payment_kind,
			amount = excluded.amount,
			discount = excluded.discount,
			create_order_correlation_id = excluded.create_order_correlation_id,
			add_payment_correlation_id = excluded.add_payment_correlation_id,
			close_order_correlation_id = excluded.close_order_correlation_id,
			updated_at = excluded.updated_at`

	if !rec.Step.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown step %q", rec.Step))
	}

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "Upsert", query)
	defer func() { end(err) }()

	var snapshot sql.NullString
	if len(rec.OrderSnapshot) > 0 {
		snapshot = sql.NullString{String: string(rec.OrderSnapshot), Valid: true}
	}
	var discount sql.NullString
	if rec.Discount.Valid {
		discount = sql.NullString{String: rec.Discount.Decimal.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.TargetOrderID,
		rec.SourceReceiptID,
		string(rec.Step),
		rec.CreationStatus,
		rec.TargetTimestamp,
		snapshot,
		rec.SourceCreatedAt,
		rec.SourceState,
		string(rec.PaymentKind),
		rec.Amount.String(),
		discount,
		rec.CreateOrderCorrelationID,
		rec.AddPaymentCorrelationID,
		rec.CloseOrderCorrelationID,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sync record %s: %w", rec.TargetOrderID, err)
	}
	return nil
}

// AdvanceStep moves a record to step, guarded on the current step being the
// one immediately before it.
func (s *Store) AdvanceStep(ctx context.Context, targetOrderID string, step domain.Step) (err error) {
	prev, ok := step.Previous()
	if !ok {
		return apperrors.StepOrder(targetOrderID, "", string(step))
	}

	query := `UPDATE sync_records SET step = ?, updated_at = ? WHERE target_order_id = ? AND step = ?`
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "AdvanceStep", query)
	defer func() { end(err) }()

	res, err := s.db.ExecContext(ctx, query, string(step), s.now(), targetOrderID, string(prev))
	if err != nil {
		return fmt.Errorf("advance sync record %s: %w", targetOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance sync record %s: %w", targetOrderID, err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT step FROM sync_records WHERE target_order_id = ?`, targetOrderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		err = apperrors.NotFound("sync record", targetOrderID)
		return err
	}
	if err != nil {
		return fmt.Errorf("read step of sync record %s: %w", targetOrderID, err)
	}
	err = apperrors.StepOrder(targetOrderID, current, string(step))
	return err
}

// SetCorrelationID stores the correlation id returned by phase.
func (s *Store) SetCorrelationID(ctx context.Context, targetOrderID string, phase domain.Step, correlationID string) (err error) {
	column, ok := repository.CorrelationColumn(phase)
	if !ok {
		return apperrors.InvalidInput(fmt.Sprintf("unknown step %q", phase))
	}

	query := fmt.Sprintf(`UPDATE sync_records SET %s = ?, updated_at = ? WHERE target_order_id = ?`, column)
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "SetCorrelationID", query)
	defer func() { end(err) }()

	res, err := s.db.ExecContext(ctx, query, correlationID, s.now(), targetOrderID)
	if err != nil {
		return fmt.Errorf("set %s on sync record %s: %w", column, targetOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s on sync record %s: %w", column, targetOrderID, err)
	}
	if n == 0 {
		err = apperrors.NotFound("sync record", targetOrderID)
		return err
	}
	return nil
}

// GetByTargetOrderID retrieves a record by its target order id.
func (s *Store) GetByTargetOrderID(ctx context.Context, targetOrderID string) (rec *domain.SyncRecord, err error) {
	query := `SELECT ` + syncRecordColumns + ` FROM sync_records WHERE target_order_id = ?`
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "GetByTargetOrderID", query)
	defer func() { end(err) }()

	rec, err = scanSyncRecord(s.db.QueryRowContext(ctx, query, targetOrderID))
	if errors.Is(err, sql.ErrNoRows) {
		err = apperrors.NotFound("sync record", targetOrderID)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get sync record %s: %w", targetOrderID, err)
	}
	return rec, nil
}

// ListStalled returns records that have not reached close_order, oldest first.
func (s *Store) ListStalled(ctx context.Context, limit int) (records []domain.SyncRecord, err error) {
	if limit <= 0 {
		limit = repository.DefaultStalledLimit
	}
	query := `SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE step <> ?
		ORDER BY created_at ASC, target_order_id ASC
		LIMIT ?`

	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "ListStalled", query)
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx, query, string(domain.StepCloseOrder), limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled sync records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, scanErr := scanSyncRecord(rows)
		if scanErr != nil {
			err = fmt.Errorf("scan sync record: %w", scanErr)
			return nil, err
		}
		records = append(records, *rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (*domain.SyncRecord, error) {
	var (
		rec         domain.SyncRecord
		step        string
		paymentKind string
		snapshot    sql.NullString
		amount      string
		discount    sql.NullString
		createCorr  sql.NullString
		paymentCorr sql.NullString
		closeCorr   sql.NullString
	)
	err := row.Scan(
		&rec.TargetOrderID,
		&rec.SourceReceiptID,
		&step,
		&rec.CreationStatus,
		&rec.TargetTimestamp,
		&snapshot,
		&rec.SourceCreatedAt,
		&rec.SourceState,
		&paymentKind,
		&amount,
		&discount,
		&createCorr,
		&paymentCorr,
		&closeCorr,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Step = domain.Step(step)
	rec.PaymentKind = domain.PaymentKind(paymentKind)
	if snapshot.Valid {
		rec.OrderSnapshot = []byte(snapshot.String)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if discount.Valid {
		d, err := decimal.NewFromString(discount.String)
		if err != nil {
			return nil, fmt.Errorf("parse discount %q: %w", discount.String, err)
		}
		rec.Discount = decimal.NewNullDecimal(d)
	}
	rec.CreateOrderCorrelationID = nullStringPtr(createCorr)
	rec.AddPaymentCorrelationID = nullStringPtr(paymentCorr)
	rec.CloseOrderCorrelationID = nullStringPtr(closeCorr)
	return &rec, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
