package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/database"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

const syncRecordColumns = `target_order_id, source_receipt_id, step, creation_status, target_timestamp,
	order_snapshot::text, source_created_at, source_state, payment_kind, amount::text, discount::text,
	create_order_correlation_id, add_payment_correlation_id, close_order_correlation_id,
	created_at, updated_at`

// SyncRecordRepository implements repository.SyncRecordRepository using PostgreSQL.
type SyncRecordRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewSyncRecordRepository creates a new PostgreSQL-backed sync record repository.
func NewSyncRecordRepository(pool database.DBTX) *SyncRecordRepository {
	return &SyncRecordRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// ExistsBySourceReceiptID reports whether a record references the source receipt.
func (r *SyncRecordRepository) ExistsBySourceReceiptID(ctx context.Context, sourceReceiptID string) (exists bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM sync_records WHERE source_receipt_id = $1)`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ExistsBySourceReceiptID", query)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, query, sourceReceiptID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check receipt %s: %w", sourceReceiptID, err)
	}
	return exists, nil
}

// Upsert inserts the record or replaces the row with the same target order id.
// created_at of an existing row is preserved.
func (r *SyncRecordRepository) Upsert(ctx context.Context, rec *domain.SyncRecord) (err error) {
	query := `
		INSERT INTO sync_records (target_order_id, source_receipt_id, step, creation_status, target_timestamp,
			order_snapshot, source_created_at, source_state, payment_kind, amount, discount,
			create_order_correlation_id, add_payment_correlation_id, close_order_correlation_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::numeric, $11::numeric, $12, $13, $14, $15, $16)
		ON CONFLICT (target_order_id) DO UPDATE SET
			source_receipt_id = EXCLUDED.source_receipt_id,
			step = EXCLUDED.step,
			creation_status = EXCLUDED.creation_status,
			target_timestamp = EXCLUDED.target_timestamp,
			order_snapshot = EXCLUDED.order_snapshot,
			source_created_at = EXCLUDED.source_created_at,
			source_state = EXCLUDED.source_state,
			payment_kind = EXCLUDED.payment_kind,
			amount = EXCLUDED.amount,
			discount = EXCLUDED.discount,
			create_order_correlation_id = EXCLUDED.create_order_correlation_id,
			add_payment_correlation_id = EXCLUDED.add_payment_correlation_id,
			close_order_correlation_id = EXCLUDED.close_order_correlation_id,
			updated_at = EXCLUDED.updated_at`

	if !rec.Step.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("unknown step %q", rec.Step))
	}

	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Upsert", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		rec.TargetOrderID,
		rec.SourceReceiptID,
		string(rec.Step),
		rec.CreationStatus,
		rec.TargetTimestamp,
		snapshotArg(rec.OrderSnapshot),
		rec.SourceCreatedAt,
		rec.SourceState,
		string(rec.PaymentKind),
		rec.Amount.String(),
		nullDecimalArg(rec.Discount),
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
func (r *SyncRecordRepository) AdvanceStep(ctx context.Context, targetOrderID string, step domain.Step) (err error) {
	prev, ok := step.Previous()
	if !ok {
		return apperrors.StepOrder(targetOrderID, "", string(step))
	}

	query := `
		UPDATE sync_records SET step = $1, updated_at = $2
		WHERE target_order_id = $3 AND step = $4`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "AdvanceStep", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, string(step), r.now(), targetOrderID, string(prev))
	if err != nil {
		return fmt.Errorf("advance sync record %s: %w", targetOrderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT step FROM sync_records WHERE target_order_id = $1`, targetOrderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (r *SyncRecordRepository) SetCorrelationID(ctx context.Context, targetOrderID string, phase domain.Step, correlationID string) (err error) {
	column, ok := repository.CorrelationColumn(phase)
	if !ok {
		return apperrors.InvalidInput(fmt.Sprintf("unknown step %q", phase))
	}

	query := fmt.Sprintf(`UPDATE sync_records SET %s = $1, updated_at = $2 WHERE target_order_id = $3`, column)
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SetCorrelationID", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, correlationID, r.now(), targetOrderID)
	if err != nil {
		return fmt.Errorf("set %s on sync record %s: %w", column, targetOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		err = apperrors.NotFound("sync record", targetOrderID)
		return err
	}
	return nil
}

// GetByTargetOrderID retrieves a record by its target order id.
func (r *SyncRecordRepository) GetByTargetOrderID(ctx context.Context, targetOrderID string) (rec *domain.SyncRecord, err error) {
	query := `SELECT ` + syncRecordColumns + ` FROM sync_records WHERE target_order_id = $1`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetByTargetOrderID", query)
	defer func() { end(err) }()

	rec, err = scanSyncRecord(r.pool.QueryRow(ctx, query, targetOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		err = apperrors.NotFound("sync record", targetOrderID)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get sync record %s: %w", targetOrderID, err)
	}
	return rec, nil
}

// ListStalled returns records that have not reached close_order, oldest first.
func (r *SyncRecordRepository) ListStalled(ctx context.Context, limit int) (records []domain.SyncRecord, err error) {
	if limit <= 0 {
		limit = repository.DefaultStalledLimit
	}
	query := `SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE step <> $1
		ORDER BY created_at ASC, target_order_id ASC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListStalled", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, string(domain.StepCloseOrder), limit)
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

func scanSyncRecord(row pgx.Row) (*domain.SyncRecord, error) {
	var (
		rec         domain.SyncRecord
		step        string
		paymentKind string
		snapshot    *string
		amount      string
		discount    *string
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
		&rec.CreateOrderCorrelationID,
		&rec.AddPaymentCorrelationID,
		&rec.CloseOrderCorrelationID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Step = domain.Step(step)
	rec.PaymentKind = domain.PaymentKind(paymentKind)
	if snapshot != nil {
		rec.OrderSnapshot = []byte(*snapshot)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if discount != nil {
		d, err := decimal.NewFromString(*discount)
		if err != nil {
			return nil, fmt.Errorf("parse discount %q: %w", *discount, err)
		}
		rec.Discount = decimal.NewNullDecimal(d)
	}
	return &rec, nil
}

func snapshotArg(raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
