package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

// OrderLookup is the read side of the Syrve API used by reconciliation.
type OrderLookup interface {
	Authenticate(ctx context.Context) error
	OrganizationID(ctx context.Context) (string, error)
	OrderByID(ctx context.Context, orgID, orderID string) (domain.OrderStatus, error)
}

// ReconcileResult pairs a stalled record with what Syrve reports for it.
type ReconcileResult struct {
	Record domain.SyncRecord
	Remote domain.OrderStatus
	// Found is false when Syrve does not know the order.
	Found bool
	Error string
}

// ReconcileService reports sagas that stopped before close_order. It never
// changes local or remote state.
type ReconcileService struct {
	store   repository.SyncRecordRepository
	target  OrderLookup
	metrics *Metrics
	logger  *slog.Logger
}

// NewReconcileService creates a new reconcile service. target may be nil
// when only Stalled is used; metrics may be nil.
func NewReconcileService(store repository.SyncRecordRepository, target OrderLookup, metrics *Metrics, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		store:   store,
		target:  target,
		metrics: metrics,
		logger:  logger,
	}
}

// Stalled lists records whose saga has not reached close_order.
func (s *ReconcileService) Stalled(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	records, err := s.store.ListStalled(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled records: %w", err)
	}
	s.metrics.setStalled(len(records))
	return records, nil
}

// Reconcile looks up every stalled record in Syrve. Lookup failures for one
// record are reported in its result; authentication and organization
// failures abort.
func (s *ReconcileService) Reconcile(ctx context.Context, limit int) ([]ReconcileResult, error) {
	if s.target == nil {
		return nil, errors.New("reconcile: no syrve client configured")
	}

	records, err := s.Stalled(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		s.logger.InfoContext(ctx, "no stalled sync records")
		return nil, nil
	}

	if err := s.target.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate syrve: %w", err)
	}
	orgID, err := s.target.OrganizationID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve organization: %w", err)
	}

	results := make([]ReconcileResult, 0, len(records))
	for _, rec := range records {
		res := ReconcileResult{Record: rec}
		status, err := s.target.OrderByID(ctx, orgID, rec.TargetOrderID)
		switch {
		case err == nil:
			res.Remote = status
			res.Found = true
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			res.Error = err.Error()
			s.logger.WarnContext(ctx, "failed to look up syrve order",
				slog.String("order_id", rec.TargetOrderID),
				slog.String("receipt_id", rec.SourceReceiptID),
				slog.String("error", err.Error()),
			)
		}
		results = append(results, res)
	}

	s.logger.InfoContext(ctx, "reconcile finished", slog.Int("stalled", len(records)))
	return results, nil
}
