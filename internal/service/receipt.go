package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/logger"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/tracing"
)

// processReceipt runs the saga for one receipt and reports how it ended.
// It never returns an error: every failure is logged here and turned into
// an outcome.
func (s *SyncService) processReceipt(ctx context.Context, b *batch, r *domain.SourceReceipt) (outcome domain.Outcome) {
	receiptID := r.ID.String()
	ctx = logger.WithReceiptID(ctx, receiptID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "sync.receipt", attribute.String("sync.receipt_id", receiptID))
	defer func() {
		span.SetAttributes(attribute.String("sync.outcome", string(outcome)))
		span.End()
	}()
	log := logger.WithContext(ctx, s.logger)

	if err := r.Validate(); err != nil {
		log.WarnContext(ctx, "receipt failed validation, skipping", slog.String("error", err.Error()))
		return domain.OutcomeInvalid
	}

	exists, err := s.store.ExistsBySourceReceiptID(ctx, receiptID)
	if err != nil {
		log.ErrorContext(ctx, "failed to check sync state", slog.String("error", err.Error()))
		return domain.OutcomeFailed
	}
	if exists {
		log.InfoContext(ctx, "receipt already synced, skipping")
		return domain.OutcomeDuplicate
	}

	items, err := s.mapItems(ctx, log, b, r)
	if err != nil {
		log.ErrorContext(ctx, "failed to map receipt items", slog.String("error", err.Error()))
		return domain.OutcomeFailed
	}
	if len(items) == 0 {
		log.WarnContext(ctx, "no receipt items matched the syrve catalog, skipping",
			slog.Int("items", len(r.Items)),
		)
		return domain.OutcomeUnmapped
	}

	payment, ok := domain.BuildPayment(r, s.cfg.Payments)
	if !ok {
		log.WarnContext(ctx, "receipt has no payment transactions, skipping")
		return domain.OutcomeInvalid
	}
	draft := domain.OrderDraft{
		Items:    items,
		Discount: domain.BuildDiscount(r.DiscountAmount, s.cfg.Discount),
		Payment:  payment,
	}

	// From create-order on, Syrve calls and store writes ignore cancellation.
	// Only the settle delay observes ctx, after the record is saved.
	work := context.WithoutCancel(ctx)

	rec, ok := s.createOrder(work, log, b, r, draft)
	if !ok {
		return domain.OutcomeFailed
	}
	log = log.With(slog.String("order_id", rec.TargetOrderID))

	if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
		log.ErrorContext(ctx, "interrupted while waiting to add payment", slog.String("error", err.Error()))
		s.publishStalled(ctx, log, b, rec, err)
		return domain.OutcomeStalled
	}

	if o, ok := s.advance(work, log, b, rec, domain.StepAddPayment, func(ctx context.Context) (string, error) {
		return s.target.AddPayments(ctx, b.orgID, rec.TargetOrderID, []domain.Payment{draft.Payment})
	}); !ok {
		return o
	}

	if o, ok := s.advance(work, log, b, rec, domain.StepCloseOrder, func(ctx context.Context) (string, error) {
		return s.target.CloseOrder(ctx, b.orgID, rec.TargetOrderID)
	}); !ok {
		return o
	}

	log.InfoContext(ctx, "receipt synced",
		slog.String("payment_kind", string(payment.Kind)),
		slog.String("amount", payment.Sum.String()),
	)
	if s.events != nil {
		if err := s.events.PublishReceiptSynced(work, b.runID, rec); err != nil {
			log.WarnContext(ctx, "failed to publish receipt.synced event", slog.String("error", err.Error()))
		}
	}
	return domain.OutcomeCompleted
}

// mapItems resolves every receipt line to a Syrve product. Malformed lines
// and lines whose SmartKasa product is missing or has no catalog match are
// dropped. Any other lookup error fails the receipt.
func (s *SyncService) mapItems(ctx context.Context, log *slog.Logger, b *batch, r *domain.SourceReceipt) ([]domain.MappedOrderItem, error) {
	items := make([]domain.MappedOrderItem, 0, len(r.Items))
	for i, item := range r.Items {
		if err := item.Validate(); err != nil {
			log.WarnContext(ctx, "malformed receipt line, omitting item",
				slog.Int("line", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		product, err := s.sourceProduct(ctx, b, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			log.WarnContext(ctx, "smartkasa product not found, omitting item",
				slog.String("product_id", item.ProductID.String()),
			)
			continue
		}

		target, ok := b.catalog.FindByCode(product.AlterCode)
		if !ok {
			log.WarnContext(ctx, "no syrve product with matching code, omitting item",
				slog.String("product_id", item.ProductID.String()),
				slog.String("code", product.AlterCode),
				slog.String("name", product.DisplayName),
			)
			continue
		}
		items = append(items, domain.NewMappedOrderItem(item, target))
	}
	return items, nil
}

// sourceProduct fetches a SmartKasa product at most once per run. A nil
// product means it does not exist.
func (s *SyncService) sourceProduct(ctx context.Context, b *batch, id domain.ExternalID) (*domain.SourceProduct, error) {
	if p, ok := b.products[id]; ok {
		return p, nil
	}
	product, found, err := s.source.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	var p *domain.SourceProduct
	if found {
		p = &product
	}
	b.products[id] = p
	return p, nil
}

// createOrder runs phase one and persists the new record. Nothing is stored
// when the Syrve call fails.
func (s *SyncService) createOrder(ctx context.Context, log *slog.Logger, b *batch, r *domain.SourceReceipt, draft domain.OrderDraft) (*domain.SyncRecord, bool) {
	var created domain.CreatedOrder
	err := s.phase(ctx, domain.StepCreateOrder, s.cfg.CreateOrderTimeout, func(ctx context.Context) error {
		var err error
		created, err = s.target.CreateOrder(ctx, b.orgID, b.terminalID, draft)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to create syrve order", slog.String("error", err.Error()))
		return nil, false
	}

	rec := domain.NewSyncRecord(r, created, draft.Payment)
	if err := s.store.Upsert(ctx, rec); err != nil {
		log.ErrorContext(ctx, "syrve order created but sync record not saved",
			slog.String("order_id", created.OrderID),
			slog.String("correlation_id", created.CorrelationID),
			slog.String("order", string(created.Order)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	log.InfoContext(ctx, "syrve order created",
		slog.String("order_id", created.OrderID),
		slog.String("creation_status", created.CreationStatus),
		slog.String("correlation_id", created.CorrelationID),
	)
	return rec, true
}

// advance runs one follow-up phase and moves rec to step. A Syrve failure
// leaves the record at its current step and reports it stalled; a store
// failure after Syrve accepted the call fails the receipt.
func (s *SyncService) advance(ctx context.Context, log *slog.Logger, b *batch, rec *domain.SyncRecord, step domain.Step, call func(context.Context) (string, error)) (domain.Outcome, bool) {
	var correlationID string
	err := s.phase(ctx, step, s.timeoutFor(step), func(ctx context.Context) error {
		var err error
		correlationID, err = call(ctx)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "syrve phase failed, sync record stalled",
			slog.String("phase", string(step)),
			slog.String("step", string(rec.Step)),
			slog.String("error", err.Error()),
		)
		s.publishStalled(ctx, log, b, rec, err)
		return domain.OutcomeStalled, false
	}

	if err := s.store.AdvanceStep(ctx, rec.TargetOrderID, step); err != nil {
		log.ErrorContext(ctx, "syrve phase succeeded but step not saved",
			slog.String("phase", string(step)),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return domain.OutcomeFailed, false
	}
	rec.Step = step

	if correlationID != "" {
		if err := s.store.SetCorrelationID(ctx, rec.TargetOrderID, step, correlationID); err != nil {
			log.ErrorContext(ctx, "syrve phase succeeded but correlation id not saved",
				slog.String("phase", string(step)),
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			return domain.OutcomeFailed, false
		}
		id := correlationID
		switch step {
		case domain.StepAddPayment:
			rec.AddPaymentCorrelationID = &id
		case domain.StepCloseOrder:
			rec.CloseOrderCorrelationID = &id
		}
	}

	log.InfoContext(ctx, "syrve phase completed",
		slog.String("phase", string(step)),
		slog.String("correlation_id", correlationID),
	)
	return "", true
}

// phase runs fn under the phase timeout inside its own span and records
// its duration.
func (s *SyncService) phase(ctx context.Context, step domain.Step, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "syrve."+string(step))
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.metrics.observePhase(step, time.Since(start).Seconds(), err)
	tracing.EndSpan(span, err)
	return err
}

func (s *SyncService) timeoutFor(step domain.Step) time.Duration {
	switch step {
	case domain.StepAddPayment:
		return s.cfg.AddPaymentTimeout
	case domain.StepCloseOrder:
		return s.cfg.CloseOrderTimeout
	}
	return s.cfg.CreateOrderTimeout
}

func (s *SyncService) publishStalled(ctx context.Context, log *slog.Logger, b *batch, rec *domain.SyncRecord, cause error) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReceiptStalled(context.WithoutCancel(ctx), b.runID, rec, cause); err != nil {
		log.WarnContext(ctx, "failed to publish receipt.stalled event", slog.String("error", err.Error()))
	}
}
