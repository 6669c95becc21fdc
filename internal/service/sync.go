package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/logger"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/tracing"
)

const tracerName = "github.com/Swed0ua/Integration-SK-Surve/internal/service"

// SourceClient is the SmartKasa API as consumed by the saga.
type SourceClient interface {
	Authenticate(ctx context.Context) error
	// ListReceipts returns the decoded receipts and how many entries it
	// had to skip because they could not be decoded.
	ListReceipts(ctx context.Context, from, to *time.Time) ([]domain.SourceReceipt, int, error)
	GetProduct(ctx context.Context, id domain.ExternalID) (domain.SourceProduct, bool, error)
}

// TargetClient is the Syrve API as consumed by the saga.
type TargetClient interface {
	Authenticate(ctx context.Context) error
	OrganizationID(ctx context.Context) (string, error)
	TerminalGroupID(ctx context.Context, orgID string) (string, error)
	Catalog(ctx context.Context, orgID string) (*domain.Catalog, error)
	CreateOrder(ctx context.Context, orgID, terminalGroupID string, draft domain.OrderDraft) (domain.CreatedOrder, error)
	AddPayments(ctx context.Context, orgID, orderID string, payments []domain.Payment) (string, error)
	CloseOrder(ctx context.Context, orgID, orderID string) (string, error)
}

// EventPublisher announces saga progress.
type EventPublisher interface {
	PublishReceiptSynced(ctx context.Context, runID string, rec *domain.SyncRecord) error
	PublishReceiptStalled(ctx context.Context, runID string, rec *domain.SyncRecord, cause error) error
	PublishRunCompleted(ctx context.Context, summary *domain.RunSummary) error
}

// SnapshotWriter stores the raw fetched batch.
type SnapshotWriter interface {
	Write(runID string, receipts []domain.SourceReceipt) (string, error)
}

// SyncConfig holds the settings the saga needs from configuration.
type SyncConfig struct {
	Payments           domain.PaymentSettings
	Discount           domain.DiscountSettings
	SettleDelay        time.Duration
	CreateOrderTimeout time.Duration
	AddPaymentTimeout  time.Duration
	CloseOrderTimeout  time.Duration
}

// Option configures optional SyncService collaborators.
type Option func(*SyncService)

// WithEvents publishes saga events through p.
func WithEvents(p EventPublisher) Option {
	return func(s *SyncService) { s.events = p }
}

// WithSnapshots writes the fetched batch through w.
func WithSnapshots(w SnapshotWriter) Option {
	return func(s *SyncService) { s.snapshots = w }
}

// WithMetrics records saga metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *SyncService) { s.metrics = m }
}

// SyncService runs the receipt-to-order saga: create order, add payment,
// close order, persisting progress after each phase.
type SyncService struct {
	source    SourceClient
	target    TargetClient
	store     repository.SyncRecordRepository
	events    EventPublisher
	snapshots SnapshotWriter
	metrics   *Metrics
	cfg       SyncConfig
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService creates a new sync service.
func NewSyncService(source SourceClient, target TargetClient, store repository.SyncRecordRepository, cfg SyncConfig, logger *slog.Logger, opts ...Option) *SyncService {
	s := &SyncService{
		source: source,
		target: target,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// batch is the target-side context resolved once per run.
type batch struct {
	runID      string
	orgID      string
	terminalID string
	catalog    *domain.Catalog
	products   map[domain.ExternalID]*domain.SourceProduct
}

// Run fetches the receipts created inside window and syncs each one that has
// no sync record yet. Receipts are processed one at a time in fetch order.
// Failures while setting up the batch abort the run; failures inside one
// receipt are logged, counted and do not stop the others.
func (s *SyncService) Run(ctx context.Context, window domain.DateWindow) (summary *domain.RunSummary, err error) {
	summary = domain.NewRunSummary(s.now())
	summary.Window = window.String()

	ctx = logger.WithRunID(ctx, summary.RunID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "sync.run",
		attribute.String("sync.run_id", summary.RunID),
		attribute.String("sync.window", summary.Window),
	)
	log := logger.WithContext(ctx, s.logger)

	defer func() {
		summary.Finish(s.now())
		tracing.EndSpan(span, err)
		s.metrics.observeRun(summary, err)
		if err == nil {
			s.publishRunCompleted(ctx, log, summary)
		}
	}()

	log.InfoContext(ctx, "sync run started", slog.String("window", summary.Window))

	if err = s.source.Authenticate(ctx); err != nil {
		return summary, fmt.Errorf("authenticate smartkasa: %w", err)
	}
	receipts, undecodable, err := s.source.ListReceipts(ctx, window.From, window.To)
	if err != nil {
		return summary, fmt.Errorf("list receipts: %w", err)
	}
	summary.Fetched = len(receipts) + undecodable
	for range undecodable {
		summary.Reject()
		s.metrics.observeOutcome(domain.OutcomeInvalid)
	}
	log.InfoContext(ctx, "receipts fetched",
		slog.Int("count", len(receipts)),
		slog.Int("undecodable", undecodable),
	)

	s.writeSnapshot(ctx, log, summary.RunID, receipts)

	inWindow := s.filter(ctx, log, receipts, window, summary)
	summary.InWindow = len(inWindow)
	if len(inWindow) == 0 {
		log.WarnContext(ctx, "no receipts in window, nothing to sync", slog.String("window", summary.Window))
		return summary, nil
	}

	b, err := s.prepare(ctx, summary.RunID)
	if err != nil {
		return summary, err
	}
	log.InfoContext(ctx, "syrve context resolved",
		slog.String("organization_id", b.orgID),
		slog.String("terminal_group_id", b.terminalID),
		slog.Int("catalog_size", b.catalog.Len()),
	)

	for i := range inWindow {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("sync run interrupted after %d of %d receipts: %w", summary.Processed(), summary.InWindow, ctxErr)
			return summary, err
		}
		outcome := s.processReceipt(ctx, b, &inWindow[i])
		summary.Record(outcome)
		s.metrics.observeOutcome(outcome)
	}

	log.InfoContext(ctx, "sync run finished",
		slog.Int("fetched", summary.Fetched),
		slog.Int("in_window", summary.InWindow),
		slog.Int("completed", summary.Completed),
		slog.Int("stalled", summary.Stalled),
		slog.Int("failed", summary.Failed),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("unmapped", summary.Unmapped),
		slog.Int("invalid", summary.Invalid),
		slog.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

// filter keeps receipts created inside window. Receipts whose creation time
// cannot be parsed are counted rejected.
func (s *SyncService) filter(ctx context.Context, log *slog.Logger, receipts []domain.SourceReceipt, window domain.DateWindow, summary *domain.RunSummary) []domain.SourceReceipt {
	out := make([]domain.SourceReceipt, 0, len(receipts))
	for i := range receipts {
		r := &receipts[i]
		createdAt, err := r.CreatedAt()
		if err != nil {
			log.WarnContext(ctx, "receipt has unreadable created_at, skipping",
				slog.String(logger.AttrReceiptID, r.ID.String()),
				slog.String("created_at", r.CreatedAtRaw),
			)
			summary.Reject()
			s.metrics.observeOutcome(domain.OutcomeInvalid)
			continue
		}
		if window.Contains(createdAt) {
			out = append(out, *r)
		}
	}
	return out
}

// prepare authenticates to Syrve and resolves the organization, terminal
// group and catalog shared by the whole batch.
func (s *SyncService) prepare(ctx context.Context, runID string) (*batch, error) {
	if err := s.target.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate syrve: %w", err)
	}
	orgID, err := s.target.OrganizationID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve organization: %w", err)
	}
	terminalID, err := s.target.TerminalGroupID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve terminal group: %w", err)
	}
	catalog, err := s.target.Catalog(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return &batch{
		runID:      runID,
		orgID:      orgID,
		terminalID: terminalID,
		catalog:    catalog,
		products:   make(map[domain.ExternalID]*domain.SourceProduct),
	}, nil
}

func (s *SyncService) writeSnapshot(ctx context.Context, log *slog.Logger, runID string, receipts []domain.SourceReceipt) {
	if s.snapshots == nil {
		return
	}
	path, err := s.snapshots.Write(runID, receipts)
	if err != nil {
		log.WarnContext(ctx, "failed to write receipt snapshot", slog.String("error", err.Error()))
		return
	}
	if path != "" {
		log.DebugContext(ctx, "receipt snapshot written", slog.String("path", path))
	}
}

func (s *SyncService) publishRunCompleted(ctx context.Context, log *slog.Logger, summary *domain.RunSummary) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRunCompleted(ctx, summary); err != nil {
		log.WarnContext(ctx, "failed to publish run.completed event", slog.String("error", err.Error()))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
