package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
)

// --- Mock SmartKasa ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSource) ListReceipts(ctx context.Context, from, to *time.Time) ([]domain.SourceReceipt, int, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.SourceReceipt), args.Int(1), args.Error(2)
}

func (m *mockSource) GetProduct(ctx context.Context, id domain.ExternalID) (domain.SourceProduct, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.SourceProduct), args.Bool(1), args.Error(2)
}

// --- Mock Syrve ---

type mockTarget struct {
	mock.Mock
}

func (m *mockTarget) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockTarget) OrganizationID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockTarget) TerminalGroupID(ctx context.Context, orgID string) (string, error) {
	args := m.Called(ctx, orgID)
	return args.String(0), args.Error(1)
}

func (m *mockTarget) Catalog(ctx context.Context, orgID string) (*domain.Catalog, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Catalog), args.Error(1)
}

func (m *mockTarget) CreateOrder(ctx context.Context, orgID, terminalGroupID string, draft domain.OrderDraft) (domain.CreatedOrder, error) {
	args := m.Called(ctx, orgID, terminalGroupID, draft)
	return args.Get(0).(domain.CreatedOrder), args.Error(1)
}

func (m *mockTarget) AddPayments(ctx context.Context, orgID, orderID string, payments []domain.Payment) (string, error) {
	args := m.Called(ctx, orgID, orderID, payments)
	return args.String(0), args.Error(1)
}

func (m *mockTarget) CloseOrder(ctx context.Context, orgID, orderID string) (string, error) {
	args := m.Called(ctx, orgID, orderID)
	return args.String(0), args.Error(1)
}

func (m *mockTarget) OrderByID(ctx context.Context, orgID, orderID string) (domain.OrderStatus, error) {
	args := m.Called(ctx, orgID, orderID)
	return args.Get(0).(domain.OrderStatus), args.Error(1)
}

// --- Mock Repository ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ExistsBySourceReceiptID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, rec *domain.SyncRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) AdvanceStep(ctx context.Context, orderID string, step domain.Step) error {
	args := m.Called(ctx, orderID, step)
	return args.Error(0)
}

func (m *mockStore) SetCorrelationID(ctx context.Context, orderID string, phase domain.Step, id string) error {
	args := m.Called(ctx, orderID, phase, id)
	return args.Error(0)
}

func (m *mockStore) GetByTargetOrderID(ctx context.Context, orderID string) (*domain.SyncRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncRecord), args.Error(1)
}

func (m *mockStore) ListStalled(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SyncRecord), args.Error(1)
}

// --- Mock Events ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishReceiptSynced(ctx context.Context, runID string, rec *domain.SyncRecord) error {
	args := m.Called(ctx, runID, rec)
	return args.Error(0)
}

func (m *mockEvents) PublishReceiptStalled(ctx context.Context, runID string, rec *domain.SyncRecord, cause error) error {
	args := m.Called(ctx, runID, rec, cause)
	return args.Error(0)
}

func (m *mockEvents) PublishRunCompleted(ctx context.Context, summary *domain.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

// --- Fake Snapshot Writer ---

type fakeSnapshots struct {
	runID    string
	receipts int
	err      error
}

func (f *fakeSnapshots) Write(runID string, receipts []domain.SourceReceipt) (string, error) {
	f.runID = runID
	f.receipts = len(receipts)
	return "snapshots/receipts-" + runID + ".json", f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
