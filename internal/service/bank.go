// Package service provides the business logic layer (use cases).
// BankService handles accounts, transfers, transactions, insights,
// tickets and the audit log over the hosted store.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/observability"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var bankTracer = otel.Tracer("service/bank")

// BankService orchestrates back-office operations via the hosted store.
type BankService struct {
	store       port.BankStore
	metrics     *observability.Metrics
	logger      *zap.Logger
	accounts    port.Cache[*domain.Account]
	minTransfer float64
	locks       *lockRegistry
}

// NewBankService creates a new bank service. accountCache holds
// account-number lookups; minTransfer is the smallest accepted transfer
// amount.
func NewBankService(store port.BankStore, accountCache port.Cache[*domain.Account], metrics *observability.Metrics, minTransfer float64, logger *zap.Logger) *BankService {
	return &BankService{
		store:       store,
		metrics:     metrics,
		logger:      logger,
		accounts:    accountCache,
		minTransfer: minTransfer,
		locks:       newLockRegistry(),
	}
}

// ============================================================
// Accounts
// ============================================================

func (s *BankService) ListAccounts(ctx context.Context, customerID string) ([]domain.Account, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	return s.store.ListAccounts(ctx, customerID)
}

func (s *BankService) GetAccount(ctx context.Context, customerID, accountID string) (*domain.Account, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.GetAccount")
	defer span.End()

	return s.store.GetAccount(ctx, customerID, accountID)
}

// CreateAccount opens an account for a customer (back-office only).
// The account number follows the ACC-<timestamp>-<random> convention.
func (s *BankService) CreateAccount(ctx context.Context, customerID, accountType string) (*domain.Account, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.CreateAccount")
	defer span.End()

	if customerID == "" {
		return nil, &domain.ErrValidation{Field: "customer_id", Message: "required"}
	}
	if accountType == "" {
		accountType = "checking"
	}

	account := &domain.Account{
		ID:            uuid.New().String(),
		CustomerID:    customerID,
		AccountNumber: generateAccountNumber(),
		AccountType:   accountType,
		Balance:       0,
		Currency:      "USD",
		Status:        domain.AccountStatusActive,
		CreatedAt:     time.Now(),
	}

	created, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "system", "account.created", "account", created.ID,
		fmt.Sprintf("account %s opened for customer %s", created.AccountNumber, customerID))

	return created, nil
}

// ============================================================
// Transactions
// ============================================================

func (s *BankService) ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ListTransactions")
	defer span.End()

	return s.store.ListTransactions(ctx, accountID, page, pageSize)
}

func (s *BankService) ListCustomerTransactions(ctx context.Context, customerID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ListCustomerTransactions")
	defer span.End()

	return s.store.ListCustomerTransactions(ctx, customerID, page, pageSize)
}

func (s *BankService) GetTransactionSummary(ctx context.Context, customerID string) (*domain.TransactionSummary, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.GetTransactionSummary")
	defer span.End()

	return s.store.GetTransactionSummary(ctx, customerID)
}

// ============================================================
// Audit
// ============================================================

func (s *BankService) ListAuditEvents(ctx context.Context, page, pageSize int) ([]domain.AuditEvent, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ListAuditEvents")
	defer span.End()

	return s.store.ListAuditEvents(ctx, page, pageSize)
}

// recordAudit appends an audit event. Audit failures never fail the
// caller's operation; they are logged and that is all.
func (s *BankService) recordAudit(ctx context.Context, actor, action, entity, entityID, detail string) {
	ev := &domain.AuditEvent{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertAuditEvent(ctx, ev); err != nil {
		s.logger.Error("failed to record audit event",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

// ============================================================
// Identifier helpers
// ============================================================

func generateAccountNumber() string {
	return fmt.Sprintf("ACC-%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

func generateReferenceNumber() string {
	return fmt.Sprintf("TXN-%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
}

// ============================================================
// Per-account lock registry
// ============================================================

// lockRegistry hands out one mutex per account ID so concurrent
// transfers touching the same account serialize their
// read-check-write sequence within this process.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) get(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

// lockPair locks both account mutexes in account-ID order, which keeps
// two opposite-direction transfers from deadlocking. The returned
// function unlocks both.
func (r *lockRegistry) lockPair(a, b string) func() {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	fm, sm := r.get(first), r.get(second)
	fm.Lock()
	sm.Lock()
	return func() {
		sm.Unlock()
		fm.Unlock()
	}
}
