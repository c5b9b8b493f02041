package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/cache"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/observability"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory BankStore. UpdateAccountBalance mimics the
// hosted store's conditional update: it only applies when the current
// balance matches oldBalance.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account // by ID
	tickets  map[string]*domain.Ticket
	ledger   []*domain.Transaction
	audits   []*domain.AuditEvent

	// failBalanceWrite, when set, fails every UpdateAccountBalance for
	// the given account ID. failLedger fails all transaction inserts.
	failBalanceWrite string
	failLedger       bool
}

func newFakeStore(accounts ...*domain.Account) *fakeStore {
	fs := &fakeStore{
		accounts: make(map[string]*domain.Account),
		tickets:  make(map[string]*domain.Ticket),
	}
	for _, a := range accounts {
		cp := *a
		fs.accounts[a.ID] = &cp
	}
	return fs
}

func (f *fakeStore) account(id string) *domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.accounts[id]
	return &cp
}

func (f *fakeStore) ListAccounts(_ context.Context, customerID string) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Account
	for _, a := range f.accounts {
		if a.CustomerID == customerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAccountByOwner(_ context.Context, customerID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.CustomerID == customerID && a.Status == domain.AccountStatusActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: customerID}
}

func (f *fakeStore) GetAccountByNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.AccountNumber == accountNumber && a.Status == domain.AccountStatusActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: accountNumber}
}

func (f *fakeStore) GetAccount(_ context.Context, customerID, accountID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok || a.CustomerID != customerID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) CreateAccount(_ context.Context, account *domain.Account) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *account
	f.accounts[account.ID] = &cp
	return account, nil
}

func (f *fakeStore) UpdateAccountBalance(_ context.Context, accountID string, oldBalance, newBalance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBalanceWrite == accountID {
		return &domain.ErrPersistence{Op: "update balance", Err: fmt.Errorf("store unavailable")}
	}
	a, ok := f.accounts[accountID]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	if a.Balance != oldBalance {
		return &domain.ErrPersistence{Op: "update balance", Err: fmt.Errorf("balance changed concurrently")}
	}
	a.Balance = newBalance
	return nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLedger {
		return &domain.ErrPersistence{Op: "insert transaction", Err: fmt.Errorf("store unavailable")}
	}
	cp := *tx
	f.ledger = append(f.ledger, &cp)
	return nil
}

func (f *fakeStore) ListTransactions(context.Context, string, int, int) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) ListCustomerTransactions(context.Context, string, int, int) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) ListRecentTransactions(context.Context, string, int) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) GetTransactionSummary(context.Context, string) (*domain.TransactionSummary, error) {
	return &domain.TransactionSummary{}, nil
}

func (f *fakeStore) GetDailyVolumes(context.Context, string, int) ([]domain.DailyVolume, error) {
	return nil, nil
}

func (f *fakeStore) GetMonthlyVolumes(context.Context, string, int) ([]domain.MonthlyVolume, error) {
	return nil, nil
}

func (f *fakeStore) GetUserByEmail(context.Context, string) (*domain.User, error) {
	return nil, &domain.ErrNotFound{Resource: "user"}
}

func (f *fakeStore) GetUserByID(context.Context, string) (*domain.User, error) {
	return nil, &domain.ErrNotFound{Resource: "user"}
}

func (f *fakeStore) GetCredentials(context.Context, string) (*domain.Credentials, error) {
	return nil, &domain.ErrNotFound{Resource: "credentials"}
}

func (f *fakeStore) UpdateCredentials(context.Context, string, map[string]any) error { return nil }

func (f *fakeStore) StoreRefreshToken(context.Context, string, string, time.Time) error { return nil }

func (f *fakeStore) GetRefreshToken(context.Context, string) (*domain.RefreshToken, error) {
	return nil, nil
}

func (f *fakeStore) RevokeRefreshToken(context.Context, string) error { return nil }

func (f *fakeStore) RevokeAllRefreshTokens(context.Context, string) error { return nil }

func (f *fakeStore) CreateTicket(_ context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tickets[t.ID] = &cp
	return t, nil
}

func (f *fakeStore) GetTicket(_ context.Context, ticketID string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTickets(_ context.Context, customerID string, _, _ int) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, t := range f.tickets {
		if customerID == "" || t.CustomerID == customerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateTicketStatus(_ context.Context, ticketID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
	}
	t.Status = status
	return nil
}

func (f *fakeStore) InsertAuditEvent(_ context.Context, ev *domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.audits = append(f.audits, &cp)
	return nil
}

func (f *fakeStore) ListAuditEvents(context.Context, int, int) ([]domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditEvent, 0, len(f.audits))
	for _, ev := range f.audits {
		out = append(out, *ev)
	}
	return out, nil
}

// ============================================================
// Helpers
// ============================================================

func senderAccount(balance float64) *domain.Account {
	return &domain.Account{
		ID:            "acct-sender",
		CustomerID:    "cust-sender",
		AccountNumber: "ACC-1000-0001",
		Balance:       balance,
		Status:        domain.AccountStatusActive,
	}
}

func recipientAccount(balance float64) *domain.Account {
	return &domain.Account{
		ID:            "acct-recipient",
		CustomerID:    "cust-recipient",
		AccountNumber: "ACC-1000-0002",
		Balance:       balance,
		Status:        domain.AccountStatusActive,
	}
}

func newTestService(store port.BankStore) (*BankService, *observability.Metrics) {
	metrics := observability.NewMetrics()
	accountCache := cache.New[*domain.Account](time.Minute)
	svc := NewBankService(store, accountCache, metrics, 1.00, zap.NewNop())
	return svc, metrics
}

// ============================================================
// Tests
// ============================================================

func TestExecuteTransfer_Success(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	svc, metrics := newTestService(store)

	result, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 125.50,
		Description:            "rent",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 374.50, result.SenderNewBalance, 1e-9)
	assert.InDelta(t, 225.50, result.RecipientNewBalance, 1e-9)
	assert.Regexp(t, `^TXN-\d+-\d{6}$`, result.ReferenceNumber)

	assert.InDelta(t, 374.50, store.account("acct-sender").Balance, 1e-9)
	assert.InDelta(t, 225.50, store.account("acct-recipient").Balance, 1e-9)

	snap := metrics.GetTransferSnapshot()
	assert.Equal(t, int64(1), snap.Completed)
	assert.Equal(t, int64(0), snap.Failed)
}

func TestExecuteTransfer_LedgerLegsShareReference(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(0))
	svc, _ := newTestService(store)

	result, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.NoError(t, err)

	require.Len(t, store.ledger, 2)
	out, in := store.ledger[0], store.ledger[1]

	assert.Equal(t, result.ReferenceNumber, out.ReferenceNumber)
	assert.Equal(t, result.ReferenceNumber, in.ReferenceNumber)

	assert.Equal(t, "acct-sender", out.AccountID)
	assert.Equal(t, "acct-recipient", out.CounterpartyAccountID)
	assert.Equal(t, "outgoing", out.Metadata["direction"])
	assert.InDelta(t, 450.0, out.BalanceAfter, 1e-9)

	assert.Equal(t, "acct-recipient", in.AccountID)
	assert.Equal(t, "acct-sender", in.CounterpartyAccountID)
	assert.Equal(t, "incoming", in.Metadata["direction"])
	assert.InDelta(t, 50.0, in.BalanceAfter, 1e-9)

	// Both legs carry the positive amount; direction is in the metadata.
	assert.Equal(t, 50.0, out.Amount)
	assert.Equal(t, 50.0, in.Amount)
	assert.Equal(t, domain.TxTypeTransfer, out.Type)
	assert.Equal(t, domain.TxStatusCompleted, in.Status)
}

func TestExecuteTransfer_ValidationRejections(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		recipient string
		wantErr   any
	}{
		{"zero amount", 0, "ACC-1000-0002", &domain.ErrInvalidAmount{}},
		{"negative amount", -10, "ACC-1000-0002", &domain.ErrInvalidAmount{}},
		{"nan amount", math.NaN(), "ACC-1000-0002", &domain.ErrInvalidAmount{}},
		{"below minimum", 0.50, "ACC-1000-0002", &domain.ErrBelowMinimum{}},
		{"insufficient funds", 10_000, "ACC-1000-0002", &domain.ErrInsufficientFunds{}},
		{"unknown recipient", 50, "ACC-9999-9999", &domain.ErrNotFound{}},
		{"same account", 50, "ACC-1000-0001", &domain.ErrSameAccount{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(senderAccount(500), recipientAccount(100))
			svc, metrics := newTestService(store)

			result, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
				RecipientAccountNumber: tt.recipient,
				Amount:                 tt.amount,
			})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.IsType(t, tt.wantErr, err)

			// Rejections must not touch balances or the ledger.
			assert.Equal(t, 500.0, store.account("acct-sender").Balance)
			assert.Equal(t, 100.0, store.account("acct-recipient").Balance)
			assert.Empty(t, store.ledger)

			snap := metrics.GetTransferSnapshot()
			assert.Equal(t, int64(1), snap.Rejected)
			assert.Equal(t, int64(0), snap.Completed)
		})
	}
}

func TestExecuteTransfer_InsufficientFundsDetail(t *testing.T) {
	store := newFakeStore(senderAccount(30), recipientAccount(0))
	svc, _ := newTestService(store)

	_, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 75,
	})
	require.Error(t, err)

	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 30.0, insufficient.Available)
	assert.Equal(t, 75.0, insufficient.Required)
}

func TestExecuteTransfer_SenderDebitFailure(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	store.failBalanceWrite = "acct-sender"
	svc, metrics := newTestService(store)

	result, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.Error(t, err)
	assert.Nil(t, result)

	var pErr *domain.ErrPersistence
	assert.ErrorAs(t, err, &pErr)

	// Nothing committed, nothing to compensate.
	assert.Equal(t, 500.0, store.account("acct-sender").Balance)
	assert.Equal(t, 100.0, store.account("acct-recipient").Balance)
	assert.Empty(t, store.ledger)

	snap := metrics.GetTransferSnapshot()
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(0), snap.CompensationFailures)
}

func TestExecuteTransfer_RecipientCreditFailureCompensates(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	store.failBalanceWrite = "acct-recipient"
	svc, metrics := newTestService(store)

	_, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.Error(t, err)

	// The sender's debit was restored by the compensating write.
	assert.Equal(t, 500.0, store.account("acct-sender").Balance)
	assert.Equal(t, 100.0, store.account("acct-recipient").Balance)
	assert.Empty(t, store.ledger)

	snap := metrics.GetTransferSnapshot()
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(0), snap.CompensationFailures)
}

func TestExecuteTransfer_CompensationFailureIsCounted(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	svc, metrics := newTestService(&compensationBlockingStore{fakeStore: store})

	_, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.Error(t, err)

	// Sender stays debited: the inconsistency is surfaced via the counter.
	assert.Equal(t, 450.0, store.account("acct-sender").Balance)
	assert.Equal(t, 100.0, store.account("acct-recipient").Balance)
	assert.Empty(t, store.ledger)

	snap := metrics.GetTransferSnapshot()
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.CompensationFailures)
}

// compensationBlockingStore lets the initial debit through, then fails
// every subsequent balance write, covering the worst-case path where
// both the credit and the compensating restore fail.
type compensationBlockingStore struct {
	*fakeStore
	debitDone bool
}

func (s *compensationBlockingStore) UpdateAccountBalance(ctx context.Context, accountID string, oldBalance, newBalance float64) error {
	if !s.debitDone {
		s.debitDone = true
		return s.fakeStore.UpdateAccountBalance(ctx, accountID, oldBalance, newBalance)
	}
	return &domain.ErrPersistence{Op: "update balance", Err: fmt.Errorf("store unavailable")}
}

func TestExecuteTransfer_LedgerFailureDoesNotFailTransfer(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	store.failLedger = true
	svc, metrics := newTestService(store)

	result, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	// Balances committed even though the legs could not be recorded.
	assert.Equal(t, 450.0, store.account("acct-sender").Balance)
	assert.Equal(t, 150.0, store.account("acct-recipient").Balance)

	snap := metrics.GetTransferSnapshot()
	assert.Equal(t, int64(1), snap.Completed)
	assert.Equal(t, int64(2), snap.LedgerWriteFailures)
}

func TestExecuteTransfer_ConcurrentTransfersConserveFunds(t *testing.T) {
	store := newFakeStore(senderAccount(1000), recipientAccount(1000))
	svc, _ := newTestService(store)

	// Opposite-direction transfers between the same two accounts; the
	// ordered pair locking must neither deadlock nor lose an update.
	const rounds = 25
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
				RecipientAccountNumber: "ACC-1000-0002",
				Amount:                 10,
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.ExecuteTransfer(context.Background(), "cust-recipient", &domain.TransferRequest{
				RecipientAccountNumber: "ACC-1000-0001",
				Amount:                 10,
			})
		}()
	}
	wg.Wait()

	sender := store.account("acct-sender")
	recipient := store.account("acct-recipient")

	assert.InDelta(t, 2000.0, sender.Balance+recipient.Balance, 1e-6,
		"total funds must be conserved")
	assert.GreaterOrEqual(t, sender.Balance, 0.0)
	assert.GreaterOrEqual(t, recipient.Balance, 0.0)
}

func TestExecuteTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := newFakeStore(senderAccount(100), recipientAccount(0))
	svc, _ := newTestService(store)

	// 20 concurrent debits of 10 against a balance of 100: exactly the
	// first 10 can succeed.
	const workers = 20
	var wg sync.WaitGroup
	var successes int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
				RecipientAccountNumber: "ACC-1000-0002",
				Amount:                 10,
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), successes)
	assert.Equal(t, 0.0, store.account("acct-sender").Balance)
	assert.Equal(t, 100.0, store.account("acct-recipient").Balance)
}

func TestExecuteTransfer_WritesAuditEvent(t *testing.T) {
	store := newFakeStore(senderAccount(500), recipientAccount(100))
	svc, _ := newTestService(store)

	_, err := svc.ExecuteTransfer(context.Background(), "cust-sender", &domain.TransferRequest{
		RecipientAccountNumber: "ACC-1000-0002",
		Amount:                 50,
	})
	require.NoError(t, err)

	require.Len(t, store.audits, 1)
	assert.Equal(t, "transfer.executed", store.audits[0].Action)
	assert.Equal(t, "cust-sender", store.audits[0].Actor)
}
