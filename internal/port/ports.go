// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// AccountStore covers the account operations the transfer engine needs.
// The hosted store guarantees per-row atomicity for a single update but
// no cross-row transactions; UpdateAccountBalance is conditional on the
// previously observed balance so a stale read never overwrites a newer
// write.
type AccountStore interface {
	ListAccounts(ctx context.Context, customerID string) ([]domain.Account, error)
	GetAccountByOwner(ctx context.Context, customerID string) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetAccount(ctx context.Context, customerID, accountID string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID string, oldBalance, newBalance float64) error
}

// TransactionStore covers ledger reads and writes.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]domain.Transaction, error)
	ListCustomerTransactions(ctx context.Context, customerID string, page, pageSize int) ([]domain.Transaction, error)
	ListRecentTransactions(ctx context.Context, customerID string, days int) ([]domain.Transaction, error)
	GetTransactionSummary(ctx context.Context, customerID string) (*domain.TransactionSummary, error)
	GetDailyVolumes(ctx context.Context, customerID string, days int) ([]domain.DailyVolume, error)
	GetMonthlyVolumes(ctx context.Context, customerID string, months int) ([]domain.MonthlyVolume, error)
}

// AuthStore covers portal users, credentials and refresh tokens.
type AuthStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	GetCredentials(ctx context.Context, userID string) (*domain.Credentials, error)
	UpdateCredentials(ctx context.Context, userID string, updates map[string]any) error
	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// TicketStore covers support tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListTickets(ctx context.Context, customerID string, page, pageSize int) ([]domain.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID, status string) error
}

// AuditStore covers the append-only audit log.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, ev *domain.AuditEvent) error
	ListAuditEvents(ctx context.Context, page, pageSize int) ([]domain.AuditEvent, error)
}

// BankStore is the full surface the back office needs from the hosted
// store. Implemented by the PostgREST adapter.
type BankStore interface {
	AccountStore
	TransactionStore
	AuthStore
	TicketStore
	AuditStore
}
