package domain

import "time"

// ============================================================
// Accounts
// ============================================================

// Account statuses as stored in the accounts table.
const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	AccountStatusFrozen   = "frozen"
)

// Account represents a customer bank account. The balance is only
// mutated through validated debit/credit operations in the transfer
// engine; it never goes negative under normal operation.
type Account struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	AccountNumber string    `json:"account_number"` // ACC-<timestamp>-<random>
	AccountType   string    `json:"account_type"`
	Balance       float64   `json:"balance"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// ============================================================
// Transactions (ledger)
// ============================================================

// Transaction types and statuses.
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeTransfer   = "transfer"
	TxTypePayment    = "payment"

	TxStatusCompleted = "completed"
	TxStatusPending   = "pending"
	TxStatusFailed    = "failed"
)

// Transaction is one ledger leg. A transfer produces two legs sharing
// one reference number. Legs are immutable after creation.
type Transaction struct {
	ID                    string         `json:"id"`
	AccountID             string         `json:"account_id"`
	CustomerID            string         `json:"customer_id"`
	Type                  string         `json:"type"`
	Amount                float64        `json:"amount"` // always positive
	BalanceAfter          float64        `json:"balance_after"`
	Status                string         `json:"status"`
	ReferenceNumber       string         `json:"reference_number"` // TXN-<timestamp>-<random>
	CounterpartyAccountID string         `json:"counterparty_account_id,omitempty"`
	Description           string         `json:"description,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	Date                  time.Time      `json:"date"`
}

// TransactionSummary provides aggregated transaction data for a customer.
type TransactionSummary struct {
	TotalCredits float64        `json:"total_credits"`
	TotalDebits  float64        `json:"total_debits"`
	Net          float64        `json:"net"`
	Count        int            `json:"count"`
	Period       *SummaryPeriod `json:"period,omitempty"`
}

// SummaryPeriod represents the date range covered by a summary.
type SummaryPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ============================================================
// Transfers
// ============================================================

// TransferRequest is the caller-supplied instruction for a funds movement.
type TransferRequest struct {
	RecipientAccountNumber string  `json:"recipient_account_number"`
	Amount                 float64 `json:"amount"`
	Description            string  `json:"description,omitempty"`
}

// TransferResult is returned after a successful transfer. The two ledger
// legs share the reference number.
type TransferResult struct {
	ReferenceNumber     string  `json:"reference_number"`
	SenderNewBalance    float64 `json:"sender_new_balance"`
	RecipientNewBalance float64 `json:"recipient_new_balance"`
}
