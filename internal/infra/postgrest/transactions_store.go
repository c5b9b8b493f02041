package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
)

// ============================================================
// Transactions — ledger reads, one insert per leg, and the daily and
// monthly aggregates the insight heuristics consume.
// ============================================================

// storeTransaction maps the transactions table columns.
type storeTransaction struct {
	ID                    string         `json:"id"`
	AccountID             string         `json:"account_id"`
	CustomerID            string         `json:"customer_id"`
	Type                  string         `json:"type"`
	Amount                float64        `json:"amount"`
	BalanceAfter          float64        `json:"balance_after"`
	Status                string         `json:"status"`
	ReferenceNumber       string         `json:"reference_number"`
	CounterpartyAccountID string         `json:"counterparty_account_id,omitempty"`
	Description           string         `json:"description,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	Date                  string         `json:"date"`
}

func (r storeTransaction) toDomain() domain.Transaction {
	t, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		t, _ = time.Parse("2006-01-02", r.Date)
	}
	return domain.Transaction{
		ID:                    r.ID,
		AccountID:             r.AccountID,
		CustomerID:            r.CustomerID,
		Type:                  r.Type,
		Amount:                r.Amount,
		BalanceAfter:          r.BalanceAfter,
		Status:                r.Status,
		ReferenceNumber:       r.ReferenceNumber,
		CounterpartyAccountID: r.CounterpartyAccountID,
		Description:           r.Description,
		Metadata:              r.Metadata,
		Date:                  t,
	}
}

// InsertTransaction writes one ledger leg. Legs are immutable; there is
// no update path.
func (c *Client) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Postgrest.InsertTransaction")
	defer span.End()

	row := map[string]any{
		"id":               tx.ID,
		"account_id":       tx.AccountID,
		"customer_id":      tx.CustomerID,
		"type":             tx.Type,
		"amount":           tx.Amount,
		"balance_after":    tx.BalanceAfter,
		"status":           tx.Status,
		"reference_number": tx.ReferenceNumber,
		"description":      tx.Description,
		"date":             tx.Date.Format(time.RFC3339),
	}
	if tx.CounterpartyAccountID != "" {
		row["counterparty_account_id"] = tx.CounterpartyAccountID
	}
	if tx.Metadata != nil {
		row["metadata"] = tx.Metadata
	}

	if _, err := c.doPost(ctx, "transactions", row); err != nil {
		return &domain.ErrPersistence{Op: "insert_transaction", Err: err}
	}
	return nil
}

func (c *Client) ListTransactions(ctx context.Context, accountID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListTransactions")
	defer span.End()

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("transactions?account_id=eq.%s&order=date.desc&limit=%d&offset=%d",
		url.QueryEscape(accountID), pageSize, offset)
	return c.fetchTransactions(ctx, path)
}

// ListCustomerTransactions pages through a customer's transactions
// across all their accounts, newest first.
func (c *Client) ListCustomerTransactions(ctx context.Context, customerID string, page, pageSize int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListCustomerTransactions")
	defer span.End()

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("transactions?customer_id=eq.%s&order=date.desc&limit=%d&offset=%d",
		url.QueryEscape(customerID), pageSize, offset)
	return c.fetchTransactions(ctx, path)
}

// ListRecentTransactions returns a customer's transactions from the last
// N days across all their accounts.
func (c *Client) ListRecentTransactions(ctx context.Context, customerID string, days int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListRecentTransactions")
	defer span.End()

	from := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	path := fmt.Sprintf("transactions?customer_id=eq.%s&date=gte.%s&order=date.desc&limit=1000",
		url.QueryEscape(customerID), from)
	return c.fetchTransactions(ctx, path)
}

func (c *Client) fetchTransactions(ctx context.Context, path string) ([]domain.Transaction, error) {
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/transactions", Err: err}
	}
	if emptyResult(body) {
		return []domain.Transaction{}, nil
	}

	var rows []storeTransaction
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetTransactionSummary(ctx context.Context, customerID string) (*domain.TransactionSummary, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetTransactionSummary")
	defer span.End()

	txns, err := c.ListRecentTransactions(ctx, customerID, 365)
	if err != nil {
		return nil, err
	}

	summary := &domain.TransactionSummary{Count: len(txns)}
	for _, t := range txns {
		switch t.Type {
		case domain.TxTypeDeposit:
			summary.TotalCredits += t.Amount
		default:
			summary.TotalDebits += t.Amount
		}
	}
	summary.Net = summary.TotalCredits - summary.TotalDebits

	if len(txns) > 0 {
		summary.Period = &domain.SummaryPeriod{
			From: txns[len(txns)-1].Date.Format("2006-01-02"),
			To:   txns[0].Date.Format("2006-01-02"),
		}
	}
	return summary, nil
}

// GetDailyVolumes groups the last N days of transactions into per-day
// count/amount tuples, oldest first. Days with no activity are omitted,
// matching what the insight heuristics expect.
func (c *Client) GetDailyVolumes(ctx context.Context, customerID string, days int) ([]domain.DailyVolume, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetDailyVolumes")
	defer span.End()

	txns, err := c.ListRecentTransactions(ctx, customerID, days)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*domain.DailyVolume)
	for _, t := range txns {
		day := t.Date.Format("2006-01-02")
		v, ok := byDay[day]
		if !ok {
			v = &domain.DailyVolume{Date: day}
			byDay[day] = v
		}
		v.Count++
		v.Amount += t.Amount
	}

	out := make([]domain.DailyVolume, 0, len(byDay))
	for _, v := range byDay {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// GetMonthlyVolumes groups transactions into per-month aggregates,
// oldest first. Revenue counts deposit legs only.
func (c *Client) GetMonthlyVolumes(ctx context.Context, customerID string, months int) ([]domain.MonthlyVolume, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetMonthlyVolumes")
	defer span.End()

	txns, err := c.ListRecentTransactions(ctx, customerID, months*31)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*domain.MonthlyVolume)
	for _, t := range txns {
		month := t.Date.Format("2006-01")
		v, ok := byMonth[month]
		if !ok {
			v = &domain.MonthlyVolume{Month: month}
			byMonth[month] = v
		}
		v.Transactions++
		if t.Type == domain.TxTypeDeposit {
			v.Revenue += t.Amount
		}
	}

	out := make([]domain.MonthlyVolume, 0, len(byMonth))
	for _, v := range byMonth {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
