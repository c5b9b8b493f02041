package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Accounts — reads go through retry + breaker; the balance write is a
// single conditional PATCH and is never retried.
// ============================================================

func (c *Client) ListAccounts(ctx context.Context, customerID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListAccounts")
	defer span.End()

	path := fmt.Sprintf("accounts?customer_id=eq.%s&order=created_at.asc", url.QueryEscape(customerID))
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/accounts", Err: err}
	}
	if emptyResult(body) {
		return []domain.Account{}, nil
	}

	var rows []domain.Account
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return rows, nil
}

func (c *Client) GetAccount(ctx context.Context, customerID, accountID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetAccount")
	defer span.End()

	path := fmt.Sprintf("accounts?customer_id=eq.%s&id=eq.%s&limit=1",
		url.QueryEscape(customerID), url.QueryEscape(accountID))
	return c.fetchOneAccount(ctx, path, accountID)
}

// GetAccountByOwner resolves the owner's primary active account. Inactive
// and frozen accounts are filtered out at the store, so a blocked sender
// surfaces as not-found, exactly like a missing one.
func (c *Client) GetAccountByOwner(ctx context.Context, customerID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetAccountByOwner")
	defer span.End()

	path := fmt.Sprintf("accounts?customer_id=eq.%s&status=eq.active&order=created_at.asc&limit=1",
		url.QueryEscape(customerID))
	return c.fetchOneAccount(ctx, path, customerID)
}

// GetAccountByNumber resolves an active account by its ACC-... number.
func (c *Client) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetAccountByNumber")
	defer span.End()

	path := fmt.Sprintf("accounts?account_number=eq.%s&status=eq.active&limit=1",
		url.QueryEscape(accountNumber))
	return c.fetchOneAccount(ctx, path, accountNumber)
}

func (c *Client) fetchOneAccount(ctx context.Context, path, id string) (*domain.Account, error) {
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/accounts", Err: err}
	}
	if emptyResult(body) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}

	var rows []domain.Account
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.CreateAccount")
	defer span.End()

	body, err := c.doPost(ctx, "accounts", account)
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "create_account", Err: err}
	}

	var rows []domain.Account
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		// Insert succeeded but the representation did not come back.
		return account, nil
	}
	return &rows[0], nil
}

// UpdateAccountBalance sets the balance to newBalance only if the row
// still holds oldBalance. The balance filter on the PATCH makes the
// update a compare-and-swap: a concurrent writer that got there first
// changes the balance, the filter matches zero rows, and this call fails
// without mutating anything.
func (c *Client) UpdateAccountBalance(ctx context.Context, accountID string, oldBalance, newBalance float64) error {
	ctx, span := tracer.Start(ctx, "Postgrest.UpdateAccountBalance")
	defer span.End()

	path := fmt.Sprintf("accounts?id=eq.%s&balance=eq.%s",
		url.QueryEscape(accountID), strconv.FormatFloat(oldBalance, 'f', -1, 64))

	body, err := c.doPatch(ctx, path, map[string]any{"balance": newBalance}, true)
	if err != nil {
		return &domain.ErrPersistence{Op: "update_balance", Err: err}
	}
	if emptyResult(body) {
		return &domain.ErrPersistence{
			Op:  "update_balance",
			Err: fmt.Errorf("account %s: balance changed concurrently (expected %.2f)", accountID, oldBalance),
		}
	}

	c.logger.Info("postgrest: balance updated",
		zap.String("account_id", accountID),
		zap.Float64("old_balance", oldBalance),
		zap.Float64("new_balance", newBalance),
	)
	return nil
}
