package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
)

// ============================================================
// Auth — portal users, credentials, refresh tokens
// ============================================================

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetUserByEmail")
	defer span.End()

	path := fmt.Sprintf("users?email=eq.%s&limit=1", url.QueryEscape(email))
	return c.fetchOneUser(ctx, path, email)
}

func (c *Client) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetUserByID")
	defer span.End()

	path := fmt.Sprintf("users?id=eq.%s&limit=1", url.QueryEscape(userID))
	return c.fetchOneUser(ctx, path, userID)
}

func (c *Client) fetchOneUser(ctx context.Context, path, id string) (*domain.User, error) {
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/users", Err: err}
	}
	if emptyResult(body) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}

	var rows []domain.User
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) GetCredentials(ctx context.Context, userID string) (*domain.Credentials, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetCredentials")
	defer span.End()

	path := fmt.Sprintf("user_credentials?user_id=eq.%s&limit=1", url.QueryEscape(userID))
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/credentials", Err: err}
	}
	if emptyResult(body) {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}

	var rows []domain.Credentials
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}
	return &rows[0], nil
}

func (c *Client) UpdateCredentials(ctx context.Context, userID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Postgrest.UpdateCredentials")
	defer span.End()

	path := fmt.Sprintf("user_credentials?user_id=eq.%s", url.QueryEscape(userID))
	if _, err := c.doPatch(ctx, path, updates, false); err != nil {
		return &domain.ErrPersistence{Op: "update_credentials", Err: err}
	}
	return nil
}

func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgrest.StoreRefreshToken")
	defer span.End()

	row := map[string]any{
		"token_hash": tokenHash,
		"user_id":    userID,
		"expires_at": expiresAt.Format(time.RFC3339),
	}
	if _, err := c.doPost(ctx, "refresh_tokens", row); err != nil {
		return &domain.ErrPersistence{Op: "store_refresh_token", Err: err}
	}
	return nil
}

func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetRefreshToken")
	defer span.End()

	path := fmt.Sprintf("refresh_tokens?token_hash=eq.%s&limit=1", url.QueryEscape(tokenHash))
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/refresh_tokens", Err: err}
	}
	if emptyResult(body) {
		return nil, nil
	}

	var rows []domain.RefreshToken
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "Postgrest.RevokeRefreshToken")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("refresh_tokens?token_hash=eq.%s", url.QueryEscape(tokenHash)))
}

func (c *Client) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Postgrest.RevokeAllRefreshTokens")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("refresh_tokens?user_id=eq.%s", url.QueryEscape(userID)))
}
