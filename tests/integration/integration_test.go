package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/config"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/handler"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/cache"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/observability"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/postgrest"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/resilience"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// fakeBackend is a minimal in-memory PostgREST stand-in. It understands
// the eq. filters the store client issues and applies PATCH updates only
// to rows matching every filter, which is what makes the conditional
// balance write behave like the real thing.
type fakeBackend struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tables: make(map[string][]map[string]any)}
}

func (b *fakeBackend) seed(table string, row map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[table] = append(b.tables[table], row)
}

func (b *fakeBackend) rows(table string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.tables[table]))
	copy(out, b.tables[table])
	return out
}

func matches(row map[string]any, filters map[string]string) bool {
	for col, want := range filters {
		got, ok := row[col]
		if !ok {
			return false
		}
		switch v := got.(type) {
		case float64:
			f, err := strconv.ParseFloat(want, 64)
			if err != nil || v != f {
				return false
			}
		default:
			if fmt.Sprintf("%v", got) != want {
				return false
			}
		}
	}
	return true
}

func (b *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

		filters := make(map[string]string)
		for key, vals := range r.URL.Query() {
			if key == "limit" || key == "order" || key == "select" {
				continue
			}
			if len(vals) > 0 && strings.HasPrefix(vals[0], "eq.") {
				filters[key] = strings.TrimPrefix(vals[0], "eq.")
			}
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodGet:
			out := []map[string]any{}
			for _, row := range b.tables[table] {
				if matches(row, filters) {
					out = append(out, row)
				}
			}
			json.NewEncoder(w).Encode(out)

		case http.MethodPost:
			var row map[string]any
			if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.tables[table] = append(b.tables[table], row)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode([]map[string]any{row})

		case http.MethodPatch:
			var updates map[string]any
			if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			out := []map[string]any{}
			for _, row := range b.tables[table] {
				if matches(row, filters) {
					for col, val := range updates {
						row[col] = val
					}
					out = append(out, row)
				}
			}
			json.NewEncoder(w).Encode(out)

		case http.MethodDelete:
			kept := b.tables[table][:0]
			for _, row := range b.tables[table] {
				if !matches(row, filters) {
					kept = append(kept, row)
				}
			}
			b.tables[table] = kept
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// newStack wires the full application against the fake backend.
func newStack(t *testing.T, backend *fakeBackend) http.Handler {
	t.Helper()

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("integration-test")
	resCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	store := postgrest.NewClient(httpClient, server.URL, "anon", "service-role", cb, resCfg, logger)

	bankSvc := service.NewBankService(store, cache.New[*domain.Account](time.Minute), metrics, 1.00, logger)
	authSvc := service.NewAuthService(store, "integration-secret", 15*time.Minute, time.Hour, logger)

	cfg := config.Load()
	return handler.NewRouter(bankSvc, authSvc, metrics, cfg.AllowedOrigins, logger)
}

func seedCustomer(t *testing.T, backend *fakeBackend) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	backend.seed("users", map[string]any{
		"id": "user-1", "email": "alice@bank.test", "name": "Alice",
		"role": "customer", "customer_id": "cust-1", "status": "active",
	})
	backend.seed("user_credentials", map[string]any{
		"user_id": "user-1", "password_hash": string(hash), "failed_attempts": float64(0),
	})
	backend.seed("accounts", map[string]any{
		"id": "acct-1", "customer_id": "cust-1", "account_number": "ACC-1000-0001",
		"account_type": "checking", "balance": float64(500), "currency": "USD", "status": "active",
	})
	backend.seed("accounts", map[string]any{
		"id": "acct-2", "customer_id": "cust-2", "account_number": "ACC-1000-0002",
		"account_type": "checking", "balance": float64(100), "currency": "USD", "status": "active",
	})
}

func login(t *testing.T, router http.Handler, email, password string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("login: decode response: %v", err)
	}
	return resp.AccessToken
}

// TestIntegration_TransferFlow covers login plus a transfer end to end:
// both balance writes land, both ledger legs share one reference.
func TestIntegration_TransferFlow(t *testing.T) {
	backend := newFakeBackend()
	seedCustomer(t, backend)
	router := newStack(t, backend)

	token := login(t, router, "alice@bank.test", "s3cret")

	body, _ := json.Marshal(map[string]any{
		"recipient_account_number": "ACC-1000-0002",
		"amount":                   125.50,
		"description":              "rent",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var result domain.TransferResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ReferenceNumber == "" {
		t.Error("expected a reference number")
	}
	if result.SenderNewBalance != 374.50 {
		t.Errorf("expected sender balance 374.50, got %v", result.SenderNewBalance)
	}
	if result.RecipientNewBalance != 225.50 {
		t.Errorf("expected recipient balance 225.50, got %v", result.RecipientNewBalance)
	}

	for _, row := range backend.rows("accounts") {
		switch row["id"] {
		case "acct-1":
			if row["balance"].(float64) != 374.50 {
				t.Errorf("sender row balance = %v, want 374.50", row["balance"])
			}
		case "acct-2":
			if row["balance"].(float64) != 225.50 {
				t.Errorf("recipient row balance = %v, want 225.50", row["balance"])
			}
		}
	}

	legs := backend.rows("transactions")
	if len(legs) != 2 {
		t.Fatalf("expected 2 ledger legs, got %d", len(legs))
	}
	if legs[0]["reference_number"] != legs[1]["reference_number"] {
		t.Error("ledger legs must share one reference number")
	}
	if legs[0]["reference_number"] != result.ReferenceNumber {
		t.Error("ledger reference must match the result")
	}

	if len(backend.rows("audit_events")) != 1 {
		t.Error("expected one audit event for the transfer")
	}
}

// TestIntegration_TransferRejections checks that rejected transfers
// come back as 400 without touching balances or the ledger.
func TestIntegration_TransferRejections(t *testing.T) {
	backend := newFakeBackend()
	seedCustomer(t, backend)
	router := newStack(t, backend)

	token := login(t, router, "alice@bank.test", "s3cret")

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"insufficient funds", map[string]any{
			"recipient_account_number": "ACC-1000-0002", "amount": 10_000,
		}, http.StatusBadRequest},
		{"below minimum", map[string]any{
			"recipient_account_number": "ACC-1000-0002", "amount": 0.25,
		}, http.StatusBadRequest},
		{"negative amount", map[string]any{
			"recipient_account_number": "ACC-1000-0002", "amount": -5,
		}, http.StatusBadRequest},
		{"same account", map[string]any{
			"recipient_account_number": "ACC-1000-0001", "amount": 10,
		}, http.StatusBadRequest},
		{"unknown recipient", map[string]any{
			"recipient_account_number": "ACC-9999-9999", "amount": 10,
		}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/v1/transfers", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("expected %d, got %d. Body: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	for _, row := range backend.rows("accounts") {
		if row["id"] == "acct-1" && row["balance"].(float64) != 500 {
			t.Errorf("sender balance mutated by rejected transfers: %v", row["balance"])
		}
	}
	if len(backend.rows("transactions")) != 0 {
		t.Error("rejected transfers must not write ledger legs")
	}
}

// TestIntegration_ConditionalBalanceWrite verifies the store-level
// compare-and-swap: a stale expected balance matches nothing and fails
// without mutating the row.
func TestIntegration_ConditionalBalanceWrite(t *testing.T) {
	backend := newFakeBackend()
	backend.seed("accounts", map[string]any{
		"id": "acct-1", "customer_id": "cust-1", "account_number": "ACC-1000-0001",
		"balance": float64(500), "status": "active",
	})

	server := httptest.NewServer(backend.handler())
	defer server.Close()

	logger := zap.NewNop()
	cb := resilience.NewCircuitBreaker("cas-test")
	resCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	store := postgrest.NewClient(&http.Client{Timeout: 5 * time.Second}, server.URL, "anon", "service-role", cb, resCfg, logger)

	ctx := context.Background()

	// Stale expected balance: no row matches, nothing changes.
	if err := store.UpdateAccountBalance(ctx, "acct-1", 450, 400); err == nil {
		t.Fatal("expected conditional update with stale balance to fail")
	}
	if backend.rows("accounts")[0]["balance"].(float64) != 500 {
		t.Error("failed conditional update must not mutate the row")
	}

	// Correct expected balance applies.
	if err := store.UpdateAccountBalance(ctx, "acct-1", 500, 400); err != nil {
		t.Fatalf("conditional update with correct balance failed: %v", err)
	}
	if backend.rows("accounts")[0]["balance"].(float64) != 400 {
		t.Error("conditional update did not apply")
	}
}

// TestIntegration_Insights runs the analytics endpoint over seeded
// volume history: a flat week with one spike must flag an anomaly.
func TestIntegration_Insights(t *testing.T) {
	backend := newFakeBackend()
	seedCustomer(t, backend)

	now := time.Now().UTC()
	for i := 9; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		count := 10
		if i == 2 {
			count = 60 // anomalous day
		}
		for j := 0; j < count; j++ {
			backend.seed("transactions", map[string]any{
				"id":          fmt.Sprintf("tx-%d-%d", i, j),
				"account_id":  "acct-1",
				"customer_id": "cust-1",
				"type":        "deposit",
				"amount":      float64(25),
				"status":      "completed",
				"date":        day.Format(time.RFC3339),
			})
		}
	}

	router := newStack(t, backend)
	token := login(t, router, "alice@bank.test", "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/v1/insights", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Insights []domain.Insight `json:"insights"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode insights: %v", err)
	}

	var kinds []string
	foundAnomaly := false
	for _, ins := range resp.Insights {
		kinds = append(kinds, ins.Type)
		if ins.Type == domain.InsightAnomaly {
			foundAnomaly = true
		}
	}
	if !foundAnomaly {
		t.Errorf("expected an anomaly insight, got kinds %v", kinds)
	}
}

// TestIntegration_CustomerScopedRoutes exercises the portal routes
// nested under /v1/customers/{customerId}: a customer reads their own
// accounts and transactions, and is blocked from another customer's
// subtree.
func TestIntegration_CustomerScopedRoutes(t *testing.T) {
	backend := newFakeBackend()
	seedCustomer(t, backend)
	backend.seed("transactions", map[string]any{
		"id":          "tx-1",
		"account_id":  "acct-1",
		"customer_id": "cust-1",
		"type":        "deposit",
		"amount":      float64(40),
		"status":      "completed",
		"date":        time.Now().UTC().Format(time.RFC3339),
	})

	router := newStack(t, backend)
	token := login(t, router, "alice@bank.test", "s3cret")

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/v1/customers/cust-1/accounts")
	if rec.Code != http.StatusOK {
		t.Fatalf("own accounts: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var accountsResp struct {
		Accounts []domain.Account `json:"accounts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&accountsResp); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accountsResp.Accounts) != 1 || accountsResp.Accounts[0].ID != "acct-1" {
		t.Errorf("expected acct-1 only, got %+v", accountsResp.Accounts)
	}

	rec = get("/v1/customers/cust-1/transactions")
	if rec.Code != http.StatusOK {
		t.Fatalf("own transactions: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var txResp struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&txResp); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txResp.Transactions) != 1 || txResp.Transactions[0].ID != "tx-1" {
		t.Errorf("expected tx-1 only, got %+v", txResp.Transactions)
	}

	rec = get("/v1/customers/cust-2/accounts")
	if rec.Code != http.StatusForbidden {
		t.Errorf("other customer's accounts: expected 403, got %d", rec.Code)
	}
}
