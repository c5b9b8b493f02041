package handler

import (
	"encoding/json"
	"net/http"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Accounts and transactions
// ============================================================

// customerScope resolves which customer's data the request is about.
// Routes nested under /customers/{customerId} carry it in the path
// (ownership is checked by requireCustomerAccess). On flat routes,
// customers are pinned to their own customer ID and staff select one
// via the query string.
func customerScope(r *http.Request) string {
	if id := chi.URLParam(r, "customerId"); id != "" {
		return id
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == domain.RoleCustomer {
		return claims.CustomerID
	}
	return r.URL.Query().Get("customer_id")
}

func listAccountsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		customerID := customerScope(r)
		if customerID == "" {
			writeError(w, http.StatusBadRequest, "customer_id is required")
			return
		}

		accounts, err := bankSvc.ListAccounts(ctx, customerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

func getAccountHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}")
		defer span.End()

		customerID := customerScope(r)
		accountID := chi.URLParam(r, "accountId")

		account, err := bankSvc.GetAccount(ctx, customerID, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func createAccountHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()

		var req struct {
			CustomerID  string `json:"customer_id"`
			AccountType string `json:"account_type,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account, err := bankSvc.CreateAccount(ctx, req.CustomerID, req.AccountType)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func listAccountTransactionsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		page, pageSize := parsePagination(r)

		transactions, err := bankSvc.ListTransactions(ctx, accountID, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": transactions,
			"page":         page,
			"page_size":    pageSize,
		})
	}
}

func listCustomerTransactionsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/transactions")
		defer span.End()

		customerID := customerScope(r)
		page, pageSize := parsePagination(r)

		transactions, err := bankSvc.ListCustomerTransactions(ctx, customerID, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": transactions,
			"page":         page,
			"page_size":    pageSize,
		})
	}
}

func transactionsSummaryHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/summary")
		defer span.End()

		customerID := customerScope(r)
		if customerID == "" {
			writeError(w, http.StatusBadRequest, "customer_id is required")
			return
		}

		summary, err := bankSvc.GetTransactionSummary(ctx, customerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
