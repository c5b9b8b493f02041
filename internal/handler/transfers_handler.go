package handler

import (
	"encoding/json"
	"net/http"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/infra/observability"
	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Transfers
// ============================================================

func createTransferHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transfers")
		defer span.End()

		var apiReq struct {
			CustomerID             string  `json:"customer_id,omitempty"`
			RecipientAccountNumber string  `json:"recipient_account_number"`
			Amount                 float64 `json:"amount"`
			Description            string  `json:"description,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		claims := ClaimsFromContext(ctx)
		customerID := apiReq.CustomerID
		if claims.Role == domain.RoleCustomer || customerID == "" {
			customerID = claims.CustomerID
		}
		if customerID == "" {
			writeError(w, http.StatusBadRequest, "customer_id is required")
			return
		}

		result, err := bankSvc.ExecuteTransfer(ctx, customerID, &domain.TransferRequest{
			RecipientAccountNumber: apiReq.RecipientAccountNumber,
			Amount:                 apiReq.Amount,
			Description:            apiReq.Description,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// transferMetricsHandler serves the operational transfer counters.
func transferMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/metrics/transfers")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.GetTransferSnapshot())
	}
}
