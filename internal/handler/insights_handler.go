package handler

import (
	"net/http"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Insights
// ============================================================

func getInsightsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/insights")
		defer span.End()

		customerID := customerScope(r)
		if customerID == "" {
			writeError(w, http.StatusBadRequest, "customer_id is required")
			return
		}

		insights, err := bankSvc.GetInsights(ctx, customerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
	}
}
