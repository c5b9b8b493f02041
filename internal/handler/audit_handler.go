package handler

import (
	"net/http"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Audit log
// ============================================================

func listAuditEventsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/audit")
		defer span.End()

		page, pageSize := parsePagination(r)
		events, err := bankSvc.ListAuditEvents(ctx, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events":    events,
			"page":      page,
			"page_size": pageSize,
		})
	}
}
