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
// Support tickets
// ============================================================

func createTicketHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tickets")
		defer span.End()

		var req struct {
			CustomerID string `json:"customer_id,omitempty"`
			Subject    string `json:"subject"`
			Body       string `json:"body,omitempty"`
			Priority   string `json:"priority,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		claims := ClaimsFromContext(ctx)
		customerID := req.CustomerID
		if claims.Role == domain.RoleCustomer || customerID == "" {
			customerID = claims.CustomerID
		}

		ticket, err := bankSvc.CreateTicket(ctx, claims.Sub, &domain.Ticket{
			CustomerID: customerID,
			Subject:    req.Subject,
			Body:       req.Body,
			Priority:   req.Priority,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, ticket)
	}
}

func listTicketsHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tickets")
		defer span.End()

		page, pageSize := parsePagination(r)
		tickets, err := bankSvc.ListTickets(ctx, customerScope(r), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tickets":   tickets,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

func updateTicketStatusHandler(bankSvc *service.BankService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/tickets/{ticketId}/status")
		defer span.End()

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		claims := ClaimsFromContext(ctx)
		ticketID := chi.URLParam(r, "ticketId")

		if err := bankSvc.UpdateTicketStatus(ctx, claims.Sub, ticketID, req.Status); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": ticketID, "status": req.Status})
	}
}
