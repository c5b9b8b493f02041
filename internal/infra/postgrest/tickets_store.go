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
// Support tickets
// ============================================================

func (c *Client) CreateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.CreateTicket")
	defer span.End()

	body, err := c.doPost(ctx, "tickets", ticket)
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "create_ticket", Err: err}
	}

	var rows []domain.Ticket
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return ticket, nil
	}
	return &rows[0], nil
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.GetTicket")
	defer span.End()

	path := fmt.Sprintf("tickets?id=eq.%s&limit=1", url.QueryEscape(ticketID))
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/tickets", Err: err}
	}
	if emptyResult(body) {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
	}

	var rows []domain.Ticket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "ticket", ID: ticketID}
	}
	return &rows[0], nil
}

func (c *Client) ListTickets(ctx context.Context, customerID string, page, pageSize int) ([]domain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListTickets")
	defer span.End()

	// An empty customerID lists tickets across all customers (staff view).
	offset := (page - 1) * pageSize
	path := fmt.Sprintf("tickets?order=created_at.desc&limit=%d&offset=%d", pageSize, offset)
	if customerID != "" {
		path = fmt.Sprintf("tickets?customer_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
			url.QueryEscape(customerID), pageSize, offset)
	}
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/tickets", Err: err}
	}
	if emptyResult(body) {
		return []domain.Ticket{}, nil
	}

	var rows []domain.Ticket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	return rows, nil
}

func (c *Client) UpdateTicketStatus(ctx context.Context, ticketID, status string) error {
	ctx, span := tracer.Start(ctx, "Postgrest.UpdateTicketStatus")
	defer span.End()

	path := fmt.Sprintf("tickets?id=eq.%s", url.QueryEscape(ticketID))
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if _, err := c.doPatch(ctx, path, updates, false); err != nil {
		return &domain.ErrPersistence{Op: "update_ticket_status", Err: err}
	}
	return nil
}
