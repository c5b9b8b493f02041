package service

import (
	"context"
	"fmt"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Support tickets
// ============================================================

// ticketTransitions lists the allowed next statuses per current status.
var ticketTransitions = map[string][]string{
	domain.TicketOpen:       {domain.TicketInProgress, domain.TicketClosed},
	domain.TicketInProgress: {domain.TicketResolved, domain.TicketClosed},
	domain.TicketResolved:   {domain.TicketClosed},
	domain.TicketClosed:     {},
}

func (s *BankService) CreateTicket(ctx context.Context, actor string, ticket *domain.Ticket) (*domain.Ticket, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.CreateTicket")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", ticket.CustomerID))

	if ticket.CustomerID == "" {
		return nil, &domain.ErrValidation{Field: "customer_id", Message: "required"}
	}
	if ticket.Subject == "" {
		return nil, &domain.ErrValidation{Field: "subject", Message: "required"}
	}
	if ticket.Priority == "" {
		ticket.Priority = "medium"
	}

	now := time.Now()
	ticket.ID = uuid.New().String()
	ticket.Status = domain.TicketOpen
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	created, err := s.store.CreateTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "ticket.created", "ticket", created.ID, created.Subject)
	return created, nil
}

func (s *BankService) ListTickets(ctx context.Context, customerID string, page, pageSize int) ([]domain.Ticket, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ListTickets")
	defer span.End()

	return s.store.ListTickets(ctx, customerID, page, pageSize)
}

// UpdateTicketStatus moves a ticket along the open -> in_progress ->
// resolved -> closed flow. Any other move is rejected.
func (s *BankService) UpdateTicketStatus(ctx context.Context, actor, ticketID, status string) error {
	ctx, span := bankTracer.Start(ctx, "BankService.UpdateTicketStatus")
	defer span.End()

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if !transitionAllowed(ticket.Status, status) {
		return &domain.ErrValidation{
			Field:   "status",
			Message: fmt.Sprintf("cannot move ticket from '%s' to '%s'", ticket.Status, status),
		}
	}

	if err := s.store.UpdateTicketStatus(ctx, ticketID, status); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "ticket.status_changed", "ticket", ticketID,
		fmt.Sprintf("%s -> %s", ticket.Status, status))
	return nil
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range ticketTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
