package domain

import "time"

// ============================================================
// Support tickets
// ============================================================

// Ticket statuses. Transitions move strictly forward:
// open -> in_progress -> resolved -> closed.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// Ticket is a customer support request handled by the back office.
type Ticket struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Priority   string    `json:"priority"` // low, medium, high
	Status     string    `json:"status"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ============================================================
// Audit log
// ============================================================

// AuditEvent is one append-only audit record. Events are written by the
// transfer engine and the ticket service; they are never updated.
type AuditEvent struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"` // user id, or "system"
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
