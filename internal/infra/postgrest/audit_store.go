package postgrest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"
)

// ============================================================
// Audit log — append-only
// ============================================================

func (c *Client) InsertAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	ctx, span := tracer.Start(ctx, "Postgrest.InsertAuditEvent")
	defer span.End()

	if _, err := c.doPost(ctx, "audit_events", ev); err != nil {
		return &domain.ErrPersistence{Op: "insert_audit_event", Err: err}
	}
	return nil
}

func (c *Client) ListAuditEvents(ctx context.Context, page, pageSize int) ([]domain.AuditEvent, error) {
	ctx, span := tracer.Start(ctx, "Postgrest.ListAuditEvents")
	defer span.End()

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("audit_events?order=created_at.desc&limit=%d&offset=%d", pageSize, offset)
	body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "store/audit", Err: err}
	}
	if emptyResult(body) {
		return []domain.AuditEvent{}, nil
	}

	var rows []domain.AuditEvent
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode audit events: %w", err)
	}
	return rows, nil
}
