package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const ticketColumns = `id, ticket_number, user_id, email, name, subject, message, category, priority, status, created_at, resolved_at`

func ticketWhere(f TicketFilter) *where {
	w := &where{}
	w.statusIn("status", f.Statuses)
	return w
}

// ListTickets returns tickets matching f, oldest first.
func (s *PG) ListTickets(ctx context.Context, f TicketFilter) ([]SupportTicket, error) {
	w := ticketWhere(f)
	sql := `SELECT ` + ticketColumns + ` FROM support_tickets` + w.String() + ` ORDER BY created_at ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[SupportTicket](ctx, s, sql, w.args...)
}

// CountTickets counts tickets matching f.
func (s *PG) CountTickets(ctx context.Context, f TicketFilter) (int64, error) {
	w := ticketWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM support_tickets`+w.String(), w.args...)
}

// InsertTicket persists a new support ticket.
func (s *PG) InsertTicket(ctx context.Context, t SupportTicket) (SupportTicket, error) {
	return queryOne[SupportTicket](ctx, s, `INSERT INTO support_tickets (ticket_number, user_id, email, name, subject, message, category, priority, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+ticketColumns,
		t.TicketNumber, t.UserID, t.Email, t.Name, t.Subject, t.Message, t.Category, t.Priority, t.Status)
}

// UpdateTicketStatus sets a ticket's status and resolution time.
func (s *PG) UpdateTicketStatus(ctx context.Context, id uuid.UUID, status string, resolvedAt *time.Time) (SupportTicket, error) {
	return queryOne[SupportTicket](ctx, s, `UPDATE support_tickets SET status = $2, resolved_at = $3 WHERE id = $1 RETURNING `+ticketColumns, id, status, resolvedAt)
}
