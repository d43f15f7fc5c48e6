package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// ErrInvalidStatus is returned for a status outside the ticket lifecycle.
var ErrInvalidStatus = errors.New("support: invalid ticket status")

// CreateTicketRequest is the public contact form payload.
type CreateTicketRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,max=200"`
	Message  string `json:"message" validate:"required,max=5000"`
	Category string `json:"category" validate:"omitempty,oneof=billing technical sales general"`
	Priority string `json:"priority" validate:"omitempty,oneof=urgent high medium low"`
}

// Service manages support tickets.
type Service struct {
	Store  store.Tickets
	Email  common.EmailSender
	Logger *zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// TicketNumber formats a human readable reference such as TKT-20250310-9F3A1C.
func TicketNumber(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return fmt.Sprintf("TKT-%s-%s", at.Format("20060102"), suffix)
}

// Create validates and stores a ticket, then sends the acknowledgement email.
// An email failure does not fail the request; the ticket is already stored.
func (s *Service) Create(ctx context.Context, req CreateTicketRequest, userID *uuid.UUID) (store.SupportTicket, error) {
	if err := common.Validate(req); err != nil {
		return store.SupportTicket{}, err
	}
	category := req.Category
	if category == "" {
		category = "general"
	}
	priority := req.Priority
	if priority == "" {
		priority = store.PriorityMedium
	}
	ticket, err := s.Store.InsertTicket(ctx, store.SupportTicket{
		TicketNumber: TicketNumber(s.now(), uuid.New()),
		UserID:       userID,
		Email:        strings.TrimSpace(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Subject:      strings.TrimSpace(req.Subject),
		Message:      req.Message,
		Category:     category,
		Priority:     priority,
		Status:       store.TicketOpen,
	})
	if err != nil {
		return store.SupportTicket{}, fmt.Errorf("insert ticket: %w", err)
	}

	if s.Email != nil {
		err := s.Email.Send(ctx, common.EmailTicketReceived, map[string]any{
			"to":           ticket.Email,
			"name":         ticket.Name,
			"ticketNumber": ticket.TicketNumber,
			"subject":      ticket.Subject,
			"slaHours":     SLAHours(ticket.Priority),
		})
		if err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Str("ticket_number", ticket.TicketNumber).Msg("ticket acknowledgement email failed")
		}
	}
	return ticket, nil
}

// ValidStatus reports whether status belongs to the ticket lifecycle.
func ValidStatus(status string) bool {
	switch status {
	case store.TicketOpen, store.TicketInProgress, store.TicketResolved, store.TicketClosed:
		return true
	}
	return false
}

// UpdateStatus moves a ticket to status. Resolved and closed stamp resolved_at;
// reopening clears it.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (store.SupportTicket, error) {
	if !ValidStatus(status) {
		return store.SupportTicket{}, common.NewValidationError(map[string]string{
			"status": "must be one of: open in_progress resolved closed",
		}, ErrInvalidStatus)
	}
	var resolvedAt *time.Time
	if status == store.TicketResolved || status == store.TicketClosed {
		now := s.now()
		resolvedAt = &now
	}
	ticket, err := s.Store.UpdateTicketStatus(ctx, id, status, resolvedAt)
	if err != nil {
		return store.SupportTicket{}, common.FromStoreError("ticket", err)
	}
	return ticket, nil
}

// List returns a page of tickets filtered by status.
func (s *Service) List(ctx context.Context, statuses []string, page common.Page) ([]store.SupportTicket, int64, error) {
	filter := store.TicketFilter{Statuses: statuses, Limit: page.Size, Offset: page.Offset()}
	tickets, err := s.Store.ListTickets(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}
	total, err := s.Store.CountTickets(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}
	return tickets, total, nil
}
