// Package billing issues invoices and manages direct debit mandates.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// VATRate is the UK standard rate applied to invoice subtotals.
var VATRate = decimal.NewFromFloat(0.20)

// DefaultPaymentTerms is the gap between issue and due date.
const DefaultPaymentTerms = 14 * 24 * time.Hour

var (
	ErrInvalidStatus = errors.New("billing: invalid status")
	ErrNoLines       = errors.New("billing: invoice needs at least one line")
)

// LinesError reports that the invoice header was stored but its lines were
// not all written. The header is not rolled back.
type LinesError struct {
	InvoiceID uuid.UUID
	Written   int
	Err       error
}

// ErrInvoiceLinesFailed matches any *LinesError via errors.Is.
var ErrInvoiceLinesFailed = errors.New("billing: invoice lines failed")

func (e *LinesError) Error() string {
	return fmt.Sprintf("invoice %s: %d line(s) written before failure: %v", e.InvoiceID, e.Written, e.Err)
}

func (e *LinesError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvoiceLinesFailed) match.
func (e *LinesError) Is(target error) bool { return target == ErrInvoiceLinesFailed }

// LineInput is one requested invoice line.
type LineInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Quantity    int32           `json:"quantity" validate:"min=1,max=1000"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// CreateInvoiceRequest is the admin payload for a new invoice.
type CreateInvoiceRequest struct {
	UserID  uuid.UUID   `json:"userId" validate:"required"`
	DueDate *time.Time  `json:"dueDate"`
	Lines   []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// InvoiceView is an invoice with its lines.
type InvoiceView struct {
	store.Invoice
	Lines []store.InvoiceLine `json:"lines"`
}

// LineTotal is quantity times unit price, rounded to pence.
func (l LineInput) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity)).Round(2)
}

// Totals computes subtotal, VAT and total for lines. The subtotal is the sum
// of the rounded line totals, so stored lines always add up to it.
func Totals(lines []LineInput) (subtotal, vat, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	vat = subtotal.Mul(VATRate).Round(2)
	return subtotal, vat, subtotal.Add(vat)
}

// InvoiceNumber formats a reference such as INV-20250310-9F3A1C.
func InvoiceNumber(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}

// Service manages invoices and mandates.
type Service struct {
	Invoices store.Invoices
	Mandates store.Mandates
	Profiles store.Profiles
	Email    common.EmailSender
	Logger   *zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateInvoice stores the header as a draft and then each line in turn.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (InvoiceView, error) {
	if len(req.Lines) == 0 {
		return InvoiceView{}, common.NewValidationError(map[string]string{"lines": "required"}, ErrNoLines)
	}
	if err := common.Validate(req); err != nil {
		return InvoiceView{}, err
	}
	for i, l := range req.Lines {
		if l.UnitPrice.IsNegative() {
			return InvoiceView{}, common.NewValidationError(map[string]string{
				fmt.Sprintf("lines[%d].unitPrice", i): "must not be negative",
			}, nil)
		}
	}

	issued := s.now()
	due := issued.Add(DefaultPaymentTerms)
	if req.DueDate != nil {
		if req.DueDate.Before(issued) {
			return InvoiceView{}, common.NewValidationError(map[string]string{"dueDate": "must not be before the issue date"}, nil)
		}
		due = *req.DueDate
	}
	subtotal, vat, total := Totals(req.Lines)
	inv, err := s.Invoices.InsertInvoice(ctx, store.Invoice{
		InvoiceNumber: InvoiceNumber(issued, uuid.New()),
		UserID:        req.UserID,
		Status:        store.InvoiceDraft,
		Subtotal:      subtotal,
		VAT:           vat,
		Total:         total,
		IssueDate:     issued,
		DueDate:       due,
	})
	if err != nil {
		return InvoiceView{}, common.FromStoreError("invoice", err)
	}

	view := InvoiceView{Invoice: inv, Lines: make([]store.InvoiceLine, 0, len(req.Lines))}
	for _, l := range req.Lines {
		line, err := s.Invoices.InsertInvoiceLine(ctx, store.InvoiceLine{
			InvoiceID:   inv.ID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal(),
		})
		if err != nil {
			return view, &LinesError{InvoiceID: inv.ID, Written: len(view.Lines), Err: err}
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (InvoiceView, error) {
	inv, err := s.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceView{}, common.FromStoreError("invoice", err)
	}
	lines, err := s.Invoices.ListInvoiceLines(ctx, id)
	if err != nil {
		return InvoiceView{}, fmt.Errorf("list invoice lines: %w", err)
	}
	return InvoiceView{Invoice: inv, Lines: lines}, nil
}

// ListInvoices returns a page of invoices.
func (s *Service) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]store.Invoice, int64, error) {
	items, err := s.Invoices.ListInvoices(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	total, err := s.Invoices.CountInvoices(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return items, total, nil
}

// ValidInvoiceStatus reports whether status belongs to the invoice lifecycle.
func ValidInvoiceStatus(status string) bool {
	switch status {
	case store.InvoiceDraft, store.InvoiceSent, store.InvoicePaid, store.InvoiceOverdue, store.InvoiceCancelled:
		return true
	}
	return false
}

// UpdateInvoiceStatus sets an invoice's status. Paid stamps paid_at. Moving
// to sent emails the customer; an email failure is logged only.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string) (store.Invoice, error) {
	if !ValidInvoiceStatus(status) {
		return store.Invoice{}, common.NewValidationError(map[string]string{
			"status": "must be one of: draft sent paid overdue cancelled",
		}, ErrInvalidStatus)
	}
	var paidAt *time.Time
	if status == store.InvoicePaid {
		now := s.now()
		paidAt = &now
	}
	inv, err := s.Invoices.UpdateInvoiceStatus(ctx, id, status, paidAt)
	if err != nil {
		return store.Invoice{}, common.FromStoreError("invoice", err)
	}
	if status == store.InvoiceSent {
		s.notifyIssued(ctx, inv)
	}
	return inv, nil
}

func (s *Service) notifyIssued(ctx context.Context, inv store.Invoice) {
	if s.Email == nil || s.Profiles == nil {
		return
	}
	profile, err := s.Profiles.GetProfile(ctx, inv.UserID)
	if err == nil {
		err = s.Email.Send(ctx, common.EmailInvoiceIssued, map[string]any{
			"to":            profile.Email,
			"userId":        profile.ID.String(),
			"name":          profile.DisplayName(),
			"invoiceNumber": inv.InvoiceNumber,
			"total":         inv.Total.StringFixed(2),
			"dueDate":       inv.DueDate.Format("2006-01-02"),
		})
	}
	if err != nil && s.Logger != nil {
		s.Logger.Warn().Err(err).Str("invoice_number", inv.InvoiceNumber).Msg("invoice email failed")
	}
}
