package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	invoiceColumns        = `id, invoice_number, user_id, status, subtotal, vat, total, issue_date, due_date, paid_at, created_at`
	invoiceLineColumns    = `id, invoice_id, description, quantity, unit_price, line_total`
	paymentAttemptColumns = `id, user_id, invoice_id, amount, status, failure_reason, created_at`
	paymentRequestColumns = `id, user_id, invoice_id, amount, description, status, token_hash, expires_at, created_at`
	mandateColumns        = `id, user_id, account_holder, sort_code_last2, account_number_last4, reference, status, created_at`
)

func invoiceWhere(f InvoiceFilter) *where {
	w := &where{}
	w.statusIn("status", f.Statuses)
	if f.DueBefore != nil {
		w.and("due_date < " + w.arg(*f.DueBefore))
	}
	if f.UserID != nil {
		w.and("user_id = " + w.arg(*f.UserID))
	}
	return w
}

// ListInvoices returns invoices matching f, earliest due first.
func (s *PG) ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error) {
	w := invoiceWhere(f)
	sql := `SELECT ` + invoiceColumns + ` FROM invoices` + w.String() + ` ORDER BY due_date ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[Invoice](ctx, s, sql, w.args...)
}

// CountInvoices counts invoices matching f.
func (s *PG) CountInvoices(ctx context.Context, f InvoiceFilter) (int64, error) {
	w := invoiceWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM invoices`+w.String(), w.args...)
}

// GetInvoice fetches an invoice by id.
func (s *PG) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return queryOne[Invoice](ctx, s, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// InsertInvoice persists an invoice header.
func (s *PG) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	return queryOne[Invoice](ctx, s, `INSERT INTO invoices (invoice_number, user_id, status, subtotal, vat, total, issue_date, due_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+invoiceColumns,
		inv.InvoiceNumber, inv.UserID, inv.Status, inv.Subtotal, inv.VAT, inv.Total, inv.IssueDate, inv.DueDate)
}

// InsertInvoiceLine persists one invoice line.
func (s *PG) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error) {
	return queryOne[InvoiceLine](ctx, s, `INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5) RETURNING `+invoiceLineColumns,
		line.InvoiceID, line.Description, line.Quantity, line.UnitPrice, line.LineTotal)
}

// ListInvoiceLines returns the lines of an invoice.
func (s *PG) ListInvoiceLines(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	return queryAll[InvoiceLine](ctx, s, `SELECT `+invoiceLineColumns+` FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
}

// UpdateInvoiceStatus sets an invoice's status and payment time.
func (s *PG) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string, paidAt *time.Time) (Invoice, error) {
	return queryOne[Invoice](ctx, s, `UPDATE invoices SET status = $2, paid_at = COALESCE($3, paid_at) WHERE id = $1 RETURNING `+invoiceColumns, id, status, paidAt)
}

// ListPaymentAttempts returns attempts matching f, newest first.
func (s *PG) ListPaymentAttempts(ctx context.Context, f PaymentAttemptFilter) ([]PaymentAttempt, error) {
	w := &where{}
	w.statusIn("status", f.Statuses)
	if f.CreatedAfter != nil {
		w.and("created_at >= " + w.arg(*f.CreatedAfter))
	}
	sql := `SELECT ` + paymentAttemptColumns + ` FROM payment_attempts` + w.String() + ` ORDER BY created_at DESC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), 0)
	return queryAll[PaymentAttempt](ctx, s, sql, w.args...)
}

func paymentRequestWhere(f PaymentRequestFilter) *where {
	w := &where{}
	w.statusIn("status", f.Statuses)
	if f.ExpiresAfter != nil {
		w.and("expires_at > " + w.arg(*f.ExpiresAfter))
	}
	return w
}

// ListPaymentRequests returns requests matching f, soonest expiry first.
func (s *PG) ListPaymentRequests(ctx context.Context, f PaymentRequestFilter) ([]PaymentRequest, error) {
	w := paymentRequestWhere(f)
	sql := `SELECT ` + paymentRequestColumns + ` FROM payment_requests` + w.String() + ` ORDER BY expires_at ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[PaymentRequest](ctx, s, sql, w.args...)
}

// CountPaymentRequests counts requests matching f.
func (s *PG) CountPaymentRequests(ctx context.Context, f PaymentRequestFilter) (int64, error) {
	w := paymentRequestWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM payment_requests`+w.String(), w.args...)
}

// InsertPaymentRequest persists a payment request without its token.
func (s *PG) InsertPaymentRequest(ctx context.Context, pr PaymentRequest) (PaymentRequest, error) {
	return queryOne[PaymentRequest](ctx, s, `INSERT INTO payment_requests (user_id, invoice_id, amount, description, status, expires_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+paymentRequestColumns,
		pr.UserID, pr.InvoiceID, pr.Amount, pr.Description, pr.Status, pr.ExpiresAt)
}

// SetPaymentRequestToken stores the hash of the request's pay link token.
func (s *PG) SetPaymentRequestToken(ctx context.Context, id uuid.UUID, tokenHash string) error {
	return s.exec(ctx, `UPDATE payment_requests SET token_hash = $2 WHERE id = $1`, id, tokenHash)
}

// UpdatePaymentRequestStatus sets a request's status.
func (s *PG) UpdatePaymentRequestStatus(ctx context.Context, id uuid.UUID, status string) (PaymentRequest, error) {
	return queryOne[PaymentRequest](ctx, s, `UPDATE payment_requests SET status = $2 WHERE id = $1 RETURNING `+paymentRequestColumns, id, status)
}

// ListMandates returns mandates matching f, oldest first.
func (s *PG) ListMandates(ctx context.Context, f MandateFilter) ([]DDMandate, error) {
	w := &where{}
	w.statusIn("status", f.Statuses)
	sql := `SELECT ` + mandateColumns + ` FROM dd_mandates` + w.String() + ` ORDER BY created_at ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[DDMandate](ctx, s, sql, w.args...)
}

// UpdateMandateStatus sets a mandate's status.
func (s *PG) UpdateMandateStatus(ctx context.Context, id uuid.UUID, status string) (DDMandate, error) {
	return queryOne[DDMandate](ctx, s, `UPDATE dd_mandates SET status = $2 WHERE id = $1 RETURNING `+mandateColumns, id, status)
}
