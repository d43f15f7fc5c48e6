package common

import (
	"context"
	"sync"
)

// EmailType selects the template the email function renders.
type EmailType string

const (
	EmailOrderConfirmation EmailType = "order_confirmation"
	EmailPaymentRequest    EmailType = "payment_request"
	EmailTicketReceived    EmailType = "ticket_received"
	EmailCampaign          EmailType = "campaign"
	EmailInvoiceIssued     EmailType = "invoice_issued"
)

// EmailSender defines the contract for sending transactional emails.
type EmailSender interface {
	Send(ctx context.Context, kind EmailType, data map[string]any) error
}

// InMemoryEmail provides a test-friendly email sender that records messages.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
	// Err, when set, is returned from every Send after the message is recorded.
	Err error
}

// Email represents a single email captured by InMemoryEmail.
type Email struct {
	Type EmailType
	Data map[string]any
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(_ context.Context, kind EmailType, data map[string]any) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outbox = append(m.Outbox, Email{Type: kind, Data: data})
	return m.Err
}

// Sent returns a copy of the recorded emails.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.Outbox))
	copy(out, m.Outbox)
	return out
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(context.Context, EmailType, map[string]any) error { return nil }
