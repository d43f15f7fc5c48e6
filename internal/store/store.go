package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable indicates the database dependency is not configured.
var ErrUnavailable = errors.New("store: database unavailable")

// MaxScan bounds how many primary rows a filtered list call returns.
const MaxScan = 500

// OrderFilter narrows order listings.
type OrderFilter struct {
	Statuses []string
	UserID   *uuid.UUID
	Limit    int
	Offset   int
}

// TicketFilter narrows support ticket listings.
type TicketFilter struct {
	Statuses []string
	Limit    int
	Offset   int
}

// AuditFilter narrows the audit trail. Empty fields match everything.
type AuditFilter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    *uuid.UUID
	Since      *time.Time
	Limit      int
	Offset     int
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Statuses  []string
	DueBefore *time.Time
	UserID    *uuid.UUID
	Limit     int
	Offset    int
}

// PaymentAttemptFilter narrows payment attempt listings.
type PaymentAttemptFilter struct {
	Statuses     []string
	CreatedAfter *time.Time
	Limit        int
}

// PaymentRequestFilter narrows payment request listings.
type PaymentRequestFilter struct {
	Statuses     []string
	ExpiresAfter *time.Time
	Limit        int
	Offset       int
}

// MandateFilter narrows direct debit mandate listings.
type MandateFilter struct {
	Statuses []string
	Limit    int
	Offset   int
}

// InstallationFilter narrows installation booking listings.
type InstallationFilter struct {
	Statuses   []string
	Unassigned bool
	Limit      int
	Offset     int
}

// Orders reads and updates customer orders.
type Orders interface {
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	CountOrders(ctx context.Context, f OrderFilter) (int64, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (Order, error)
	FindOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
}

// GuestOrders persists orders placed without an account.
type GuestOrders interface {
	InsertGuestOrder(ctx context.Context, o GuestOrder) (GuestOrder, error)
	FindGuestOrder(ctx context.Context, orderNumber, email string) (GuestOrder, error)
}

// Profiles reads account profiles.
type Profiles interface {
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)
	ProfilesByIDs(ctx context.Context, ids []uuid.UUID) ([]Profile, error)
	ListOptedInProfiles(ctx context.Context) ([]Profile, error)
	CountProfiles(ctx context.Context) (int64, error)
}

// Tickets reads and writes support tickets.
type Tickets interface {
	ListTickets(ctx context.Context, f TicketFilter) ([]SupportTicket, error)
	CountTickets(ctx context.Context, f TicketFilter) (int64, error)
	InsertTicket(ctx context.Context, t SupportTicket) (SupportTicket, error)
	UpdateTicketStatus(ctx context.Context, id uuid.UUID, status string, resolvedAt *time.Time) (SupportTicket, error)
}

// Invoices reads and writes invoices and their lines.
type Invoices interface {
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error)
	CountInvoices(ctx context.Context, f InvoiceFilter) (int64, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (InvoiceLine, error)
	ListInvoiceLines(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceLine, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string, paidAt *time.Time) (Invoice, error)
}

// PaymentAttempts reads charge attempts.
type PaymentAttempts interface {
	ListPaymentAttempts(ctx context.Context, f PaymentAttemptFilter) ([]PaymentAttempt, error)
}

// PaymentRequests reads and writes pay-by-link requests.
type PaymentRequests interface {
	ListPaymentRequests(ctx context.Context, f PaymentRequestFilter) ([]PaymentRequest, error)
	CountPaymentRequests(ctx context.Context, f PaymentRequestFilter) (int64, error)
	InsertPaymentRequest(ctx context.Context, pr PaymentRequest) (PaymentRequest, error)
	SetPaymentRequestToken(ctx context.Context, id uuid.UUID, tokenHash string) error
	UpdatePaymentRequestStatus(ctx context.Context, id uuid.UUID, status string) (PaymentRequest, error)
}

// Mandates reads and updates direct debit mandates.
type Mandates interface {
	ListMandates(ctx context.Context, f MandateFilter) ([]DDMandate, error)
	UpdateMandateStatus(ctx context.Context, id uuid.UUID, status string) (DDMandate, error)
}

// Installations reads bookings and assigns technicians.
type Installations interface {
	ListInstallations(ctx context.Context, f InstallationFilter) ([]InstallationBooking, error)
	CountInstallations(ctx context.Context, f InstallationFilter) (int64, error)
	GetTechnician(ctx context.Context, id uuid.UUID) (Technician, error)
	ListTechnicians(ctx context.Context) ([]Technician, error)
	AssignTechnician(ctx context.Context, bookingID, technicianID uuid.UUID) (InstallationBooking, error)
	ListSlots(ctx context.Context, from, to time.Time) ([]InstallationSlot, error)
}

// Campaigns reads and writes marketing campaigns and their recipients.
type Campaigns interface {
	ListCampaigns(ctx context.Context, limit, offset int) ([]Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error)
	InsertCampaign(ctx context.Context, c Campaign) (Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status string, sentAt *time.Time) error
	GetEmailTemplate(ctx context.Context, id uuid.UUID) (EmailTemplate, error)
	InsertCampaignRecipient(ctx context.Context, r CampaignRecipient) (CampaignRecipient, error)
	GetCampaignRecipient(ctx context.Context, id uuid.UUID) (CampaignRecipient, error)
	MarkCampaignRecipient(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
	// CompleteCampaign moves a queued campaign to sent once no recipient is
	// still pending. It reports whether this call made the move.
	CompleteCampaign(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
}

// AuditLogs reads and writes the audit trail.
type AuditLogs interface {
	InsertAuditLog(ctx context.Context, entry AuditLog) error
	ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditLog, error)
	CountAuditLogs(ctx context.Context, f AuditFilter) (int64, error)
}

// Communications writes the outbound communications log.
type Communications interface {
	InsertCommunication(ctx context.Context, c CommunicationLog) error
}

// Store aggregates every repository.
type Store interface {
	Orders
	GuestOrders
	Profiles
	Tickets
	Invoices
	PaymentAttempts
	PaymentRequests
	Mandates
	Installations
	Campaigns
	AuditLogs
	Communications
	Ping(ctx context.Context) error
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
