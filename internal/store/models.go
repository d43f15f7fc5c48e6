package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderPending      = "pending"
	OrderProcessing   = "processing"
	OrderProvisioning = "provisioning"
	OrderActive       = "active"
	OrderCancelled    = "cancelled"
)

// Ticket statuses and priorities.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"

	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Invoice statuses.
const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// Payment attempt, request and mandate statuses.
const (
	AttemptSucceeded = "succeeded"
	AttemptFailed    = "failed"

	RequestPending   = "pending"
	RequestPaid      = "paid"
	RequestExpired   = "expired"
	RequestCancelled = "cancelled"

	MandatePendingSubmission = "pending_submission"
	MandateSubmitted         = "submitted"
	MandateActive            = "active"
	MandateFailed            = "failed"
	MandateCancelled         = "cancelled"
)

// Installation, campaign and recipient statuses.
const (
	InstallScheduled = "scheduled"
	InstallAssigned  = "assigned"
	InstallCompleted = "completed"
	InstallCancelled = "cancelled"

	CampaignDraft   = "draft"
	CampaignSending = "sending"
	CampaignQueued  = "queued"
	CampaignSent    = "sent"

	RecipientPending = "pending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
)

// Order is a customer order row.
type Order struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OrderNumber string          `db:"order_number" json:"orderNumber"`
	UserID      *uuid.UUID      `db:"user_id" json:"userId,omitempty"`
	ServiceType string          `db:"service_type" json:"serviceType"`
	PlanName    string          `db:"plan_name" json:"planName"`
	Status      string          `db:"status" json:"status"`
	Total       decimal.Decimal `db:"total" json:"total"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// GuestOrder is an order placed without an account from a draft selection.
type GuestOrder struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	OrderNumber  string          `db:"order_number" json:"orderNumber"`
	Email        string          `db:"email" json:"email"`
	FullName     string          `db:"full_name" json:"fullName"`
	Phone        *string         `db:"phone" json:"phone,omitempty"`
	Address      json.RawMessage `db:"address" json:"address,omitempty"`
	Plans        json.RawMessage `db:"plans" json:"plans"`
	Addons       json.RawMessage `db:"addons" json:"addons"`
	MonthlyTotal decimal.Decimal `db:"monthly_total" json:"monthlyTotal"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Profile is the account profile linked to an auth user.
type Profile struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	FullName       *string   `db:"full_name" json:"fullName,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Role           string    `db:"role" json:"role"`
	MarketingOptIn bool      `db:"marketing_opt_in" json:"marketingOptIn"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// DisplayName returns the full name when set, else the email.
func (p Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}

// SupportTicket is a customer support request.
type SupportTicket struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TicketNumber string     `db:"ticket_number" json:"ticketNumber"`
	UserID       *uuid.UUID `db:"user_id" json:"userId,omitempty"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name" json:"name"`
	Subject      string     `db:"subject" json:"subject"`
	Message      string     `db:"message" json:"message"`
	Category     string     `db:"category" json:"category"`
	Priority     string     `db:"priority" json:"priority"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// Invoice is a bill issued to a customer.
type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoiceNumber"`
	UserID        uuid.UUID       `db:"user_id" json:"userId"`
	Status        string          `db:"status" json:"status"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	VAT           decimal.Decimal `db:"vat" json:"vat"`
	Total         decimal.Decimal `db:"total" json:"total"`
	IssueDate     time.Time       `db:"issue_date" json:"issueDate"`
	DueDate       time.Time       `db:"due_date" json:"dueDate"`
	PaidAt        *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// InvoiceLine is one billed item of an invoice.
type InvoiceLine struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoiceId"`
	Description string          `db:"description" json:"description"`
	Quantity    int32           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	LineTotal   decimal.Decimal `db:"line_total" json:"lineTotal"`
}

// PaymentAttempt records one charge attempt against a customer.
type PaymentAttempt struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"userId"`
	InvoiceID     *uuid.UUID      `db:"invoice_id" json:"invoiceId,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        string          `db:"status" json:"status"`
	FailureReason *string         `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// PaymentRequest is a pay-by-link request emailed to a customer.
type PaymentRequest struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"userId"`
	InvoiceID   *uuid.UUID      `db:"invoice_id" json:"invoiceId,omitempty"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	TokenHash   *string         `db:"token_hash" json:"-"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// DDMandate is a direct debit mandate.
type DDMandate struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	UserID             uuid.UUID `db:"user_id" json:"userId"`
	AccountHolder      string    `db:"account_holder" json:"accountHolder"`
	SortCodeLast2      string    `db:"sort_code_last2" json:"sortCodeLast2"`
	AccountNumberLast4 string    `db:"account_number_last4" json:"accountNumberLast4"`
	Reference          string    `db:"reference" json:"reference"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// Campaign is a marketing email campaign.
type Campaign struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Subject    string     `db:"subject" json:"subject"`
	TemplateID *uuid.UUID `db:"template_id" json:"templateId,omitempty"`
	Body       string     `db:"body" json:"body"`
	Status     string     `db:"status" json:"status"`
	SentAt     *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// CampaignRecipient tracks delivery of a campaign to one profile.
type CampaignRecipient struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CampaignID uuid.UUID  `db:"campaign_id" json:"campaignId"`
	UserID     uuid.UUID  `db:"user_id" json:"userId"`
	Email      string     `db:"email" json:"email"`
	Status     string     `db:"status" json:"status"`
	Error      *string    `db:"error" json:"error,omitempty"`
	SentAt     *time.Time `db:"sent_at" json:"sentAt,omitempty"`
}

// EmailTemplate is a reusable campaign body.
type EmailTemplate struct {
	ID      uuid.UUID `db:"id" json:"id"`
	Name    string    `db:"name" json:"name"`
	Subject string    `db:"subject" json:"subject"`
	Body    string    `db:"body" json:"body"`
}

// InstallationBooking is an engineer visit for a new line.
type InstallationBooking struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"userId"`
	OrderID       *uuid.UUID `db:"order_id" json:"orderId,omitempty"`
	SlotID        *uuid.UUID `db:"slot_id" json:"slotId,omitempty"`
	TechnicianID  *uuid.UUID `db:"technician_id" json:"technicianId,omitempty"`
	ScheduledDate time.Time  `db:"scheduled_date" json:"scheduledDate"`
	Address       string     `db:"address" json:"address"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// InstallationSlot is a bookable installation window.
type InstallationSlot struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SlotDate  time.Time `db:"slot_date" json:"slotDate"`
	TimeBlock string    `db:"time_block" json:"timeBlock"`
	Capacity  int32     `db:"capacity" json:"capacity"`
	Booked    int32     `db:"booked" json:"booked"`
}

// Technician is a field engineer.
type Technician struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Email  string    `db:"email" json:"email"`
	Region string    `db:"region" json:"region"`
	Active bool      `db:"active" json:"active"`
}

// AuditLog is an operator or system action record.
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actorId,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   *string         `db:"entity_id" json:"entityId,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress  *string         `db:"ip_address" json:"ipAddress,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// CommunicationLog records an outbound customer communication.
type CommunicationLog struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"userId,omitempty"`
	Channel   string     `db:"channel" json:"channel"`
	Type      string     `db:"type" json:"type"`
	Recipient string     `db:"recipient" json:"recipient"`
	Subject   *string    `db:"subject" json:"subject,omitempty"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}
