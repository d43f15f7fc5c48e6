package adminqueue

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/store"
	"github.com/noah-isme/backend-telco/internal/support"
)

// Widget names.
const (
	WidgetPendingOrders      = "pending-orders"
	WidgetTicketsSLA         = "tickets-sla"
	WidgetFailedPayments     = "failed-payments"
	WidgetOverdueInvoices    = "overdue-invoices"
	WidgetPendingMandates    = "pending-mandates"
	WidgetPaymentRequests    = "payment-requests"
	WidgetUnassignedInstalls = "unassigned-installs"
)

// Failed payment categories.
const (
	CategoryRepeatedFailures = "repeated_failures"
	CategorySingleFailure    = "single_failure"
)

const (
	repeatedFailureThreshold = 3
	failedPaymentWindow      = 30 * 24 * time.Hour
)

// Action is a row action advertised to the dashboard. Href may contain {id}.
type Action struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Href   string `json:"href"`
}

// Query selects a page of a widget as of Now.
type Query struct {
	Page     int
	PageSize int
	Now      time.Time
}

// Widget describes one queue.
type Widget struct {
	Name    string
	Title   string
	Actions []Action
	Load    func(ctx context.Context, q Query) (any, error)
}

// Store is the subset of the repository the queues read.
type Store interface {
	store.Orders
	store.Profiles
	store.Tickets
	store.Invoices
	store.PaymentAttempts
	store.PaymentRequests
	store.Mandates
	store.Installations
}

// Service computes the admin queues.
type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Customer is the related profile of a queue row.
type Customer = store.Profile

func profileKey(p store.Profile) uuid.UUID { return p.ID }

func optionalUser(id *uuid.UUID) (uuid.UUID, bool) {
	if id == nil {
		return uuid.Nil, false
	}
	return *id, true
}

func requiredUser(id uuid.UUID) (uuid.UUID, bool) {
	return id, id != uuid.Nil
}

// Widgets returns the queue definitions in display order.
func (s *Service) Widgets() []Widget {
	return []Widget{
		{
			Name:  WidgetPendingOrders,
			Title: "Pending orders",
			Actions: []Action{
				{Label: "View order", Method: "GET", Href: "/admin/orders/{id}"},
				{Label: "Advance status", Method: "PATCH", Href: "/api/v1/admin/orders/{id}/status"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.PendingOrders(ctx, q) },
		},
		{
			Name:  WidgetTicketsSLA,
			Title: "Tickets nearing SLA",
			Actions: []Action{
				{Label: "Open ticket", Method: "GET", Href: "/admin/tickets/{id}"},
				{Label: "Update status", Method: "PATCH", Href: "/api/v1/admin/tickets/{id}/status"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.TicketsSLA(ctx, q) },
		},
		{
			Name:  WidgetFailedPayments,
			Title: "Failed payments",
			Actions: []Action{
				{Label: "View customer", Method: "GET", Href: "/admin/customers/{id}"},
				{Label: "Send payment request", Method: "POST", Href: "/api/v1/admin/payment-requests"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.FailedPayments(ctx, q) },
		},
		{
			Name:  WidgetOverdueInvoices,
			Title: "Overdue invoices",
			Actions: []Action{
				{Label: "View invoice", Method: "GET", Href: "/admin/invoices/{id}"},
				{Label: "Mark paid", Method: "PATCH", Href: "/api/v1/admin/invoices/{id}/status"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.OverdueInvoices(ctx, q) },
		},
		{
			Name:  WidgetPendingMandates,
			Title: "Mandates awaiting submission",
			Actions: []Action{
				{Label: "Submit mandate", Method: "PATCH", Href: "/api/v1/admin/mandates/{id}/status"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.PendingMandates(ctx, q) },
		},
		{
			Name:  WidgetPaymentRequests,
			Title: "Open payment requests",
			Actions: []Action{
				{Label: "Cancel request", Method: "PATCH", Href: "/api/v1/admin/payment-requests/{id}/status"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.OpenPaymentRequests(ctx, q) },
		},
		{
			Name:  WidgetUnassignedInstalls,
			Title: "Unassigned installations",
			Actions: []Action{
				{Label: "Assign technician", Method: "POST", Href: "/api/v1/admin/installations/{id}/assign"},
			},
			Load: func(ctx context.Context, q Query) (any, error) { return s.UnassignedInstalls(ctx, q) },
		},
	}
}

// Widget looks up a queue by name.
func (s *Service) Widget(name string) (Widget, bool) {
	return lo.Find(s.Widgets(), func(w Widget) bool { return w.Name == name })
}

// PendingOrders lists orders that have not reached provisioning.
func (s *Service) PendingOrders(ctx context.Context, q Query) (Page[Enriched[store.Order, Customer]], error) {
	rows, err := s.Store.ListOrders(ctx, store.OrderFilter{
		Statuses: []string{store.OrderPending, store.OrderProcessing},
		Limit:    store.MaxScan,
	})
	if err != nil {
		return Page[Enriched[store.Order, Customer]]{}, fmt.Errorf("list pending orders: %w", err)
	}
	items, err := Enrich(ctx, rows, func(o store.Order) (uuid.UUID, bool) { return optionalUser(o.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[Enriched[store.Order, Customer]]{}, err
	}
	return pageOf(items, len(rows), q), nil
}

// TicketRow is a support ticket with its SLA position.
type TicketRow struct {
	Enriched[store.SupportTicket, Customer]
	SLA support.SLAStatus `json:"sla"`
}

// TicketsSLA lists open tickets within 24 hours of (or past) their SLA, overdue
// first then by hours remaining.
func (s *Service) TicketsSLA(ctx context.Context, q Query) (Page[TicketRow], error) {
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}
	rows, err := s.Store.ListTickets(ctx, store.TicketFilter{
		Statuses: []string{store.TicketOpen, store.TicketInProgress},
		Limit:    store.MaxScan,
	})
	if err != nil {
		return Page[TicketRow]{}, fmt.Errorf("list open tickets: %w", err)
	}
	enriched, err := Enrich(ctx, rows, func(t store.SupportTicket) (uuid.UUID, bool) { return optionalUser(t.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[TicketRow]{}, err
	}
	items := lo.FilterMap(enriched, func(e Enriched[store.SupportTicket, Customer], _ int) (TicketRow, bool) {
		sla := support.ForTicket(e.Row, now)
		return TicketRow{Enriched: e, SLA: sla}, sla.Surfaced()
	})
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].SLA, items[j].SLA
		if a.Overdue != b.Overdue {
			return a.Overdue
		}
		return a.HoursRemaining < b.HoursRemaining
	})
	return pageOf(items, len(rows), q), nil
}

// FailedPaymentGroup is the failed attempts of one customer.
type FailedPaymentGroup struct {
	UserID        uuid.UUID              `json:"userId"`
	Category      string                 `json:"category"`
	FailureCount  int                    `json:"failureCount"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	LatestAttempt time.Time              `json:"latestAttempt"`
	Attempts      []store.PaymentAttempt `json:"attempts"`
}

// GroupFailedPayments groups attempts by customer and categorises each group.
// Groups with at least three failures sort first, then by latest attempt.
func GroupFailedPayments(attempts []store.PaymentAttempt) []FailedPaymentGroup {
	byUser := lo.GroupBy(attempts, func(a store.PaymentAttempt) uuid.UUID { return a.UserID })
	groups := make([]FailedPaymentGroup, 0, len(byUser))
	for userID, list := range byUser {
		g := FailedPaymentGroup{
			UserID:       userID,
			FailureCount: len(list),
			TotalAmount:  decimal.Zero,
			Attempts:     list,
			Category:     CategorySingleFailure,
		}
		for _, a := range list {
			g.TotalAmount = g.TotalAmount.Add(a.Amount)
			if a.CreatedAt.After(g.LatestAttempt) {
				g.LatestAttempt = a.CreatedAt
			}
		}
		if g.FailureCount >= repeatedFailureThreshold {
			g.Category = CategoryRepeatedFailures
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		ri := groups[i].Category == CategoryRepeatedFailures
		rj := groups[j].Category == CategoryRepeatedFailures
		if ri != rj {
			return ri
		}
		if !groups[i].LatestAttempt.Equal(groups[j].LatestAttempt) {
			return groups[i].LatestAttempt.After(groups[j].LatestAttempt)
		}
		return groups[i].UserID.String() < groups[j].UserID.String()
	})
	return groups
}

// FailedPayments lists customers with failed payments in the last 30 days.
func (s *Service) FailedPayments(ctx context.Context, q Query) (Page[Enriched[FailedPaymentGroup, Customer]], error) {
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}
	since := now.Add(-failedPaymentWindow)
	attempts, err := s.Store.ListPaymentAttempts(ctx, store.PaymentAttemptFilter{
		Statuses:     []string{store.AttemptFailed},
		CreatedAfter: &since,
		Limit:        store.MaxScan,
	})
	if err != nil {
		return Page[Enriched[FailedPaymentGroup, Customer]]{}, fmt.Errorf("list failed payments: %w", err)
	}
	groups := GroupFailedPayments(attempts)
	items, err := Enrich(ctx, groups, func(g FailedPaymentGroup) (uuid.UUID, bool) { return requiredUser(g.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[Enriched[FailedPaymentGroup, Customer]]{}, err
	}
	return pageOf(items, len(attempts), q), nil
}

// InvoiceRow is an overdue invoice with the days past due.
type InvoiceRow struct {
	Enriched[store.Invoice, Customer]
	DaysOverdue int `json:"daysOverdue"`
}

// OverdueInvoices lists sent or overdue invoices past their due date, most
// overdue first.
func (s *Service) OverdueInvoices(ctx context.Context, q Query) (Page[InvoiceRow], error) {
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}
	rows, err := s.Store.ListInvoices(ctx, store.InvoiceFilter{
		Statuses:  []string{store.InvoiceSent, store.InvoiceOverdue},
		DueBefore: &now,
		Limit:     store.MaxScan,
	})
	if err != nil {
		return Page[InvoiceRow]{}, fmt.Errorf("list overdue invoices: %w", err)
	}
	enriched, err := Enrich(ctx, rows, func(inv store.Invoice) (uuid.UUID, bool) { return requiredUser(inv.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[InvoiceRow]{}, err
	}
	items := lo.Map(enriched, func(e Enriched[store.Invoice, Customer], _ int) InvoiceRow {
		days := int(math.Floor(now.Sub(e.Row.DueDate).Hours() / 24))
		return InvoiceRow{Enriched: e, DaysOverdue: days}
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].Row.DueDate.Before(items[j].Row.DueDate) })
	return pageOf(items, len(rows), q), nil
}

// PendingMandates lists direct debit mandates awaiting submission.
func (s *Service) PendingMandates(ctx context.Context, q Query) (Page[Enriched[store.DDMandate, Customer]], error) {
	rows, err := s.Store.ListMandates(ctx, store.MandateFilter{
		Statuses: []string{store.MandatePendingSubmission},
		Limit:    store.MaxScan,
	})
	if err != nil {
		return Page[Enriched[store.DDMandate, Customer]]{}, fmt.Errorf("list pending mandates: %w", err)
	}
	items, err := Enrich(ctx, rows, func(m store.DDMandate) (uuid.UUID, bool) { return requiredUser(m.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[Enriched[store.DDMandate, Customer]]{}, err
	}
	return pageOf(items, len(rows), q), nil
}

// PaymentRequestRow is an open payment request with time to expiry.
type PaymentRequestRow struct {
	Enriched[store.PaymentRequest, Customer]
	HoursToExpiry float64 `json:"hoursToExpiry"`
}

// OpenPaymentRequests lists pending, unexpired payment requests, soonest
// expiry first.
func (s *Service) OpenPaymentRequests(ctx context.Context, q Query) (Page[PaymentRequestRow], error) {
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}
	rows, err := s.Store.ListPaymentRequests(ctx, store.PaymentRequestFilter{
		Statuses:     []string{store.RequestPending},
		ExpiresAfter: &now,
		Limit:        store.MaxScan,
	})
	if err != nil {
		return Page[PaymentRequestRow]{}, fmt.Errorf("list payment requests: %w", err)
	}
	enriched, err := Enrich(ctx, rows, func(pr store.PaymentRequest) (uuid.UUID, bool) { return requiredUser(pr.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[PaymentRequestRow]{}, err
	}
	items := lo.Map(enriched, func(e Enriched[store.PaymentRequest, Customer], _ int) PaymentRequestRow {
		return PaymentRequestRow{Enriched: e, HoursToExpiry: e.Row.ExpiresAt.Sub(now).Hours()}
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].Row.ExpiresAt.Before(items[j].Row.ExpiresAt) })
	return pageOf(items, len(rows), q), nil
}

// UnassignedInstalls lists scheduled installations without a technician.
func (s *Service) UnassignedInstalls(ctx context.Context, q Query) (Page[Enriched[store.InstallationBooking, Customer]], error) {
	rows, err := s.Store.ListInstallations(ctx, store.InstallationFilter{
		Statuses:   []string{store.InstallScheduled},
		Unassigned: true,
		Limit:      store.MaxScan,
	})
	if err != nil {
		return Page[Enriched[store.InstallationBooking, Customer]]{}, fmt.Errorf("list unassigned installs: %w", err)
	}
	items, err := Enrich(ctx, rows, func(b store.InstallationBooking) (uuid.UUID, bool) { return requiredUser(b.UserID) }, s.Store.ProfilesByIDs, profileKey)
	if err != nil {
		return Page[Enriched[store.InstallationBooking, Customer]]{}, err
	}
	return pageOf(items, len(rows), q), nil
}

// pageOf pages items built from scanned primary rows, flagging the page when
// the scan hit store.MaxScan.
func pageOf[T any](items []T, scanned int, q Query) Page[T] {
	p := Paginate(items, q.Page, q.PageSize)
	p.Truncated = scanned >= store.MaxScan
	return p
}
