// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-telco/internal/store"
)

// Memory is a goroutine-safe in-memory Store. Set Fail to make a named method
// return an error, e.g. Fail["ListOrders"] = errors.New("boom").
type Memory struct {
	mu sync.Mutex

	Orders          []store.Order
	GuestOrders     []store.GuestOrder
	Profiles        []store.Profile
	Tickets         []store.SupportTicket
	Invoices        []store.Invoice
	InvoiceLines    []store.InvoiceLine
	PaymentAttempts []store.PaymentAttempt
	PaymentRequests []store.PaymentRequest
	Mandates        []store.DDMandate
	Bookings        []store.InstallationBooking
	Slots           []store.InstallationSlot
	Technicians     []store.Technician
	Campaigns       []store.Campaign
	Recipients      []store.CampaignRecipient
	Templates       []store.EmailTemplate
	AuditLogs       []store.AuditLog
	Communications  []store.CommunicationLog

	Fail  map[string]error
	Calls map[string]int
	Now   func() time.Time
}

var _ store.Store = (*Memory)(nil)

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{Fail: map[string]error{}, Calls: map[string]int{}}
}

// ErrInjected is a convenience error for Fail.
var ErrInjected = errors.New("storetest: injected failure")

func (m *Memory) enter(method string) error {
	if m.Calls == nil {
		m.Calls = map[string]int{}
	}
	m.Calls[method]++
	if m.Fail != nil {
		if err := m.Fail[method]; err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// CallCount reports how many times method was invoked.
func (m *Memory) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func statusOK(statuses []string, status string) bool {
	return len(statuses) == 0 || slices.Contains(statuses, status)
}

func window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func find[T any](items []T, match func(T) bool) (int, bool) {
	for i, it := range items {
		if match(it) {
			return i, true
		}
	}
	return -1, false
}

// Ping implements store.Store.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}

func (m *Memory) filterOrders(f store.OrderFilter) []store.Order {
	out := []store.Order{}
	for _, o := range m.Orders {
		if !statusOK(f.Statuses, o.Status) {
			continue
		}
		if f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ListOrders implements store.Orders.
func (m *Memory) ListOrders(_ context.Context, f store.OrderFilter) ([]store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOrders"); err != nil {
		return nil, err
	}
	return window(m.filterOrders(f), f.Limit, f.Offset), nil
}

// CountOrders implements store.Orders.
func (m *Memory) CountOrders(_ context.Context, f store.OrderFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountOrders"); err != nil {
		return 0, err
	}
	return int64(len(m.filterOrders(f))), nil
}

// GetOrder implements store.Orders.
func (m *Memory) GetOrder(_ context.Context, id uuid.UUID) (store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOrder"); err != nil {
		return store.Order{}, err
	}
	i, ok := find(m.Orders, func(o store.Order) bool { return o.ID == id })
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return m.Orders[i], nil
}

// FindOrderByNumber implements store.Orders.
func (m *Memory) FindOrderByNumber(_ context.Context, number string) (store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindOrderByNumber"); err != nil {
		return store.Order{}, err
	}
	i, ok := find(m.Orders, func(o store.Order) bool { return o.OrderNumber == strings.TrimSpace(number) })
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return m.Orders[i], nil
}

// UpdateOrderStatus implements store.Orders.
func (m *Memory) UpdateOrderStatus(_ context.Context, id uuid.UUID, status string) (store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateOrderStatus"); err != nil {
		return store.Order{}, err
	}
	i, ok := find(m.Orders, func(o store.Order) bool { return o.ID == id })
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	m.Orders[i].Status = status
	m.Orders[i].UpdatedAt = m.now()
	return m.Orders[i], nil
}

// InsertGuestOrder implements store.GuestOrders.
func (m *Memory) InsertGuestOrder(_ context.Context, o store.GuestOrder) (store.GuestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertGuestOrder"); err != nil {
		return store.GuestOrder{}, err
	}
	o.ID = uuid.New()
	o.CreatedAt = m.now()
	m.GuestOrders = append(m.GuestOrders, o)
	return o, nil
}

// FindGuestOrder implements store.GuestOrders.
func (m *Memory) FindGuestOrder(_ context.Context, number, email string) (store.GuestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindGuestOrder"); err != nil {
		return store.GuestOrder{}, err
	}
	i, ok := find(m.GuestOrders, func(o store.GuestOrder) bool {
		return o.OrderNumber == strings.TrimSpace(number) && strings.EqualFold(o.Email, strings.TrimSpace(email))
	})
	if !ok {
		return store.GuestOrder{}, pgx.ErrNoRows
	}
	return m.GuestOrders[i], nil
}

// GetProfile implements store.Profiles.
func (m *Memory) GetProfile(_ context.Context, id uuid.UUID) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetProfile"); err != nil {
		return store.Profile{}, err
	}
	i, ok := find(m.Profiles, func(p store.Profile) bool { return p.ID == id })
	if !ok {
		return store.Profile{}, pgx.ErrNoRows
	}
	return m.Profiles[i], nil
}

// ProfilesByIDs implements store.Profiles.
func (m *Memory) ProfilesByIDs(_ context.Context, ids []uuid.UUID) ([]store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ProfilesByIDs"); err != nil {
		return nil, err
	}
	out := []store.Profile{}
	for _, p := range m.Profiles {
		if slices.Contains(ids, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListOptedInProfiles implements store.Profiles.
func (m *Memory) ListOptedInProfiles(context.Context) ([]store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOptedInProfiles"); err != nil {
		return nil, err
	}
	out := []store.Profile{}
	for _, p := range m.Profiles {
		if p.MarketingOptIn && p.Email != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// CountProfiles implements store.Profiles.
func (m *Memory) CountProfiles(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountProfiles"); err != nil {
		return 0, err
	}
	return int64(len(m.Profiles)), nil
}

func (m *Memory) filterTickets(f store.TicketFilter) []store.SupportTicket {
	out := []store.SupportTicket{}
	for _, t := range m.Tickets {
		if statusOK(f.Statuses, t.Status) {
			out = append(out, t)
		}
	}
	return out
}

// ListTickets implements store.Tickets.
func (m *Memory) ListTickets(_ context.Context, f store.TicketFilter) ([]store.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTickets"); err != nil {
		return nil, err
	}
	return window(m.filterTickets(f), f.Limit, f.Offset), nil
}

// CountTickets implements store.Tickets.
func (m *Memory) CountTickets(_ context.Context, f store.TicketFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountTickets"); err != nil {
		return 0, err
	}
	return int64(len(m.filterTickets(f))), nil
}

// InsertTicket implements store.Tickets.
func (m *Memory) InsertTicket(_ context.Context, t store.SupportTicket) (store.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertTicket"); err != nil {
		return store.SupportTicket{}, err
	}
	t.ID = uuid.New()
	t.CreatedAt = m.now()
	m.Tickets = append(m.Tickets, t)
	return t, nil
}

// UpdateTicketStatus implements store.Tickets.
func (m *Memory) UpdateTicketStatus(_ context.Context, id uuid.UUID, status string, resolvedAt *time.Time) (store.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateTicketStatus"); err != nil {
		return store.SupportTicket{}, err
	}
	i, ok := find(m.Tickets, func(t store.SupportTicket) bool { return t.ID == id })
	if !ok {
		return store.SupportTicket{}, pgx.ErrNoRows
	}
	m.Tickets[i].Status = status
	m.Tickets[i].ResolvedAt = resolvedAt
	return m.Tickets[i], nil
}

func (m *Memory) filterInvoices(f store.InvoiceFilter) []store.Invoice {
	out := []store.Invoice{}
	for _, inv := range m.Invoices {
		if !statusOK(f.Statuses, inv.Status) {
			continue
		}
		if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
			continue
		}
		if f.UserID != nil && inv.UserID != *f.UserID {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// ListInvoices implements store.Invoices.
func (m *Memory) ListInvoices(_ context.Context, f store.InvoiceFilter) ([]store.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListInvoices"); err != nil {
		return nil, err
	}
	return window(m.filterInvoices(f), f.Limit, f.Offset), nil
}

// CountInvoices implements store.Invoices.
func (m *Memory) CountInvoices(_ context.Context, f store.InvoiceFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountInvoices"); err != nil {
		return 0, err
	}
	return int64(len(m.filterInvoices(f))), nil
}

// GetInvoice implements store.Invoices.
func (m *Memory) GetInvoice(_ context.Context, id uuid.UUID) (store.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetInvoice"); err != nil {
		return store.Invoice{}, err
	}
	i, ok := find(m.Invoices, func(inv store.Invoice) bool { return inv.ID == id })
	if !ok {
		return store.Invoice{}, pgx.ErrNoRows
	}
	return m.Invoices[i], nil
}

// InsertInvoice implements store.Invoices.
func (m *Memory) InsertInvoice(_ context.Context, inv store.Invoice) (store.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertInvoice"); err != nil {
		return store.Invoice{}, err
	}
	inv.ID = uuid.New()
	inv.CreatedAt = m.now()
	m.Invoices = append(m.Invoices, inv)
	return inv, nil
}

// InsertInvoiceLine implements store.Invoices.
func (m *Memory) InsertInvoiceLine(_ context.Context, line store.InvoiceLine) (store.InvoiceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertInvoiceLine"); err != nil {
		return store.InvoiceLine{}, err
	}
	line.ID = uuid.New()
	m.InvoiceLines = append(m.InvoiceLines, line)
	return line, nil
}

// ListInvoiceLines implements store.Invoices.
func (m *Memory) ListInvoiceLines(_ context.Context, invoiceID uuid.UUID) ([]store.InvoiceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListInvoiceLines"); err != nil {
		return nil, err
	}
	out := []store.InvoiceLine{}
	for _, l := range m.InvoiceLines {
		if l.InvoiceID == invoiceID {
			out = append(out, l)
		}
	}
	return out, nil
}

// UpdateInvoiceStatus implements store.Invoices.
func (m *Memory) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, status string, paidAt *time.Time) (store.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateInvoiceStatus"); err != nil {
		return store.Invoice{}, err
	}
	i, ok := find(m.Invoices, func(inv store.Invoice) bool { return inv.ID == id })
	if !ok {
		return store.Invoice{}, pgx.ErrNoRows
	}
	m.Invoices[i].Status = status
	if paidAt != nil {
		m.Invoices[i].PaidAt = paidAt
	}
	return m.Invoices[i], nil
}

// ListPaymentAttempts implements store.PaymentAttempts.
func (m *Memory) ListPaymentAttempts(_ context.Context, f store.PaymentAttemptFilter) ([]store.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListPaymentAttempts"); err != nil {
		return nil, err
	}
	out := []store.PaymentAttempt{}
	for _, a := range m.PaymentAttempts {
		if !statusOK(f.Statuses, a.Status) {
			continue
		}
		if f.CreatedAfter != nil && a.CreatedAt.Before(*f.CreatedAfter) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, f.Limit, 0), nil
}

func (m *Memory) filterPaymentRequests(f store.PaymentRequestFilter) []store.PaymentRequest {
	out := []store.PaymentRequest{}
	for _, pr := range m.PaymentRequests {
		if !statusOK(f.Statuses, pr.Status) {
			continue
		}
		if f.ExpiresAfter != nil && !pr.ExpiresAt.After(*f.ExpiresAfter) {
			continue
		}
		out = append(out, pr)
	}
	return out
}

// ListPaymentRequests implements store.PaymentRequests.
func (m *Memory) ListPaymentRequests(_ context.Context, f store.PaymentRequestFilter) ([]store.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListPaymentRequests"); err != nil {
		return nil, err
	}
	return window(m.filterPaymentRequests(f), f.Limit, f.Offset), nil
}

// CountPaymentRequests implements store.PaymentRequests.
func (m *Memory) CountPaymentRequests(_ context.Context, f store.PaymentRequestFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountPaymentRequests"); err != nil {
		return 0, err
	}
	return int64(len(m.filterPaymentRequests(f))), nil
}

// InsertPaymentRequest implements store.PaymentRequests.
func (m *Memory) InsertPaymentRequest(_ context.Context, pr store.PaymentRequest) (store.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertPaymentRequest"); err != nil {
		return store.PaymentRequest{}, err
	}
	pr.ID = uuid.New()
	pr.CreatedAt = m.now()
	m.PaymentRequests = append(m.PaymentRequests, pr)
	return pr, nil
}

// SetPaymentRequestToken implements store.PaymentRequests.
func (m *Memory) SetPaymentRequestToken(_ context.Context, id uuid.UUID, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetPaymentRequestToken"); err != nil {
		return err
	}
	i, ok := find(m.PaymentRequests, func(pr store.PaymentRequest) bool { return pr.ID == id })
	if !ok {
		return pgx.ErrNoRows
	}
	m.PaymentRequests[i].TokenHash = &tokenHash
	return nil
}

// UpdatePaymentRequestStatus implements store.PaymentRequests.
func (m *Memory) UpdatePaymentRequestStatus(_ context.Context, id uuid.UUID, status string) (store.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdatePaymentRequestStatus"); err != nil {
		return store.PaymentRequest{}, err
	}
	i, ok := find(m.PaymentRequests, func(pr store.PaymentRequest) bool { return pr.ID == id })
	if !ok {
		return store.PaymentRequest{}, pgx.ErrNoRows
	}
	m.PaymentRequests[i].Status = status
	return m.PaymentRequests[i], nil
}

// ListMandates implements store.Mandates.
func (m *Memory) ListMandates(_ context.Context, f store.MandateFilter) ([]store.DDMandate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListMandates"); err != nil {
		return nil, err
	}
	out := []store.DDMandate{}
	for _, md := range m.Mandates {
		if statusOK(f.Statuses, md.Status) {
			out = append(out, md)
		}
	}
	return window(out, f.Limit, f.Offset), nil
}

// UpdateMandateStatus implements store.Mandates.
func (m *Memory) UpdateMandateStatus(_ context.Context, id uuid.UUID, status string) (store.DDMandate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateMandateStatus"); err != nil {
		return store.DDMandate{}, err
	}
	i, ok := find(m.Mandates, func(md store.DDMandate) bool { return md.ID == id })
	if !ok {
		return store.DDMandate{}, pgx.ErrNoRows
	}
	m.Mandates[i].Status = status
	return m.Mandates[i], nil
}

func (m *Memory) filterBookings(f store.InstallationFilter) []store.InstallationBooking {
	out := []store.InstallationBooking{}
	for _, b := range m.Bookings {
		if !statusOK(f.Statuses, b.Status) {
			continue
		}
		if f.Unassigned && b.TechnicianID != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ListInstallations implements store.Installations.
func (m *Memory) ListInstallations(_ context.Context, f store.InstallationFilter) ([]store.InstallationBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListInstallations"); err != nil {
		return nil, err
	}
	return window(m.filterBookings(f), f.Limit, f.Offset), nil
}

// CountInstallations implements store.Installations.
func (m *Memory) CountInstallations(_ context.Context, f store.InstallationFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountInstallations"); err != nil {
		return 0, err
	}
	return int64(len(m.filterBookings(f))), nil
}

// GetTechnician implements store.Installations.
func (m *Memory) GetTechnician(_ context.Context, id uuid.UUID) (store.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetTechnician"); err != nil {
		return store.Technician{}, err
	}
	i, ok := find(m.Technicians, func(t store.Technician) bool { return t.ID == id })
	if !ok {
		return store.Technician{}, pgx.ErrNoRows
	}
	return m.Technicians[i], nil
}

// ListTechnicians implements store.Installations.
func (m *Memory) ListTechnicians(context.Context) ([]store.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTechnicians"); err != nil {
		return nil, err
	}
	out := []store.Technician{}
	for _, t := range m.Technicians {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// AssignTechnician implements store.Installations.
func (m *Memory) AssignTechnician(_ context.Context, bookingID, technicianID uuid.UUID) (store.InstallationBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AssignTechnician"); err != nil {
		return store.InstallationBooking{}, err
	}
	i, ok := find(m.Bookings, func(b store.InstallationBooking) bool {
		return b.ID == bookingID && (b.Status == store.InstallScheduled || b.Status == store.InstallAssigned)
	})
	if !ok {
		return store.InstallationBooking{}, pgx.ErrNoRows
	}
	tech := technicianID
	m.Bookings[i].TechnicianID = &tech
	m.Bookings[i].Status = store.InstallAssigned
	return m.Bookings[i], nil
}

// ListSlots implements store.Installations.
func (m *Memory) ListSlots(_ context.Context, from, to time.Time) ([]store.InstallationSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSlots"); err != nil {
		return nil, err
	}
	out := []store.InstallationSlot{}
	for _, s := range m.Slots {
		if !s.SlotDate.Before(from) && s.SlotDate.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListCampaigns implements store.Campaigns.
func (m *Memory) ListCampaigns(_ context.Context, limit, offset int) ([]store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListCampaigns"); err != nil {
		return nil, err
	}
	out := slices.Clone(m.Campaigns)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// GetCampaign implements store.Campaigns.
func (m *Memory) GetCampaign(_ context.Context, id uuid.UUID) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCampaign"); err != nil {
		return store.Campaign{}, err
	}
	i, ok := find(m.Campaigns, func(c store.Campaign) bool { return c.ID == id })
	if !ok {
		return store.Campaign{}, pgx.ErrNoRows
	}
	return m.Campaigns[i], nil
}

// InsertCampaign implements store.Campaigns.
func (m *Memory) InsertCampaign(_ context.Context, c store.Campaign) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertCampaign"); err != nil {
		return store.Campaign{}, err
	}
	c.ID = uuid.New()
	c.CreatedAt = m.now()
	m.Campaigns = append(m.Campaigns, c)
	return c, nil
}

// UpdateCampaignStatus implements store.Campaigns.
func (m *Memory) UpdateCampaignStatus(_ context.Context, id uuid.UUID, status string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateCampaignStatus"); err != nil {
		return err
	}
	i, ok := find(m.Campaigns, func(c store.Campaign) bool { return c.ID == id })
	if !ok {
		return pgx.ErrNoRows
	}
	m.Campaigns[i].Status = status
	if sentAt != nil {
		m.Campaigns[i].SentAt = sentAt
	}
	return nil
}

// CompleteCampaign implements store.Campaigns.
func (m *Memory) CompleteCampaign(_ context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CompleteCampaign"); err != nil {
		return false, err
	}
	i, ok := find(m.Campaigns, func(c store.Campaign) bool { return c.ID == id })
	if !ok || m.Campaigns[i].Status != store.CampaignQueued {
		return false, nil
	}
	if _, pending := find(m.Recipients, func(r store.CampaignRecipient) bool {
		return r.CampaignID == id && r.Status == store.RecipientPending
	}); pending {
		return false, nil
	}
	m.Campaigns[i].Status = store.CampaignSent
	m.Campaigns[i].SentAt = &sentAt
	return true, nil
}

// GetEmailTemplate implements store.Campaigns.
func (m *Memory) GetEmailTemplate(_ context.Context, id uuid.UUID) (store.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetEmailTemplate"); err != nil {
		return store.EmailTemplate{}, err
	}
	i, ok := find(m.Templates, func(t store.EmailTemplate) bool { return t.ID == id })
	if !ok {
		return store.EmailTemplate{}, pgx.ErrNoRows
	}
	return m.Templates[i], nil
}

// InsertCampaignRecipient implements store.Campaigns.
func (m *Memory) InsertCampaignRecipient(_ context.Context, r store.CampaignRecipient) (store.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertCampaignRecipient"); err != nil {
		return store.CampaignRecipient{}, err
	}
	if i, ok := find(m.Recipients, func(x store.CampaignRecipient) bool {
		return x.CampaignID == r.CampaignID && x.UserID == r.UserID
	}); ok {
		m.Recipients[i].Email = r.Email
		return m.Recipients[i], nil
	}
	r.ID = uuid.New()
	m.Recipients = append(m.Recipients, r)
	return r, nil
}

// GetCampaignRecipient implements store.Campaigns.
func (m *Memory) GetCampaignRecipient(_ context.Context, id uuid.UUID) (store.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCampaignRecipient"); err != nil {
		return store.CampaignRecipient{}, err
	}
	i, ok := find(m.Recipients, func(r store.CampaignRecipient) bool { return r.ID == id })
	if !ok {
		return store.CampaignRecipient{}, pgx.ErrNoRows
	}
	return m.Recipients[i], nil
}

// MarkCampaignRecipient implements store.Campaigns.
func (m *Memory) MarkCampaignRecipient(_ context.Context, id uuid.UUID, status string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkCampaignRecipient"); err != nil {
		return err
	}
	i, ok := find(m.Recipients, func(r store.CampaignRecipient) bool { return r.ID == id })
	if !ok {
		return pgx.ErrNoRows
	}
	m.Recipients[i].Status = status
	m.Recipients[i].Error = errMsg
	if status == store.RecipientSent {
		now := m.now()
		m.Recipients[i].SentAt = &now
	}
	return nil
}

// InsertAuditLog implements store.AuditLogs.
func (m *Memory) InsertAuditLog(_ context.Context, entry store.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertAuditLog"); err != nil {
		return err
	}
	entry.ID = uuid.New()
	entry.CreatedAt = m.now()
	m.AuditLogs = append(m.AuditLogs, entry)
	return nil
}

// ListAuditLogs implements store.AuditLogs.
func (m *Memory) ListAuditLogs(_ context.Context, f store.AuditFilter) ([]store.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAuditLogs"); err != nil {
		return nil, err
	}
	out := m.filterAudit(f)
	slices.Reverse(out)
	return window(out, f.Limit, f.Offset), nil
}

// CountAuditLogs implements store.AuditLogs.
func (m *Memory) CountAuditLogs(_ context.Context, f store.AuditFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountAuditLogs"); err != nil {
		return 0, err
	}
	return int64(len(m.filterAudit(f))), nil
}

func (m *Memory) filterAudit(f store.AuditFilter) []store.AuditLog {
	var out []store.AuditLog
	for _, e := range m.AuditLogs {
		switch {
		case f.Action != "" && e.Action != f.Action,
			f.EntityType != "" && e.EntityType != f.EntityType,
			f.EntityID != "" && (e.EntityID == nil || *e.EntityID != f.EntityID),
			f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID),
			f.Since != nil && e.CreatedAt.Before(*f.Since):
			continue
		}
		out = append(out, e)
	}
	return out
}

// AuditEntries returns a copy of the recorded audit entries.
func (m *Memory) AuditEntries() []store.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.AuditLogs)
}

// InsertCommunication implements store.Communications.
func (m *Memory) InsertCommunication(_ context.Context, c store.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertCommunication"); err != nil {
		return err
	}
	c.ID = uuid.New()
	c.CreatedAt = m.now()
	m.Communications = append(m.Communications, c)
	return nil
}
