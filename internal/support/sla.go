package support

import (
	"strings"
	"time"

	"github.com/noah-isme/backend-telco/internal/store"
)

// DefaultSLAHours applies to priorities outside the table.
const DefaultSLAHours = 24

// SurfaceWithinHours is the remaining-time threshold at which a ticket appears
// on the SLA queue.
const SurfaceWithinHours = 24

var slaHours = map[string]float64{
	store.PriorityUrgent: 4,
	store.PriorityHigh:   12,
	store.PriorityMedium: 24,
	store.PriorityLow:    48,
}

// SLAHours returns the resolution target for a priority.
func SLAHours(priority string) float64 {
	if h, ok := slaHours[strings.ToLower(strings.TrimSpace(priority))]; ok {
		return h
	}
	return DefaultSLAHours
}

// SLAStatus is the computed SLA position of a ticket.
type SLAStatus struct {
	SLAHours       float64 `json:"slaHours"`
	HoursElapsed   float64 `json:"hoursElapsed"`
	HoursRemaining float64 `json:"hoursRemaining"`
	Overdue        bool    `json:"overdue"`
}

// Surfaced reports whether the ticket belongs on the SLA queue.
func (s SLAStatus) Surfaced() bool {
	return s.HoursRemaining <= SurfaceWithinHours
}

// ComputeSLA returns the SLA position of a ticket created at createdAt with
// the given priority, as of now.
func ComputeSLA(priority string, createdAt, now time.Time) SLAStatus {
	sla := SLAHours(priority)
	elapsed := now.Sub(createdAt).Hours()
	remaining := sla - elapsed
	return SLAStatus{
		SLAHours:       sla,
		HoursElapsed:   elapsed,
		HoursRemaining: remaining,
		Overdue:        remaining < 0,
	}
}

// ForTicket computes the SLA position of t.
func ForTicket(t store.SupportTicket, now time.Time) SLAStatus {
	return ComputeSLA(t.Priority, t.CreatedAt, now)
}
