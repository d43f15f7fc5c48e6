package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	bookingColumns    = `id, user_id, order_id, slot_id, technician_id, scheduled_date, address, status, created_at`
	technicianColumns = `id, name, email, region, active`
	slotColumns       = `id, slot_date, time_block, capacity, booked`
)

func installationWhere(f InstallationFilter) *where {
	w := &where{}
	w.statusIn("status", f.Statuses)
	if f.Unassigned {
		w.and("technician_id IS NULL")
	}
	return w
}

// ListInstallations returns bookings matching f, soonest first.
func (s *PG) ListInstallations(ctx context.Context, f InstallationFilter) ([]InstallationBooking, error) {
	w := installationWhere(f)
	sql := `SELECT ` + bookingColumns + ` FROM installation_bookings` + w.String() + ` ORDER BY scheduled_date ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[InstallationBooking](ctx, s, sql, w.args...)
}

// CountInstallations counts bookings matching f.
func (s *PG) CountInstallations(ctx context.Context, f InstallationFilter) (int64, error) {
	w := installationWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM installation_bookings`+w.String(), w.args...)
}

// GetTechnician fetches a technician by id.
func (s *PG) GetTechnician(ctx context.Context, id uuid.UUID) (Technician, error) {
	return queryOne[Technician](ctx, s, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id)
}

// ListTechnicians returns active technicians.
func (s *PG) ListTechnicians(ctx context.Context) ([]Technician, error) {
	return queryAll[Technician](ctx, s, `SELECT `+technicianColumns+` FROM technicians WHERE active ORDER BY name`)
}

// AssignTechnician attaches a technician to an open booking and marks it
// assigned. Completed or cancelled bookings yield pgx.ErrNoRows.
func (s *PG) AssignTechnician(ctx context.Context, bookingID, technicianID uuid.UUID) (InstallationBooking, error) {
	return queryOne[InstallationBooking](ctx, s, `UPDATE installation_bookings SET technician_id = $2, status = $3
WHERE id = $1 AND status IN ($4, $3) RETURNING `+bookingColumns,
		bookingID, technicianID, InstallAssigned, InstallScheduled)
}

// ListSlots returns installation slots in [from, to).
func (s *PG) ListSlots(ctx context.Context, from, to time.Time) ([]InstallationSlot, error) {
	return queryAll[InstallationSlot](ctx, s, `SELECT `+slotColumns+` FROM installation_slots WHERE slot_date >= $1 AND slot_date < $2 ORDER BY slot_date, time_block`, from, to)
}
