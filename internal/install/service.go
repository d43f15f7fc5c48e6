// Package install assigns field technicians to installation bookings.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// ErrTechnicianInactive is returned when assigning a technician who is not
// currently working.
var ErrTechnicianInactive = errors.New("install: technician inactive")

// Service manages installation bookings.
type Service struct {
	Store store.Installations
}

// List returns a page of bookings.
func (s *Service) List(ctx context.Context, f store.InstallationFilter) ([]store.InstallationBooking, int64, error) {
	items, err := s.Store.ListInstallations(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list installations: %w", err)
	}
	total, err := s.Store.CountInstallations(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count installations: %w", err)
	}
	return items, total, nil
}

// Technicians returns active technicians.
func (s *Service) Technicians(ctx context.Context) ([]store.Technician, error) {
	techs, err := s.Store.ListTechnicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	return techs, nil
}

// Slots returns installation windows between from and to.
func (s *Service) Slots(ctx context.Context, from, to time.Time) ([]store.InstallationSlot, error) {
	if !to.After(from) {
		return nil, common.NewValidationError(map[string]string{"to": "must be after from"}, nil)
	}
	slots, err := s.Store.ListSlots(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Assign puts a technician on a scheduled or already assigned booking.
// Completed and cancelled bookings report not found. Slot capacity is
// enforced by the database, not here.
func (s *Service) Assign(ctx context.Context, bookingID, technicianID uuid.UUID) (store.InstallationBooking, error) {
	tech, err := s.Store.GetTechnician(ctx, technicianID)
	if err != nil {
		return store.InstallationBooking{}, common.FromStoreError("technician", err)
	}
	if !tech.Active {
		return store.InstallationBooking{}, common.NewAppError("CONFLICT", "technician is not active", http.StatusConflict, ErrTechnicianInactive)
	}
	booking, err := s.Store.AssignTechnician(ctx, bookingID, technicianID)
	if err != nil {
		return store.InstallationBooking{}, common.FromStoreError("installation", err)
	}
	return booking, nil
}
