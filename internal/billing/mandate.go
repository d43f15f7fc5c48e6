package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// ValidMandateStatus reports whether status belongs to the mandate lifecycle.
func ValidMandateStatus(status string) bool {
	switch status {
	case store.MandatePendingSubmission, store.MandateSubmitted, store.MandateActive, store.MandateFailed, store.MandateCancelled:
		return true
	}
	return false
}

// ListMandates returns mandates filtered by status.
func (s *Service) ListMandates(ctx context.Context, f store.MandateFilter) ([]store.DDMandate, error) {
	items, err := s.Mandates.ListMandates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list mandates: %w", err)
	}
	return items, nil
}

// UpdateMandateStatus records the bank's response to a mandate submission.
func (s *Service) UpdateMandateStatus(ctx context.Context, id uuid.UUID, status string) (store.DDMandate, error) {
	if !ValidMandateStatus(status) {
		return store.DDMandate{}, common.NewValidationError(map[string]string{
			"status": "must be one of: pending_submission submitted active failed cancelled",
		}, ErrInvalidStatus)
	}
	m, err := s.Mandates.UpdateMandateStatus(ctx, id, status)
	if err != nil {
		return store.DDMandate{}, common.FromStoreError("mandate", err)
	}
	return m, nil
}
