// Package payment issues pay-by-link payment requests.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// TokenBytes is the entropy of a payment link token.
const TokenBytes = 32

// DefaultRequestTTL is how long a payment link stays payable.
const DefaultRequestTTL = 7 * 24 * time.Hour

var (
	ErrInvalidAmount = errors.New("payment: amount must be positive")
	ErrInvalidStatus = errors.New("payment: invalid request status")
)

// Step names a stage of payment request creation.
type Step string

const (
	StepInsert Step = "insert"
	StepToken  Step = "token"
	StepEmail  Step = "email"
)

// PartialError reports a creation that failed after the request row was
// written. Earlier steps are not rolled back.
type PartialError struct {
	Step      Step
	RequestID uuid.UUID
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("payment request %s: %s step failed: %v", e.RequestID, e.Step, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// CreateRequest is the admin payload for a new payment request.
type CreateRequest struct {
	UserID      uuid.UUID       `json:"userId" validate:"required"`
	InvoiceID   *uuid.UUID      `json:"invoiceId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
}

// Created is a stored request plus the link that was emailed.
type Created struct {
	Request store.PaymentRequest `json:"request"`
	Link    string               `json:"link"`
}

// Service creates and updates payment requests.
type Service struct {
	Store    store.PaymentRequests
	Profiles store.Profiles
	Email    common.EmailSender
	Logger   *zerolog.Logger
	LinkBase string
	TTL      time.Duration
	Now      func() time.Time
	Token    func(n int) (string, error)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) link(token string) string {
	return s.LinkBase + "?token=" + url.QueryEscape(token)
}

// Create runs the steps in order: insert the request, store the hash of a
// fresh link token, email the link. A failure after the insert returns a
// *PartialError carrying the request id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	ctx, span := otel.Tracer("telco.payment").Start(ctx, "PaymentService.Create")
	defer span.End()

	if err := common.Validate(req); err != nil {
		return Created{}, err
	}
	if !req.Amount.IsPositive() {
		return Created{}, common.NewValidationError(map[string]string{"amount": "must be greater than 0"}, ErrInvalidAmount)
	}
	profile, err := s.Profiles.GetProfile(ctx, req.UserID)
	if err != nil {
		return Created{}, common.FromStoreError("customer", err)
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	pr, err := s.Store.InsertPaymentRequest(ctx, store.PaymentRequest{
		UserID:      req.UserID,
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount.Round(2),
		Description: req.Description,
		Status:      store.RequestPending,
		ExpiresAt:   s.now().Add(ttl),
	})
	if err != nil {
		return Created{}, common.FromStoreError("payment request", err)
	}
	span.SetAttributes(attribute.String("payment_request.id", pr.ID.String()))

	newToken := s.Token
	if newToken == nil {
		newToken = common.NewURLToken
	}
	token, err := newToken(TokenBytes)
	if err != nil {
		return Created{Request: pr}, &PartialError{Step: StepToken, RequestID: pr.ID, Err: err}
	}
	hash := common.Sha256Hex(token)
	if err := s.Store.SetPaymentRequestToken(ctx, pr.ID, hash); err != nil {
		return Created{Request: pr}, &PartialError{Step: StepToken, RequestID: pr.ID, Err: err}
	}
	pr.TokenHash = &hash

	out := Created{Request: pr, Link: s.link(token)}
	if s.Email != nil {
		err := s.Email.Send(ctx, common.EmailPaymentRequest, map[string]any{
			"to":          profile.Email,
			"userId":      profile.ID.String(),
			"name":        profile.DisplayName(),
			"amount":      pr.Amount.StringFixed(2),
			"description": pr.Description,
			"link":        out.Link,
			"expiresAt":   pr.ExpiresAt.Format(time.RFC3339),
		})
		if err != nil {
			return out, &PartialError{Step: StepEmail, RequestID: pr.ID, Err: err}
		}
	}
	return out, nil
}

// ValidStatus reports whether status belongs to the request lifecycle.
func ValidStatus(status string) bool {
	switch status {
	case store.RequestPending, store.RequestPaid, store.RequestExpired, store.RequestCancelled:
		return true
	}
	return false
}

// UpdateStatus sets a request's status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (store.PaymentRequest, error) {
	if !ValidStatus(status) {
		return store.PaymentRequest{}, common.NewValidationError(map[string]string{
			"status": "must be one of: pending paid expired cancelled",
		}, ErrInvalidStatus)
	}
	pr, err := s.Store.UpdatePaymentRequestStatus(ctx, id, status)
	if err != nil {
		return store.PaymentRequest{}, common.FromStoreError("payment request", err)
	}
	return pr, nil
}

// List returns a page of requests filtered by status.
func (s *Service) List(ctx context.Context, statuses []string, page common.Page) ([]store.PaymentRequest, int64, error) {
	f := store.PaymentRequestFilter{Statuses: statuses, Limit: page.Size, Offset: page.Offset()}
	items, err := s.Store.ListPaymentRequests(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment requests: %w", err)
	}
	total, err := s.Store.CountPaymentRequests(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count payment requests: %w", err)
	}
	return items, total, nil
}
