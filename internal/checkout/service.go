// Package checkout keeps the visitor's in-progress bundle selection in Redis
// and turns it into a guest order on submit.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/cache"
	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/pricing"
	"github.com/noah-isme/backend-telco/internal/store"
)

// DefaultDraftTTL is how long an untouched draft survives.
const DefaultDraftTTL = 2 * time.Hour

var (
	// ErrDraftNotFound is returned when the session has no draft.
	ErrDraftNotFound = errors.New("checkout: draft not found")
	// ErrInvalidSession is returned for malformed session identifiers.
	ErrInvalidSession = errors.New("checkout: invalid session id")
	// ErrCustomerRequired is returned when submitting a draft without contact details.
	ErrCustomerRequired = errors.New("checkout: customer details required")
)

// Address is the installation address of a guest order.
type Address struct {
	Line1    string `json:"line1" validate:"required,max=200"`
	Line2    string `json:"line2,omitempty" validate:"max=200"`
	City     string `json:"city" validate:"required,max=100"`
	Postcode string `json:"postcode" validate:"required,max=10"`
}

// Customer holds the guest's contact details.
type Customer struct {
	FullName string   `json:"fullName" validate:"required,max=120"`
	Email    string   `json:"email" validate:"required,email"`
	Phone    string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address  *Address `json:"address,omitempty"`
}

// Draft is the in-progress order of one browser session.
type Draft struct {
	Selection pricing.Selection `json:"selection"`
	Customer  *Customer         `json:"customer,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// DraftView is a draft together with its current price.
type DraftView struct {
	SessionID string        `json:"sessionId"`
	Draft     Draft         `json:"draft"`
	Quote     pricing.Quote `json:"quote"`
}

// Submission is the result of submitting a draft.
type Submission struct {
	Order store.GuestOrder `json:"order"`
	Quote pricing.Quote    `json:"quote"`
}

// Service manages drafts and their submission.
type Service struct {
	Redis  redis.Cmdable
	Orders store.GuestOrders
	Email  common.EmailSender
	Logger *zerolog.Logger
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultDraftTTL
}

func (s *Service) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "telco"
	}
	return cache.Key(prefix, "draft", sessionID)
}

// ValidSessionID reports whether id is usable as a draft key: 8 to 128
// characters of letters, digits, '-' or '_'.
func ValidSessionID(id string) bool {
	if len(id) < 8 || len(id) > 128 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func sessionError(id string) error {
	if ValidSessionID(id) {
		return nil
	}
	return common.NewAppError("BAD_REQUEST", "invalid session id", http.StatusBadRequest, ErrInvalidSession)
}

// Save validates and prices the draft, then stores it for the session,
// resetting its TTL.
func (s *Service) Save(ctx context.Context, sessionID string, draft Draft) (DraftView, error) {
	if err := sessionError(sessionID); err != nil {
		return DraftView{}, err
	}
	if err := common.Validate(draft.Selection); err != nil {
		return DraftView{}, err
	}
	if draft.Customer != nil {
		if err := common.Validate(draft.Customer); err != nil {
			return DraftView{}, err
		}
	}
	quote, err := pricing.QuoteSelection(draft.Selection)
	if err != nil {
		return DraftView{}, err
	}
	draft.UpdatedAt = s.now()
	if err := cache.SetJSON(ctx, s.Redis, s.key(sessionID), draft, s.ttl()); err != nil {
		return DraftView{}, fmt.Errorf("save draft: %w", err)
	}
	obs.ObserveDraftOrder("saved")
	return DraftView{SessionID: sessionID, Draft: draft, Quote: quote}, nil
}

// Get loads the session's draft with a fresh quote.
func (s *Service) Get(ctx context.Context, sessionID string) (DraftView, error) {
	if err := sessionError(sessionID); err != nil {
		return DraftView{}, err
	}
	var draft Draft
	if err := cache.GetJSON(ctx, s.Redis, s.key(sessionID), &draft); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return DraftView{}, common.NotFound("draft", ErrDraftNotFound)
		}
		return DraftView{}, fmt.Errorf("load draft: %w", err)
	}
	quote, err := pricing.QuoteSelection(draft.Selection)
	if err != nil {
		return DraftView{}, err
	}
	return DraftView{SessionID: sessionID, Draft: draft, Quote: quote}, nil
}

// Delete removes the session's draft. Deleting a missing draft succeeds.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if err := sessionError(sessionID); err != nil {
		return err
	}
	if err := s.Redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	obs.ObserveDraftOrder("cleared")
	return nil
}

// OrderNumber formats a guest order reference such as ORD-20250310-4B7E21.
func OrderNumber(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}

// Submit prices the session's draft, stores it as a guest order, sends the
// confirmation email and clears the draft. customer overrides the details
// saved on the draft when provided.
func (s *Service) Submit(ctx context.Context, sessionID string, customer *Customer) (Submission, error) {
	view, err := s.Get(ctx, sessionID)
	if err != nil {
		return Submission{}, err
	}
	if customer == nil {
		customer = view.Draft.Customer
	}
	if customer == nil {
		return Submission{}, common.NewValidationError(map[string]string{"customer": "is required"}, ErrCustomerRequired)
	}
	if err := common.Validate(customer); err != nil {
		return Submission{}, err
	}

	plans, err := json.Marshal(view.Quote.Plans)
	if err != nil {
		return Submission{}, fmt.Errorf("encode plans: %w", err)
	}
	addons, err := json.Marshal(view.Quote.Addons)
	if err != nil {
		return Submission{}, fmt.Errorf("encode addons: %w", err)
	}
	var address json.RawMessage
	if customer.Address != nil {
		if address, err = json.Marshal(customer.Address); err != nil {
			return Submission{}, fmt.Errorf("encode address: %w", err)
		}
	}
	var phone *string
	if p := strings.TrimSpace(customer.Phone); p != "" {
		phone = &p
	}

	order, err := s.Orders.InsertGuestOrder(ctx, store.GuestOrder{
		OrderNumber:  OrderNumber(s.now(), uuid.New()),
		Email:        strings.TrimSpace(customer.Email),
		FullName:     strings.TrimSpace(customer.FullName),
		Phone:        phone,
		Address:      address,
		Plans:        plans,
		Addons:       addons,
		MonthlyTotal: view.Quote.MonthlyTotal,
		Status:       store.OrderPending,
	})
	if err != nil {
		return Submission{}, common.FromStoreError("guest order", err)
	}
	obs.ObserveDraftOrder("submitted")

	if s.Email != nil {
		err := s.Email.Send(ctx, common.EmailOrderConfirmation, map[string]any{
			"to":           order.Email,
			"name":         order.FullName,
			"orderNumber":  order.OrderNumber,
			"plans":        view.Quote.Plans,
			"monthlyTotal": view.Quote.MonthlyTotal.StringFixed(2),
			"savings":      view.Quote.Bundle.Savings.StringFixed(2),
		})
		if err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("order confirmation email failed")
		}
	}
	if err := s.Delete(ctx, sessionID); err != nil && s.Logger != nil {
		s.Logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("draft not cleared after submit")
	}
	return Submission{Order: order, Quote: view.Quote}, nil
}
