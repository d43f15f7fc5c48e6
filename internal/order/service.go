// Package order lists customer orders, moves them through the provisioning
// lifecycle and serves public order tracking.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

var (
	// ErrInvalidTransition is returned when a status change would move an
	// order backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("order: transition not allowed")
	// ErrUnknownStatus is returned for a status outside the order lifecycle.
	ErrUnknownStatus = errors.New("order: unknown status")
)

// Lifecycle lists the forward path of an order.
var Lifecycle = []string{store.OrderPending, store.OrderProcessing, store.OrderProvisioning, store.OrderActive}

func rank(status string) int {
	for i, s := range Lifecycle {
		if s == status {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition is possible from status.
func Terminal(status string) bool {
	return status == store.OrderActive || status == store.OrderCancelled
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward; cancellation is allowed from any non-terminal
// status.
func CanTransition(from, to string) bool {
	if Terminal(from) || from == to {
		return false
	}
	if to == store.OrderCancelled {
		return rank(from) >= 0
	}
	fr, tr := rank(from), rank(to)
	return fr >= 0 && tr > fr
}

// Service manages orders.
type Service struct {
	Orders   store.Orders
	Guests   store.GuestOrders
	Profiles store.Profiles
	Now      func() time.Time
}

// List returns a page of orders filtered by status and optionally by owner.
func (s *Service) List(ctx context.Context, f store.OrderFilter) ([]store.Order, int64, error) {
	orders, err := s.Orders.ListOrders(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	total, err := s.Orders.CountOrders(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus applies a lifecycle transition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (store.Order, error) {
	if rank(status) < 0 && status != store.OrderCancelled {
		return store.Order{}, common.NewValidationError(map[string]string{
			"status": "must be one of: pending processing provisioning active cancelled",
		}, ErrUnknownStatus)
	}
	current, err := s.Orders.GetOrder(ctx, id)
	if err != nil {
		return store.Order{}, common.FromStoreError("order", err)
	}
	if !CanTransition(current.Status, status) {
		return store.Order{}, common.NewAppError("INVALID_STATE",
			fmt.Sprintf("cannot move order from %s to %s", current.Status, status),
			http.StatusConflict, ErrInvalidTransition)
	}
	updated, err := s.Orders.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return store.Order{}, common.FromStoreError("order", err)
	}
	return updated, nil
}

// Step is one stage of the tracking timeline.
type Step struct {
	Status  string `json:"status"`
	Reached bool   `json:"reached"`
}

// Tracking is the public view of an order.
type Tracking struct {
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	Guest       bool      `json:"guest"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"createdAt"`
	Steps       []Step    `json:"steps"`
}

func timeline(status string) []Step {
	r := rank(status)
	steps := make([]Step, 0, len(Lifecycle))
	for i, s := range Lifecycle {
		steps = append(steps, Step{Status: s, Reached: r >= 0 && i <= r})
	}
	return steps
}

// Track finds an order by number and the email it was placed with. Account
// orders are matched against the owner's profile email. A mismatch is
// reported as not found.
func (s *Service) Track(ctx context.Context, orderNumber, email string) (Tracking, error) {
	orderNumber, email = strings.TrimSpace(orderNumber), strings.TrimSpace(email)
	if orderNumber == "" || email == "" {
		return Tracking{}, common.NewValidationError(map[string]string{
			"orderNumber": "required",
			"email":       "required",
		}, nil)
	}
	if s.Guests != nil {
		g, err := s.Guests.FindGuestOrder(ctx, orderNumber, email)
		switch {
		case err == nil:
			return Tracking{
				OrderNumber: g.OrderNumber,
				Status:      g.Status,
				Guest:       true,
				Summary:     "£" + g.MonthlyTotal.StringFixed(2) + "/month",
				CreatedAt:   g.CreatedAt,
				Steps:       timeline(g.Status),
			}, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return Tracking{}, fmt.Errorf("find guest order: %w", err)
		}
	}
	o, err := s.Orders.FindOrderByNumber(ctx, orderNumber)
	if err != nil {
		return Tracking{}, common.FromStoreError("order", err)
	}
	if o.UserID == nil || s.Profiles == nil {
		return Tracking{}, common.NotFound("order", nil)
	}
	p, err := s.Profiles.GetProfile(ctx, *o.UserID)
	if err != nil {
		return Tracking{}, common.FromStoreError("order", err)
	}
	if !strings.EqualFold(p.Email, email) {
		return Tracking{}, common.NotFound("order", nil)
	}
	return Tracking{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Summary:     o.PlanName,
		CreatedAt:   o.CreatedAt,
		Steps:       timeline(o.Status),
	}, nil
}
