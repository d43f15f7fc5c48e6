// Package analytics computes the admin KPI counters.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/noah-isme/backend-telco/internal/cache"
	"github.com/noah-isme/backend-telco/internal/store"
)

// DefaultTTL keeps KPIs fresh enough for a dashboard refresh.
const DefaultTTL = 60 * time.Second

// KPIs are the headline counters on the admin dashboard.
type KPIs struct {
	Customers              int64     `json:"customers"`
	OpenOrders             int64     `json:"openOrders"`
	ActiveServices         int64     `json:"activeServices"`
	OpenTickets            int64     `json:"openTickets"`
	OverdueInvoices        int64     `json:"overdueInvoices"`
	PendingPaymentRequests int64     `json:"pendingPaymentRequests"`
	UnassignedInstalls     int64     `json:"unassignedInstalls"`
	ComputedAt             time.Time `json:"computedAt"`
}

// Service counts KPIs concurrently and caches the result in Redis.
type Service struct {
	Orders   store.Orders
	Profiles store.Profiles
	Tickets  store.Tickets
	Invoices store.Invoices
	Payments store.PaymentRequests
	Installs store.Installations

	R      redis.Cmdable
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
	Logger *zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) key() string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "telco"
	}
	return cache.Key(prefix, "kpis")
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

// KPIs returns cached counters when present, else recomputes them. Cache
// errors never fail the request.
func (s *Service) KPIs(ctx context.Context) (KPIs, error) {
	if s == nil || s.Orders == nil {
		return KPIs{}, errors.New("analytics service not configured")
	}
	if s.R != nil {
		var cached KPIs
		err := cache.GetJSON(ctx, s.R, s.key(), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.warn(err, "kpi cache read")
		}
	}

	k, err := s.compute(ctx)
	if err != nil {
		return KPIs{}, err
	}
	if s.R != nil {
		if err := cache.SetJSON(ctx, s.R, s.key(), k, s.ttl()); err != nil {
			s.warn(err, "kpi cache write")
		}
	}
	return k, nil
}

// Invalidate drops the cached counters.
func (s *Service) Invalidate(ctx context.Context) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, s.key()).Err()
}

func (s *Service) compute(ctx context.Context) (KPIs, error) {
	now := s.now()
	k := KPIs{ComputedAt: now}

	// each task writes its own field
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) (err error) {
		k.Customers, err = s.Profiles.CountProfiles(ctx)
		return wrap("customers", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.OpenOrders, err = s.Orders.CountOrders(ctx, store.OrderFilter{
			Statuses: []string{store.OrderPending, store.OrderProcessing, store.OrderProvisioning},
		})
		return wrap("open orders", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.ActiveServices, err = s.Orders.CountOrders(ctx, store.OrderFilter{Statuses: []string{store.OrderActive}})
		return wrap("active services", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.OpenTickets, err = s.Tickets.CountTickets(ctx, store.TicketFilter{
			Statuses: []string{store.TicketOpen, store.TicketInProgress},
		})
		return wrap("open tickets", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.OverdueInvoices, err = s.Invoices.CountInvoices(ctx, store.InvoiceFilter{
			Statuses:  []string{store.InvoiceSent, store.InvoiceOverdue},
			DueBefore: &now,
		})
		return wrap("overdue invoices", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.PendingPaymentRequests, err = s.Payments.CountPaymentRequests(ctx, store.PaymentRequestFilter{
			Statuses:     []string{store.RequestPending},
			ExpiresAfter: &now,
		})
		return wrap("pending payment requests", err)
	})
	p.Go(func(ctx context.Context) (err error) {
		k.UnassignedInstalls, err = s.Installs.CountInstallations(ctx, store.InstallationFilter{
			Statuses:   []string{store.InstallScheduled},
			Unassigned: true,
		})
		return wrap("unassigned installs", err)
	})
	if err := p.Wait(); err != nil {
		return KPIs{}, err
	}
	return k, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("count %s: %w", what, err)
	}
	return nil
}

func (s *Service) warn(err error, msg string) {
	if s.Logger != nil {
		s.Logger.Warn().Err(err).Msg(msg)
	}
}
