package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const orderColumns = `id, order_number, user_id, service_type, plan_name, status, total, created_at, updated_at`

const guestOrderColumns = `id, order_number, email, full_name, phone, address, plans, addons, monthly_total, status, created_at`

const profileColumns = `id, email, full_name, phone, role, marketing_opt_in, created_at`

func orderWhere(f OrderFilter) *where {
	w := &where{}
	w.statusIn("status", f.Statuses)
	if f.UserID != nil {
		w.and("user_id = " + w.arg(*f.UserID))
	}
	return w
}

// ListOrders returns orders matching f, oldest first.
func (s *PG) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	w := orderWhere(f)
	sql := `SELECT ` + orderColumns + ` FROM orders` + w.String() + ` ORDER BY created_at ASC` + w.page(clampLimit(f.Limit, MaxScan, MaxScan), f.Offset)
	return queryAll[Order](ctx, s, sql, w.args...)
}

// CountOrders counts orders matching f.
func (s *PG) CountOrders(ctx context.Context, f OrderFilter) (int64, error) {
	w := orderWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...)
}

// GetOrder fetches an order by id.
func (s *PG) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return queryOne[Order](ctx, s, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindOrderByNumber fetches an order by its customer-facing number.
func (s *PG) FindOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	return queryOne[Order](ctx, s, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, strings.TrimSpace(orderNumber))
}

// UpdateOrderStatus sets an order's status and returns the updated row.
func (s *PG) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (Order, error) {
	return queryOne[Order](ctx, s, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+orderColumns, id, status)
}

// InsertGuestOrder persists a guest order.
func (s *PG) InsertGuestOrder(ctx context.Context, o GuestOrder) (GuestOrder, error) {
	return queryOne[GuestOrder](ctx, s, `INSERT INTO guest_orders (order_number, email, full_name, phone, address, plans, addons, monthly_total, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+guestOrderColumns,
		o.OrderNumber, o.Email, o.FullName, o.Phone, jsonOrEmpty(o.Address, "{}"), jsonOrEmpty(o.Plans, "[]"), jsonOrEmpty(o.Addons, "[]"), o.MonthlyTotal, o.Status)
}

// FindGuestOrder looks up a guest order by number and email.
func (s *PG) FindGuestOrder(ctx context.Context, orderNumber, email string) (GuestOrder, error) {
	return queryOne[GuestOrder](ctx, s, `SELECT `+guestOrderColumns+` FROM guest_orders WHERE order_number = $1 AND lower(email) = lower($2)`,
		strings.TrimSpace(orderNumber), strings.TrimSpace(email))
}

// GetProfile fetches a profile by id.
func (s *PG) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return queryOne[Profile](ctx, s, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// ProfilesByIDs fetches the profiles whose id is in ids.
func (s *PG) ProfilesByIDs(ctx context.Context, ids []uuid.UUID) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}
	return queryAll[Profile](ctx, s, `SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1)`, ids)
}

// ListOptedInProfiles returns profiles that accept marketing email.
func (s *PG) ListOptedInProfiles(ctx context.Context) ([]Profile, error) {
	return queryAll[Profile](ctx, s, `SELECT `+profileColumns+` FROM profiles WHERE marketing_opt_in AND email <> '' ORDER BY created_at`)
}

// CountProfiles counts all profiles.
func (s *PG) CountProfiles(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM profiles`)
}

func jsonOrEmpty(raw []byte, empty string) []byte {
	if len(raw) == 0 {
		return []byte(empty)
	}
	return raw
}
