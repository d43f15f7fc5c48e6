package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG implements Store on a pgx connection pool.
type PG struct {
	pool *pgxpool.Pool
}

var _ Store = (*PG)(nil)

// NewPG constructs a PG store.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// Ping verifies database connectivity.
func (s *PG) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	return s.pool.Ping(ctx)
}

func (s *PG) ready() error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	return nil
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) and(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) statusIn(column string, statuses []string) {
	if len(statuses) == 0 {
		return
	}
	w.and(column + " = ANY(" + w.arg(statuses) + ")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(limit, offset int) string {
	if offset < 0 {
		offset = 0
	}
	return " LIMIT " + w.arg(limit) + " OFFSET " + w.arg(offset)
}

func queryAll[T any](ctx context.Context, s *PG, sql string, args ...any) ([]T, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func queryOne[T any](ctx context.Context, s *PG, sql string, args ...any) (T, error) {
	var zero T
	if err := s.ready(); err != nil {
		return zero, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return zero, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
}

func (s *PG) count(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PG) exec(ctx context.Context, sql string, args ...any) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 && strings.HasPrefix(sql, "UPDATE") {
		return pgx.ErrNoRows
	}
	return nil
}
