// Package adminqueue builds the admin dashboard queues: filtered primary rows
// enriched with related rows fetched in a second round trip, then filtered,
// sorted and paginated in memory.
package adminqueue

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// DefaultPageSize is the number of rows per queue page.
const DefaultPageSize = 10

// Enriched pairs a fetched row with its related row. Related is nil when the
// foreign key is null or the related row does not exist.
type Enriched[P any, R any] struct {
	Row     P  `json:"row"`
	Related *R `json:"related"`
}

// Enrich attaches related rows to rows. fk extracts the foreign key of a row
// (ok=false for a null key); fetch loads related rows for a distinct key set;
// key returns the key of a related row. Rows are never mutated.
func Enrich[P any, R any, K comparable](
	ctx context.Context,
	rows []P,
	fk func(P) (K, bool),
	fetch func(context.Context, []K) ([]R, error),
	key func(R) K,
) ([]Enriched[P, R], error) {
	keys := lo.Uniq(lo.FilterMap(rows, func(row P, _ int) (K, bool) {
		return fk(row)
	}))

	lookup := map[K]R{}
	if len(keys) > 0 {
		related, err := fetch(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("fetch related rows: %w", err)
		}
		lookup = lo.KeyBy(related, key)
	}

	out := make([]Enriched[P, R], 0, len(rows))
	for _, row := range rows {
		item := Enriched[P, R]{Row: row}
		if k, ok := fk(row); ok {
			if rel, found := lookup[k]; found {
				item.Related = &rel
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Page is one page of a queue.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	// Truncated means the primary fetch stopped at its scan cap, so Total
	// counts only the rows that were read.
	Truncated bool `json:"truncated"`
}

// Paginate slices items to the requested 1-based page. A page past the last
// yields an empty slice.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	total := len(items)
	totalPages := (total + size - 1) / size
	start := (page - 1) * size
	out := Page[T]{Page: page, PageSize: size, Total: total, TotalPages: totalPages, Items: []T{}}
	if start >= total {
		return out
	}
	end := min(start+size, total)
	out.Items = items[start:end]
	return out
}
