package common

import (
	"net/http"
	"strconv"
)

// MaxPageSize caps ?limit on every list endpoint.
const MaxPageSize = 100

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Meta describes this page within total rows.
func (p Page) Meta(total int64) Pagination {
	return NewPagination(p.Number, p.Size, int(total))
}

// Pagination is the metadata block sent next to list data.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// ParsePage reads ?page and ?limit. Missing or non-positive values fall back
// to page 1 and defaultSize; limit is capped at MaxPageSize.
func ParsePage(r *http.Request, defaultSize int) Page {
	q := r.URL.Query()
	p := Page{
		Number: positive(q.Get("page"), 1),
		Size:   positive(q.Get("limit"), defaultSize),
	}
	p.Size = min(p.Size, MaxPageSize)
	return p
}

func positive(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
