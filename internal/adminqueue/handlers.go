package adminqueue

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sourcegraph/conc/pool"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Handler exposes the admin queue widgets.
type Handler struct {
	Svc      *Service
	Boundary Boundary
	// MaxConcurrency bounds parallel widget loads on the dashboard.
	MaxConcurrency int
}

// WidgetResult is one entry of the dashboard response.
type WidgetResult struct {
	Widget  string       `json:"widget"`
	Title   string       `json:"title"`
	Actions []Action     `json:"actions"`
	Data    any          `json:"data,omitempty"`
	Error   *WidgetError `json:"error,omitempty"`
}

// Widget handles GET /api/v1/admin/queues/{widget}.
func (h *Handler) Widget(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin queue service not configured", nil)
		return
	}
	name := chi.URLParam(r, "widget")
	widget, ok := h.Svc.Widget(name)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown widget", map[string]string{"widget": name})
		return
	}
	res := h.load(r.Context(), widget, pageParam(r))
	if res.Error != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "WIDGET_FAILED", res.Error.Message, res.Error)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Dashboard handles GET /api/v1/admin/queues, loading the first page of every
// widget concurrently. A failing widget is reported in its own entry.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin queue service not configured", nil)
		return
	}
	widgets := h.Svc.Widgets()
	limit := h.MaxConcurrency
	if limit <= 0 {
		limit = len(widgets)
	}

	p := pool.NewWithResults[indexedResult]().WithMaxGoroutines(limit)
	for i, widget := range widgets {
		p.Go(func() indexedResult {
			return indexedResult{index: i, result: h.load(r.Context(), widget, 1)}
		})
	}
	results := make([]WidgetResult, len(widgets))
	for _, res := range p.Wait() {
		results[res.index] = res.result
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": results})
}

type indexedResult struct {
	index  int
	result WidgetResult
}

func (h *Handler) load(ctx context.Context, widget Widget, page int) WidgetResult {
	data, werr := h.Boundary.Run(ctx, widget.Name, func(ctx context.Context) (any, error) {
		return widget.Load(ctx, Query{Page: page, PageSize: DefaultPageSize})
	})
	return WidgetResult{
		Widget:  widget.Name,
		Title:   widget.Title,
		Actions: widget.Actions,
		Data:    data,
		Error:   werr,
	}
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
