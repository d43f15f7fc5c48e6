package billing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Handler exposes admin billing endpoints.
type Handler struct {
	Svc *Service
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return false
	}
	return true
}

func statusParam(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return "", false
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return "", false
	}
	return req.Status, true
}

// CreateInvoice handles POST /api/v1/admin/invoices.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CreateInvoiceRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.CreateInvoice(r.Context(), req)
	if err != nil {
		var lerr *LinesError
		if errors.As(err, &lerr) {
			zerolog.Ctx(r.Context()).Error().Err(lerr.Err).
				Str("invoice_id", lerr.InvoiceID.String()).
				Int("lines_written", lerr.Written).
				Msg("invoice partially created")
			common.WritePartialFailure(w, "invoice created but its lines were not all saved", lerr.InvoiceID.String(), "lines", map[string]any{
				"invoiceId":    lerr.InvoiceID.String(),
				"linesWritten": lerr.Written,
			})
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// ListInvoices handles GET /api/v1/admin/invoices?status=sent,overdue.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.ParsePage(r, 20)
	items, total, err := h.Svc.ListInvoices(r.Context(), store.InvoiceFilter{
		Statuses: statusParam(r),
		Limit:    page.Size,
		Offset:   page.Offset(),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": page.Meta(total),
	})
}

// GetInvoice handles GET /api/v1/admin/invoices/{id}.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.GetInvoice(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// PatchInvoiceStatus handles PATCH /api/v1/admin/invoices/{id}/status.
func (h *Handler) PatchInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	inv, err := h.Svc.UpdateInvoiceStatus(r.Context(), id, status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// ListMandates handles GET /api/v1/admin/mandates?status=pending_submission.
func (h *Handler) ListMandates(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.ParsePage(r, 20)
	items, err := h.Svc.ListMandates(r.Context(), store.MandateFilter{
		Statuses: statusParam(r),
		Limit:    page.Size,
		Offset:   page.Offset(),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// PatchMandateStatus handles PATCH /api/v1/admin/mandates/{id}/status.
func (h *Handler) PatchMandateStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, err := common.UUIDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	m, err := h.Svc.UpdateMandateStatus(r.Context(), id, status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": m})
}
