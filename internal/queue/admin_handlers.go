package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/noah-isme/backend-telco/internal/common"
)

const defaultDLQPageSize = 50

// AdminHandler lets operators inspect dead-lettered tasks (failed campaign
// sends in practice), push them back onto the queue and read queue depth.
type AdminHandler struct {
	Store Store
	Queue Enqueuer
	// Kinds are reported by Stats when no kind is requested.
	Kinds             []string
	PageSize          int
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

type dlqItem struct {
	ID             uuid.UUID       `json:"id"`
	Kind           string          `json:"kind"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	LastError      *string         `json:"lastError,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type replayRequest struct {
	IDs   []string `json:"ids" validate:"omitempty,max=200,dive,uuid"`
	Kind  string   `json:"kind"`
	Limit int      `json:"limit" validate:"omitempty,min=1,max=200"`
}

type kindStats struct {
	Kind        string `json:"kind"`
	Ready       int64  `json:"ready"`
	Processing  int64  `json:"processing"`
	DeadLetters int64  `json:"deadLetters"`
	OldestLagMS int64  `json:"oldestLagMs"`
}

// ListDLQ handles GET /admin/tasks/dlq?kind=&page=&limit=.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue store unavailable", nil)
		return
	}
	kind := sanitizeKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	page := common.ParsePage(r, h.pageSize())
	ctx := r.Context()

	entries, err := h.Store.ListQueueDlq(ctx, kind, page.Size, page.Offset())
	if err != nil {
		h.internal(w, err)
		return
	}
	total, err := h.Store.CountQueueDlq(ctx, kind)
	if err != nil {
		h.internal(w, err)
		return
	}

	items := lo.FilterMap(entries, func(e DLQEntry, _ int) (dlqItem, bool) {
		msg, err := decodeMessage(string(e.Payload))
		if err != nil {
			h.Logger.Warn().Err(err).Str("dlq_id", e.ID.String()).Msg("skipping undecodable dead letter")
			return dlqItem{}, false
		}
		item := dlqItem{
			ID:             e.ID,
			Kind:           e.Kind,
			IdempotencyKey: e.IdempotencyKey,
			Attempts:       e.Attempts,
			MaxAttempts:    msg.MaxAttempts,
			LastError:      e.LastError,
			CreatedAt:      e.CreatedAt,
		}
		if json.Valid(msg.Payload) {
			item.Payload = msg.Payload
		}
		return item, true
	})
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": page.Meta(total),
	})
}

// ReplayDLQ handles POST /admin/tasks/dlq/replay. Either ids or a kind (with
// an optional limit) selects the entries; each one is re-enqueued and then
// removed from the dead-letter table.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Queue.R == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable", nil)
		return
	}
	var req replayRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.IDs = lo.Uniq(lo.Compact(lo.Map(req.IDs, func(s string, _ int) string { return strings.TrimSpace(s) })))
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	if len(req.IDs) == 0 && strings.TrimSpace(req.Kind) == "" {
		common.WriteError(w, common.NewValidationError(map[string]string{"kind": "is required when ids is empty"}, nil))
		return
	}
	ctx := r.Context()

	var entries []DLQEntry
	failed := map[string]string{}
	if len(req.IDs) > 0 {
		for _, raw := range req.IDs {
			entry, err := h.Store.GetQueueDlq(ctx, uuid.MustParse(raw))
			if err != nil {
				failed[raw] = "not found"
				continue
			}
			entries = append(entries, entry)
		}
	} else {
		limit := req.Limit
		if limit <= 0 {
			limit = h.pageSize()
		}
		var err error
		entries, err = h.Store.ListQueueDlq(ctx, sanitizeKind(req.Kind), limit, 0)
		if err != nil {
			h.internal(w, err)
			return
		}
	}

	replayed := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		if err := h.replay(ctx, entry); err != nil {
			failed[entry.ID.String()] = err.Error()
			continue
		}
		replayed = append(replayed, entry.ID)
	}
	for _, kind := range lo.Uniq(lo.Map(entries, func(e DLQEntry, _ int) string { return e.Kind })) {
		h.refreshMetrics(ctx, kind)
	}

	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

// Stats handles GET /admin/tasks/stats?kind=. Without a kind every
// configured kind is reported.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Queue.R == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable", nil)
		return
	}
	kinds := h.Kinds
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		kind := sanitizeKind(raw)
		if kind == "" {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid kind", nil)
			return
		}
		kinds = []string{kind}
	}
	if len(kinds) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required", nil)
		return
	}

	stats := make([]kindStats, 0, len(kinds))
	for _, kind := range kinds {
		s, err := h.stats(r.Context(), kind)
		if err != nil {
			h.internal(w, err)
			return
		}
		stats = append(stats, s)
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":                     stats,
		"visibilityTimeoutSeconds": h.visibility().Seconds(),
	})
}

func (h *AdminHandler) stats(ctx context.Context, kind string) (kindStats, error) {
	k := keys{h.Queue.Prefix}
	out := kindStats{Kind: kind}
	var err error
	if out.Ready, err = h.Queue.R.ZCard(ctx, k.queue(kind)).Result(); err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}
	if out.Processing, err = h.Queue.R.ZCard(ctx, k.processing(kind)).Result(); err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}
	if out.DeadLetters, err = h.Store.CountQueueDlq(ctx, kind); err != nil {
		return out, err
	}
	// scores are availability times, so the head of the set is the oldest due task
	if head, err := h.Queue.R.ZRangeWithScores(ctx, k.queue(kind), 0, 0).Result(); err == nil && len(head) > 0 {
		if due := time.Unix(0, int64(head[0].Score)); due.Before(time.Now()) {
			out.OldestLagMS = time.Since(due).Milliseconds()
		}
	}
	QueueDepth.WithLabelValues(queueLabel(kind)).Set(float64(out.Ready))
	QueueDLQSize.WithLabelValues(queueLabel(kind)).Set(float64(out.DeadLetters))
	return out, nil
}

// replay puts the task back with a fresh attempt budget and drops the dead
// letter. If the delete fails the task may run twice; campaign sends are
// guarded per recipient.
func (h *AdminHandler) replay(ctx context.Context, entry DLQEntry) error {
	msg, err := decodeMessage(string(entry.Payload))
	if err != nil {
		return err
	}
	if err := h.Queue.Requeue(ctx, Task{
		Kind:           msg.Kind,
		Payload:        msg.Payload,
		IdempotencyKey: msg.Key,
		MaxAttempts:    msg.MaxAttempts,
	}); err != nil {
		return err
	}
	return h.Store.DeleteQueueDlq(ctx, entry.ID)
}

func (h *AdminHandler) refreshMetrics(ctx context.Context, kind string) {
	if _, err := h.stats(ctx, kind); err != nil {
		h.Logger.Debug().Err(err).Str("kind", kind).Msg("refresh queue metrics")
	}
}

func (h *AdminHandler) internal(w http.ResponseWriter, err error) {
	h.Logger.Error().Err(err).Msg("queue admin request failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue operation failed", nil)
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return defaultDLQPageSize
	}
	return h.PageSize
}

func (h *AdminHandler) visibility() time.Duration {
	if h.VisibilityTimeout <= 0 {
		return 60 * time.Second
	}
	return h.VisibilityTimeout
}
