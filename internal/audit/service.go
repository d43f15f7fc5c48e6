package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/store"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser represents an authenticated staff member or customer.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *string
}

// Entry is an audit record before persistence.
type Entry struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	IP         string
}

// Service persists audit logs for admin writes and system failures.
type Service struct {
	Store        store.AuditLogs
	Enabled      bool
	SamplingRate float64
}

// Record persists entry when auditing is enabled.
func (s Service) Record(ctx context.Context, entry Entry) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit: action is required")
	}

	var details []byte
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = data
	}

	row := store.AuditLog{
		Action:     action,
		EntityType: valueOr(entry.EntityType, "unknown"),
		EntityID:   pointerOf(entry.EntityID),
		Details:    details,
		IPAddress:  pointerOf(entry.IP),
	}
	if normalizeActorKind(entry.Actor.Kind) == ActorKindUser {
		row.ActorID = toUUID(entry.Actor.UserID)
	}
	return s.Store.InsertAuditLog(ctx, row)
}

// RecordRequest persists an audit entry derived from an HTTP request.
func (s Service) RecordRequest(ctx context.Context, actor Actor, action, entityType, entityID string, req *http.Request, status int, metadata map[string]any) error {
	if req == nil {
		return errors.New("audit: request is required")
	}
	route := obs.Route(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}
	details := map[string]any{
		"method": req.Method,
		"route":  route,
		"status": status,
	}
	if ua := strings.TrimSpace(req.Header.Get("User-Agent")); ua != "" {
		details["user_agent"] = ua
	}
	if rid := middleware.GetReqID(req.Context()); rid != "" {
		details["request_id"] = rid
	}
	for k, v := range metadata {
		details[k] = v
	}
	return s.Record(ctx, Entry{
		Actor:      actor,
		Action:     buildAction(action, req.Method, route),
		EntityType: buildResource(entityType, route),
		EntityID:   entityID,
		Details:    details,
		IP:         common.ClientIP(req),
	})
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	base := strings.ToUpper(strings.TrimSpace(method))
	target := route
	if target == "" {
		target = "/"
	}
	return base + " " + target
}

func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toUUID(value *string) *uuid.UUID {
	if value == nil {
		return nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	return &parsed
}
