package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/store/storetest"
)

func TestServiceRecordRequest(t *testing.T) {
	mem := storetest.New()
	svc := Service{Store: mem, Enabled: true, SamplingRate: 1}
	userID := uuid.NewString()
	orderID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPatch, "https://api.test/api/v1/admin/orders/"+orderID+"/status", nil)
	req.Header.Set("User-Agent", "tester")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithUserID(req.Context(), userID)
	ctx = obs.WithRoute(ctx, "/api/v1/admin/orders/{id}/status")
	req = req.WithContext(ctx)

	if err := svc.RecordRequest(req.Context(), Actor{Kind: ActorKindUser, UserID: &userID}, "", "", orderID, req, http.StatusOK, map[string]any{"to": "active"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries := mem.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ActorID == nil || got.ActorID.String() != userID {
		t.Fatalf("unexpected actor id: %v", got.ActorID)
	}
	if got.Action != "PATCH /api/v1/admin/orders/{id}/status" {
		t.Fatalf("unexpected action: %s", got.Action)
	}
	if got.EntityType != "admin.orders.status" {
		t.Fatalf("unexpected entity type: %s", got.EntityType)
	}
	if got.EntityID == nil || *got.EntityID != orderID {
		t.Fatalf("unexpected entity id: %v", got.EntityID)
	}
	if got.IPAddress == nil || *got.IPAddress != "10.0.0.2" {
		t.Fatalf("expected ip capture, got %v", got.IPAddress)
	}
	var details map[string]any
	if err := json.Unmarshal(got.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details["request_id"] != "req-123" || details["to"] != "active" {
		t.Fatalf("unexpected details: %v", details)
	}
}

func TestServiceDisabledSkipsStore(t *testing.T) {
	mem := storetest.New()
	svc := Service{Store: mem}
	if err := svc.Record(context.Background(), Entry{Action: "x"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mem.CallCount("InsertAuditLog") != 0 {
		t.Fatal("expected store not to be called")
	}
}

func TestServiceAnonymousActorHasNoID(t *testing.T) {
	mem := storetest.New()
	svc := Service{Store: mem, Enabled: true}
	userID := uuid.NewString()
	if err := svc.Record(context.Background(), Entry{Actor: Actor{Kind: "robot", UserID: &userID}, Action: "x"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mem.AuditEntries()[0].ActorID != nil {
		t.Fatal("expected anonymous actor to be stored without id")
	}
}

func TestBestEffortPolicyWritesAsync(t *testing.T) {
	mem := storetest.New()
	policy := NewBestEffortPolicy(&Service{Store: mem, Enabled: true}, 0, nil)

	ctx, cancel := context.WithCancel(common.WithUserID(context.Background(), uuid.NewString()))
	policy.OnError(ctx, "tickets-sla", errors.New("boom"))
	cancel()
	policy.Wait()

	entries := mem.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	if entries[0].Action != "widget.error" || *entries[0].EntityID != "tickets-sla" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestBestEffortPolicySwallowsStoreFailure(t *testing.T) {
	mem := storetest.New()
	mem.Fail["InsertAuditLog"] = storetest.ErrInjected
	policy := NewBestEffortPolicy(&Service{Store: mem, Enabled: true}, 0, nil)

	policy.OnError(context.Background(), "failed-payments", errors.New("boom"))
	policy.Wait()

	if mem.CallCount("InsertAuditLog") != 1 {
		t.Fatalf("expected exactly one write attempt, got %d", mem.CallCount("InsertAuditLog"))
	}
}
