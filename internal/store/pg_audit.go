package store

import (
	"context"
)

const auditColumns = `id, actor_id, action, entity_type, entity_id, details, ip_address, created_at`

// InsertAuditLog appends an audit entry.
func (s *PG) InsertAuditLog(ctx context.Context, entry AuditLog) error {
	return s.exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, details, ip_address)
VALUES ($1, $2, $3, $4, $5, $6)`, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, jsonOrEmpty(entry.Details, "{}"), entry.IPAddress)
}

func auditWhere(f AuditFilter) *where {
	w := &where{}
	if f.Action != "" {
		w.and("action = " + w.arg(f.Action))
	}
	if f.EntityType != "" {
		w.and("entity_type = " + w.arg(f.EntityType))
	}
	if f.EntityID != "" {
		w.and("entity_id = " + w.arg(f.EntityID))
	}
	if f.ActorID != nil {
		w.and("actor_id = " + w.arg(*f.ActorID))
	}
	if f.Since != nil {
		w.and("created_at >= " + w.arg(*f.Since))
	}
	return w
}

// ListAuditLogs returns audit entries matching f, newest first.
func (s *PG) ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditLog, error) {
	w := auditWhere(f)
	sql := `SELECT ` + auditColumns + ` FROM audit_logs` + w.String() + ` ORDER BY created_at DESC` + w.page(clampLimit(f.Limit, 20, 100), f.Offset)
	return queryAll[AuditLog](ctx, s, sql, w.args...)
}

// CountAuditLogs counts audit entries matching f.
func (s *PG) CountAuditLogs(ctx context.Context, f AuditFilter) (int64, error) {
	w := auditWhere(f)
	return s.count(ctx, `SELECT COUNT(*) FROM audit_logs`+w.String(), w.args...)
}

// InsertCommunication appends a communications log entry.
func (s *PG) InsertCommunication(ctx context.Context, c CommunicationLog) error {
	return s.exec(ctx, `INSERT INTO communications_log (user_id, channel, type, recipient, subject, status)
VALUES ($1, $2, $3, $4, $5, $6)`, c.UserID, c.Channel, c.Type, c.Recipient, c.Subject, c.Status)
}
