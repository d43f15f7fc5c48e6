package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Communication statuses written to communications_log.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrNoRecipient is returned when the email data carries no "to" address.
var ErrNoRecipient = errors.New("notify: email has no recipient")

// EmailNotifier gates transactional emails by type and records every attempt
// in the communications log. It wraps the sender that performs delivery.
type EmailNotifier struct {
	Mail        common.EmailSender
	Enabled     bool
	TypeToggles map[common.EmailType]bool
	Log         store.Communications
	Logger      *zerolog.Logger
}

// Send implements common.EmailSender. Disabled types are logged as skipped and
// report success.
func (n EmailNotifier) Send(ctx context.Context, kind common.EmailType, data map[string]any) error {
	to := recipient(data)
	if to == "" {
		return ErrNoRecipient
	}
	if !n.enabled(kind) || n.Mail == nil {
		n.record(ctx, kind, to, data, StatusSkipped)
		return nil
	}
	err := n.Mail.Send(ctx, kind, data)
	status := StatusSent
	if err != nil {
		status = StatusFailed
	}
	n.record(ctx, kind, to, data, status)
	return err
}

func (n EmailNotifier) enabled(kind common.EmailType) bool {
	if !n.Enabled {
		return false
	}
	if on, ok := n.TypeToggles[kind]; ok {
		return on
	}
	return true
}

func (n EmailNotifier) record(ctx context.Context, kind common.EmailType, to string, data map[string]any, status string) {
	if n.Log == nil {
		return
	}
	entry := store.CommunicationLog{
		UserID:    userID(data),
		Channel:   "email",
		Type:      string(kind),
		Recipient: to,
		Status:    status,
	}
	if subject, ok := data["subject"].(string); ok && subject != "" {
		entry.Subject = &subject
	}
	if err := n.Log.InsertCommunication(ctx, entry); err != nil && n.Logger != nil {
		n.Logger.Warn().Err(err).Str("type", string(kind)).Msg("communications log write failed")
	}
}

func recipient(data map[string]any) string {
	for _, key := range []string{"to", "email"} {
		if s, ok := data[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func userID(data map[string]any) *uuid.UUID {
	switch v := data["userId"].(type) {
	case uuid.UUID:
		return &v
	case *uuid.UUID:
		return v
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return &id
		}
	}
	return nil
}
