// Package campaign creates marketing email campaigns and fans them out to
// opted-in customers through the Redis task queue.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/queue"
	"github.com/noah-isme/backend-telco/internal/store"
)

// TaskKind is the queue kind carrying one campaign delivery.
const TaskKind = "campaign-send"

// ErrAlreadySent is returned when sending a campaign that was already fanned
// out, whether its deliveries are still queued or all done.
var ErrAlreadySent = errors.New("campaign: already sent")

// Enqueuer publishes queue tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// SendPayload is the task body for one recipient.
type SendPayload struct {
	CampaignID  uuid.UUID `json:"campaignId"`
	RecipientID uuid.UUID `json:"recipientId"`
}

// CreateRequest is the admin payload for a new campaign. Subject and body
// default to the template's when a template is given.
type CreateRequest struct {
	Name       string     `json:"name" validate:"required,max=200"`
	Subject    string     `json:"subject" validate:"max=200"`
	TemplateID *uuid.UUID `json:"templateId"`
	Body       string     `json:"body" validate:"max=50000"`
}

// SendResult summarises a fan-out.
type SendResult struct {
	CampaignID uuid.UUID `json:"campaignId"`
	Recipients int       `json:"recipients"`
	Enqueued   int       `json:"enqueued"`
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service manages campaigns.
type Service struct {
	Store    store.Campaigns
	Profiles store.Profiles
	Queue    Enqueuer
	Lock     Locker
	LockTTL  time.Duration
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create stores a draft campaign.
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.Campaign, error) {
	if err := common.Validate(req); err != nil {
		return store.Campaign{}, err
	}
	if req.TemplateID != nil {
		tpl, err := s.Store.GetEmailTemplate(ctx, *req.TemplateID)
		if err != nil {
			return store.Campaign{}, common.FromStoreError("template", err)
		}
		if strings.TrimSpace(req.Subject) == "" {
			req.Subject = tpl.Subject
		}
		if strings.TrimSpace(req.Body) == "" {
			req.Body = tpl.Body
		}
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.Subject) == "" {
		fields["subject"] = "required"
	}
	if strings.TrimSpace(req.Body) == "" {
		fields["body"] = "required"
	}
	if len(fields) > 0 {
		return store.Campaign{}, common.NewValidationError(fields, nil)
	}
	c, err := s.Store.InsertCampaign(ctx, store.Campaign{
		Name:       strings.TrimSpace(req.Name),
		Subject:    strings.TrimSpace(req.Subject),
		TemplateID: req.TemplateID,
		Body:       req.Body,
		Status:     store.CampaignDraft,
	})
	if err != nil {
		return store.Campaign{}, common.FromStoreError("campaign", err)
	}
	return c, nil
}

// List returns campaigns, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]store.Campaign, error) {
	items, err := s.Store.ListCampaigns(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return items, nil
}

// Send records a recipient row per opted-in profile and enqueues one delivery
// task each, leaving the campaign queued. The worker moves it to sent once no
// recipient is pending. A campaign left in sending by an interrupted call can
// be sent again: recipient rows are upserted and tasks are deduplicated by
// recipient.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (SendResult, error) {
	if s.Lock == nil {
		return s.send(ctx, id)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	var res SendResult
	err := s.Lock.WithLock(ctx, "telco:lock:campaign:"+id.String(), ttl, func(ctx context.Context) error {
		var err error
		res, err = s.send(ctx, id)
		return err
	})
	return res, err
}

func (s *Service) send(ctx context.Context, id uuid.UUID) (SendResult, error) {
	c, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return SendResult{}, common.FromStoreError("campaign", err)
	}
	if c.Status == store.CampaignQueued || c.Status == store.CampaignSent {
		return SendResult{}, common.NewAppError("INVALID_STATE", "campaign already "+c.Status, http.StatusConflict, ErrAlreadySent)
	}
	if s.Queue == nil {
		return SendResult{}, errors.New("campaign: queue not configured")
	}
	if err := s.Store.UpdateCampaignStatus(ctx, id, store.CampaignSending, nil); err != nil {
		return SendResult{}, common.FromStoreError("campaign", err)
	}
	profiles, err := s.Profiles.ListOptedInProfiles(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("list opted-in profiles: %w", err)
	}

	res := SendResult{CampaignID: id, Recipients: len(profiles)}
	for _, p := range profiles {
		r, err := s.Store.InsertCampaignRecipient(ctx, store.CampaignRecipient{
			CampaignID: id,
			UserID:     p.ID,
			Email:      p.Email,
			Status:     store.RecipientPending,
		})
		if err != nil {
			return res, fmt.Errorf("insert recipient %s: %w", p.ID, err)
		}
		if r.Status == store.RecipientSent {
			continue
		}
		payload, err := json.Marshal(SendPayload{CampaignID: id, RecipientID: r.ID})
		if err != nil {
			return res, err
		}
		if err := s.Queue.Enqueue(ctx, queue.Task{Kind: TaskKind, Payload: payload, IdempotencyKey: r.ID.String()}); err != nil {
			return res, fmt.Errorf("enqueue recipient %s: %w", r.ID, err)
		}
		res.Enqueued++
	}

	if err := s.Store.UpdateCampaignStatus(ctx, id, store.CampaignQueued, nil); err != nil {
		return res, common.FromStoreError("campaign", err)
	}
	// workers may have drained every task before the status above landed,
	// and nobody is left to complete the campaign then
	if _, err := s.Store.CompleteCampaign(ctx, id, s.now()); err != nil {
		return res, common.FromStoreError("campaign", err)
	}
	return res, nil
}
