package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/queue"
	"github.com/noah-isme/backend-telco/internal/store"
)

// Guard claims a recipient before its email goes out.
type Guard interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Deliverer sends one campaign email per task. Email is expected to record
// the attempt in the communications log.
type Deliverer struct {
	Store  store.Campaigns
	Email  common.EmailSender
	Guard  Guard
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Handle is a queue.Worker handler. A returned error asks the queue to retry;
// on the final attempt the recipient is marked failed first.
func (d Deliverer) Handle(ctx context.Context, t queue.Task) error {
	var p SendPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		// a malformed payload will never succeed
		obs.ObserveCampaignSend("dropped")
		return nil
	}
	r, err := d.Store.GetCampaignRecipient(ctx, p.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if r.Status == store.RecipientSent {
		return nil
	}
	c, err := d.Store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	if d.Guard != nil {
		ok, err := d.Guard.Acquire(ctx, r.ID.String())
		if err != nil {
			return fmt.Errorf("claim recipient: %w", err)
		}
		if !ok {
			// claims are released on failure, and a handler is cancelled
			// before its task can be redelivered, so a held claim means the
			// email already went out
			obs.ObserveCampaignSend("duplicate")
			return d.markSent(ctx, r)
		}
	}

	sendErr := d.Email.Send(ctx, common.EmailCampaign, map[string]any{
		"to":         r.Email,
		"userId":     r.UserID.String(),
		"subject":    c.Subject,
		"body":       c.Body,
		"campaignId": c.ID.String(),
	})
	if sendErr != nil {
		if d.Guard != nil {
			_ = d.Guard.Release(ctx, r.ID.String())
		}
		if t.MaxAttempts > 0 && t.Attempt >= t.MaxAttempts {
			msg := sendErr.Error()
			if err := d.Store.MarkCampaignRecipient(ctx, r.ID, store.RecipientFailed, &msg); err != nil {
				d.logError(err, r, "mark recipient failed")
			} else {
				d.complete(ctx, r)
			}
			obs.ObserveCampaignSend("failed")
		} else {
			obs.ObserveCampaignSend("retry")
		}
		return sendErr
	}

	obs.ObserveCampaignSend("sent")
	return d.markSent(ctx, r)
}

func (d Deliverer) markSent(ctx context.Context, r store.CampaignRecipient) error {
	if err := d.Store.MarkCampaignRecipient(ctx, r.ID, store.RecipientSent, nil); err != nil {
		return fmt.Errorf("mark recipient %s sent: %w", r.ID, err)
	}
	d.complete(ctx, r)
	return nil
}

// complete stamps the campaign sent after its last pending recipient. The
// email already went out, so a failure here is logged rather than retried;
// the next recipient to finish tries again.
func (d Deliverer) complete(ctx context.Context, r store.CampaignRecipient) {
	now := time.Now().UTC()
	if d.Now != nil {
		now = d.Now()
	}
	done, err := d.Store.CompleteCampaign(ctx, r.CampaignID, now)
	if err != nil {
		d.logError(err, r, "complete campaign")
		return
	}
	if done && d.Logger != nil {
		d.Logger.Info().Str("campaign_id", r.CampaignID.String()).Msg("campaign sent")
	}
}

func (d Deliverer) logError(err error, r store.CampaignRecipient, msg string) {
	if d.Logger == nil {
		return
	}
	d.Logger.Error().Err(err).Str("recipient_id", r.ID.String()).Str("campaign_id", r.CampaignID.String()).Msg(msg)
}
