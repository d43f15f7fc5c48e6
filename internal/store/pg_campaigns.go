package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	campaignColumns  = `id, name, subject, template_id, body, status, sent_at, created_at`
	recipientColumns = `id, campaign_id, user_id, email, status, error, sent_at`
	templateColumns  = `id, name, subject, body`
)

// ListCampaigns returns campaigns, newest first.
func (s *PG) ListCampaigns(ctx context.Context, limit, offset int) ([]Campaign, error) {
	w := &where{}
	sql := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC` + w.page(clampLimit(limit, 20, 100), offset)
	return queryAll[Campaign](ctx, s, sql, w.args...)
}

// GetCampaign fetches a campaign by id.
func (s *PG) GetCampaign(ctx context.Context, id uuid.UUID) (Campaign, error) {
	return queryOne[Campaign](ctx, s, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
}

// InsertCampaign persists a new campaign.
func (s *PG) InsertCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	return queryOne[Campaign](ctx, s, `INSERT INTO campaigns (name, subject, template_id, body, status)
VALUES ($1, $2, $3, $4, $5) RETURNING `+campaignColumns, c.Name, c.Subject, c.TemplateID, c.Body, c.Status)
}

// UpdateCampaignStatus sets a campaign's status and send time.
func (s *PG) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status string, sentAt *time.Time) error {
	return s.exec(ctx, `UPDATE campaigns SET status = $2, sent_at = COALESCE($3, sent_at) WHERE id = $1`, id, status, sentAt)
}

// CompleteCampaign implements Campaigns in one statement so two workers
// finishing the last recipients together cannot both stamp sent_at.
func (s *PG) CompleteCampaign(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE campaigns SET status = 'sent', sent_at = $2
WHERE id = $1 AND status = 'queued'
  AND NOT EXISTS (SELECT 1 FROM campaign_recipients WHERE campaign_id = $1 AND status = 'pending')`, id, sentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetEmailTemplate fetches an email template by id.
func (s *PG) GetEmailTemplate(ctx context.Context, id uuid.UUID) (EmailTemplate, error) {
	return queryOne[EmailTemplate](ctx, s, `SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
}

// InsertCampaignRecipient persists one recipient of a campaign.
func (s *PG) InsertCampaignRecipient(ctx context.Context, r CampaignRecipient) (CampaignRecipient, error) {
	return queryOne[CampaignRecipient](ctx, s, `INSERT INTO campaign_recipients (campaign_id, user_id, email, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (campaign_id, user_id) DO UPDATE SET email = EXCLUDED.email
RETURNING `+recipientColumns, r.CampaignID, r.UserID, r.Email, r.Status)
}

// GetCampaignRecipient fetches a recipient by id.
func (s *PG) GetCampaignRecipient(ctx context.Context, id uuid.UUID) (CampaignRecipient, error) {
	return queryOne[CampaignRecipient](ctx, s, `SELECT `+recipientColumns+` FROM campaign_recipients WHERE id = $1`, id)
}

// MarkCampaignRecipient records the delivery outcome for a recipient.
func (s *PG) MarkCampaignRecipient(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	return s.exec(ctx, `UPDATE campaign_recipients SET status = $2, error = $3, sent_at = CASE WHEN $2 = 'sent' THEN now() ELSE sent_at END WHERE id = $1`, id, status, errMsg)
}
