// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Campaign, error)

	// Interaction steps
	ListInteractionSteps(ctx context.Context, campaignID int) ([]model.InteractionStep, error)
	ReplaceInteractionSteps(ctx context.Context, campaignID int, root *survey.Node) (int, error)

	// Canned responses
	ListCannedResponses(ctx context.Context, campaignID, userID int) ([]model.CannedResponse, error)
}

type CampaignRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func (r *CampaignRepository) rebind(query string) string {
	if r.Dialect == nil {
		return rebind(Postgres, query)
	}
	return rebind(r.Dialect, query)
}

// ====================== Campaign ======================

const campaignColumns = "id, organization_id, title, description, due_by, is_started, is_archived, override_organization_texting_hours, texting_hours_enforced, texting_hours_start, texting_hours_end, timezone, created_at"

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var dueBy any
	if c.DueBy != nil {
		dueBy = *c.DueBy
	}
	query := r.rebind(`
        INSERT INTO campaign
        (organization_id, title, description, due_by, is_started, is_archived,
         override_organization_texting_hours, texting_hours_enforced, texting_hours_start, texting_hours_end,
         timezone, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	return r.DB.QueryRowContext(ctx, query,
		c.OrganizationID, c.Title, c.Description, dueBy, c.IsStarted, c.IsArchived,
		c.OverrideOrganizationTextingHours, c.TextingHoursEnforced, c.TextingHoursStart, c.TextingHoursEnd,
		c.Timezone, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	var (
		c     model.Campaign
		dueBy sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, r.rebind("SELECT "+campaignColumns+" FROM campaign WHERE id = ?"), id).Scan(
		&c.ID, &c.OrganizationID, &c.Title, &c.Description, &dueBy, &c.IsStarted, &c.IsArchived,
		&c.OverrideOrganizationTextingHours, &c.TextingHoursEnforced, &c.TextingHoursStart, &c.TextingHoursEnd,
		&c.Timezone, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign %d: %w", id, err)
	}
	if dueBy.Valid {
		t := dueBy.Time
		c.DueBy = &t
	}
	return &c, nil
}

// ====================== Interaction steps ======================

func (r *CampaignRepository) ListInteractionSteps(ctx context.Context, campaignID int) ([]model.InteractionStep, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`
        SELECT id, campaign_id, parent_interaction_id, question, script, answer_option, answer_actions, is_deleted
        FROM interaction_step
        WHERE campaign_id = ? AND is_deleted = ?
        ORDER BY id
    `), campaignID, false)
	if err != nil {
		return nil, fmt.Errorf("list interaction steps: %w", err)
	}
	defer rows.Close()

	steps := []model.InteractionStep{}
	for rows.Next() {
		var (
			s      model.InteractionStep
			parent sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.CampaignID, &parent, &s.Question, &s.Script, &s.AnswerOption, &s.AnswerActions, &s.IsDeleted); err != nil {
			return nil, fmt.Errorf("scan interaction step: %w", err)
		}
		if parent.Valid {
			p := int(parent.Int64)
			s.ParentInteractionID = &p
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ReplaceInteractionSteps soft-deletes the campaign's current script and
// inserts root in its place. It returns the number of steps written.
func (r *CampaignRepository) ReplaceInteractionSteps(ctx context.Context, campaignID int, root *survey.Node) (written int, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin script import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, r.rebind("UPDATE interaction_step SET is_deleted = ? WHERE campaign_id = ?"), true, campaignID); err != nil {
		return 0, fmt.Errorf("retire interaction steps: %w", err)
	}

	insert := r.rebind(`
        INSERT INTO interaction_step (campaign_id, parent_interaction_id, question, script, answer_option, answer_actions)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	err = root.Walk(func(node *survey.Node, parentID int, answer survey.Answer) (int, error) {
		var parent any
		if parentID != 0 {
			parent = parentID
		}
		var id int
		if err := tx.QueryRowContext(ctx, insert, campaignID, parent, node.Question, node.Script, answer.Value, answer.Action).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert interaction step: %w", err)
		}
		written++
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit script import: %w", err)
	}
	return written, nil
}

// ====================== Canned responses ======================

// ListCannedResponses returns the campaign's shared responses followed by
// userID's own.
func (r *CampaignRepository) ListCannedResponses(ctx context.Context, campaignID, userID int) ([]model.CannedResponse, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`
        SELECT id, campaign_id, user_id, title, text
        FROM canned_response
        WHERE campaign_id = ? AND (user_id IS NULL OR user_id = ?)
        ORDER BY user_id IS NOT NULL, id
    `), campaignID, userID)
	if err != nil {
		return nil, fmt.Errorf("list canned responses: %w", err)
	}
	defer rows.Close()

	out := []model.CannedResponse{}
	for rows.Next() {
		var (
			c    model.CannedResponse
			user sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.CampaignID, &user, &c.Title, &c.Text); err != nil {
			return nil, fmt.Errorf("scan canned response: %w", err)
		}
		if user.Valid {
			u := int(user.Int64)
			c.UserID = &u
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepository) CreateCannedResponse(ctx context.Context, c *model.CannedResponse) error {
	var user any
	if c.UserID != nil {
		user = *c.UserID
	}
	return r.DB.QueryRowContext(ctx, r.rebind(`
        INSERT INTO canned_response (campaign_id, user_id, title, text) VALUES (?, ?, ?, ?)
        RETURNING id
    `), c.CampaignID, user, c.Title, c.Text).Scan(&c.ID)
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
