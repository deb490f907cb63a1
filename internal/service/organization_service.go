// internal/service/organization_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/permissions"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

// OrganizationService carries the admin settings that feed texting-hours
// evaluation and the campaign script. Every write drops the cached
// campaign metadata it affects.
type OrganizationService struct {
	Organizations repository.OrganizationRepositoryInterface
	Campaigns     repository.CampaignRepositoryInterface
	Catalog       *Catalog
	Logger        *slog.Logger
	QueryTimeout  time.Duration
}

func (s *OrganizationService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *OrganizationService) requireAdmin(ctx context.Context, organizationID, userID int) error {
	roles, err := s.Organizations.UserRoles(ctx, organizationID, userID)
	if err != nil {
		return err
	}
	if !permissions.HasRoleAtLeast(permissions.HighestRole(roles), model.RoleAdmin) {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *OrganizationService) update(ctx context.Context, userID, organizationID int, write func(context.Context) error) (*model.Organization, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	if err := s.requireAdmin(ctx, organizationID, userID); err != nil {
		return nil, err
	}
	if err := write(ctx); err != nil {
		return nil, err
	}
	dropped := s.Catalog.InvalidateOrganization(organizationID)
	s.logger().InfoContext(ctx, "organization updated", "organization_id", organizationID, "invalidated", dropped)
	return s.Organizations.GetByID(ctx, organizationID)
}

// UpdateTextingHours sets the organization's window. Hours are 0-24 in
// local time; a window with start >= end allows nothing.
func (s *OrganizationService) UpdateTextingHours(ctx context.Context, userID, organizationID, start, end int) (*model.Organization, error) {
	if start < 0 || start > 24 || end < 0 || end > 24 {
		return nil, fmt.Errorf("texting hours must be between 0 and 24, got %d-%d", start, end)
	}
	return s.update(ctx, userID, organizationID, func(ctx context.Context) error {
		return s.Organizations.UpdateTextingHours(ctx, organizationID, start, end)
	})
}

func (s *OrganizationService) UpdateTextingHoursEnforcement(ctx context.Context, userID, organizationID int, enforced bool) (*model.Organization, error) {
	return s.update(ctx, userID, organizationID, func(ctx context.Context) error {
		return s.Organizations.UpdateTextingHoursEnforcement(ctx, organizationID, enforced)
	})
}

func (s *OrganizationService) UpdateOptOutMessage(ctx context.Context, userID, organizationID int, message string) (*model.Organization, error) {
	return s.update(ctx, userID, organizationID, func(ctx context.Context) error {
		return s.Organizations.UpdateOptOutMessage(ctx, organizationID, message)
	})
}

// ImportScript replaces a campaign's interaction steps with the tree in a
// YAML document. The tree is validated before anything is written.
func (s *OrganizationService) ImportScript(ctx context.Context, userID, campaignID int, document []byte) ([]survey.Step, error) {
	root, err := survey.ParseScriptYAML(document)
	if err != nil {
		return nil, &appErrors.ConfigurationError{CampaignID: campaignID, Reason: err.Error()}
	}
	if _, err := survey.NewScript(campaignID, root.Steps()); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, campaign.OrganizationID, userID); err != nil {
		return nil, err
	}
	written, err := s.Campaigns.ReplaceInteractionSteps(ctx, campaignID, root)
	if err != nil {
		return nil, err
	}
	s.Catalog.InvalidateCampaign(campaignID)
	s.logger().InfoContext(ctx, "campaign script imported", "campaign_id", campaignID, "steps", written)

	meta, err := s.Catalog.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	script, err := meta.Script()
	if err != nil {
		return nil, err
	}
	return script.Steps(), nil
}
