// internal/service/catalog.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/canvass-backend/internal/cache"
	"github.com/unclebandit/canvass-backend/internal/metrics"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/survey"
	"github.com/unclebandit/canvass-backend/internal/texting"
)

// CampaignMeta is the read-mostly data every texter request needs about a
// campaign. Cached values are shared between requests and never mutated.
type CampaignMeta struct {
	Campaign     *model.Campaign
	Organization *model.Organization
	Steps        []model.InteractionStep
}

func (m *CampaignMeta) HoursConfig() texting.HoursConfig {
	return m.Campaign.HoursConfig(m.Organization)
}

// Script builds the campaign's survey. A campaign without steps has no
// script and returns nil.
func (m *CampaignMeta) Script() (*survey.Script, error) {
	if len(m.Steps) == 0 {
		return nil, nil
	}
	return survey.FromInteractionSteps(m.Campaign.ID, m.Steps)
}

// Catalog loads campaign metadata and canned responses through TTL caches.
type Catalog struct {
	Campaigns     repository.CampaignRepositoryInterface
	Organizations repository.OrganizationRepositoryInterface

	meta   *cache.Cache[*CampaignMeta]
	canned *cache.Cache[[]model.CannedResponse]
}

func NewCatalog(campaigns repository.CampaignRepositoryInterface, orgs repository.OrganizationRepositoryInterface, ttl time.Duration) *Catalog {
	return &Catalog{
		Campaigns:     campaigns,
		Organizations: orgs,
		meta:          cache.New(ttl, cache.WithObserver[*CampaignMeta](metrics.CacheObserver("campaign"))),
		canned:        cache.New(ttl, cache.WithObserver[[]model.CannedResponse](metrics.CacheObserver("canned_responses"))),
	}
}

func campaignKey(id int) string { return fmt.Sprintf("campaign:%d", id) }

func (c *Catalog) Campaign(ctx context.Context, id int) (*CampaignMeta, error) {
	return c.meta.GetOrLoad(ctx, campaignKey(id), func(ctx context.Context) (*CampaignMeta, error) {
		campaign, err := c.Campaigns.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		org, err := c.Organizations.GetByID(ctx, campaign.OrganizationID)
		if err != nil {
			return nil, err
		}
		steps, err := c.Campaigns.ListInteractionSteps(ctx, id)
		if err != nil {
			return nil, err
		}
		return &CampaignMeta{Campaign: campaign, Organization: org, Steps: steps}, nil
	})
}

func (c *Catalog) CannedResponses(ctx context.Context, campaignID, userID int) ([]model.CannedResponse, error) {
	key := fmt.Sprintf("canned:%d:%d", campaignID, userID)
	return c.canned.GetOrLoad(ctx, key, func(ctx context.Context) ([]model.CannedResponse, error) {
		return c.Campaigns.ListCannedResponses(ctx, campaignID, userID)
	})
}

func (c *Catalog) InvalidateCampaign(id int) {
	c.meta.Delete(campaignKey(id))
}

// InvalidateOrganization drops every cached campaign of the organization.
func (c *Catalog) InvalidateOrganization(orgID int) int {
	return c.meta.DeleteFunc(func(_ string, m *CampaignMeta) bool {
		return m.Organization.ID == orgID
	})
}
