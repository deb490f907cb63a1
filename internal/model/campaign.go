// internal/model/campaign.go
package model

import (
	"time"

	"github.com/unclebandit/canvass-backend/internal/texting"
)

type Campaign struct {
	ID                               int        `db:"id" json:"id"`
	OrganizationID                   int        `db:"organization_id" json:"organization_id"`
	Title                            string     `db:"title" json:"title"`
	Description                      string     `db:"description" json:"description"`
	DueBy                            *time.Time `db:"due_by" json:"due_by,omitempty"`
	IsStarted                        bool       `db:"is_started" json:"is_started"`
	IsArchived                       bool       `db:"is_archived" json:"is_archived"`
	OverrideOrganizationTextingHours bool       `db:"override_organization_texting_hours" json:"override_organization_texting_hours"`
	TextingHoursEnforced             bool       `db:"texting_hours_enforced" json:"texting_hours_enforced"`
	TextingHoursStart                int        `db:"texting_hours_start" json:"texting_hours_start"`
	TextingHoursEnd                  int        `db:"texting_hours_end" json:"texting_hours_end"`
	Timezone                         string     `db:"timezone" json:"timezone"`
	CreatedAt                        time.Time  `db:"created_at" json:"created_at"`
}

// PastDueGrace is how long after due_by texters may still start new
// conversations.
const PastDueGrace = 24 * time.Hour

// IsPastDue reports whether the campaign's grace window has elapsed at now.
func (c *Campaign) IsPastDue(now time.Time) bool {
	return c.DueBy != nil && c.DueBy.Add(PastDueGrace).Before(now)
}

// HoursConfig combines the organization's texting hours with this
// campaign's override, if it has one.
func (c *Campaign) HoursConfig(org *Organization) texting.HoursConfig {
	cfg := texting.HoursConfig{Organization: org.TextingHours()}
	if c.OverrideOrganizationTextingHours {
		cfg.Campaign = &texting.CampaignHours{
			Hours: texting.Hours{
				Start:    c.TextingHoursStart,
				End:      c.TextingHoursEnd,
				Enforced: c.TextingHoursEnforced,
			},
			Timezone: c.Timezone,
		}
	}
	return cfg
}

// CannedResponse is a saved reply offered to texters. A nil UserID means it
// belongs to the campaign rather than to one texter.
type CannedResponse struct {
	ID         int    `db:"id" json:"id"`
	CampaignID int    `db:"campaign_id" json:"campaign_id"`
	UserID     *int   `db:"user_id" json:"user_id,omitempty"`
	Title      string `db:"title" json:"title"`
	Text       string `db:"text" json:"text"`
}
