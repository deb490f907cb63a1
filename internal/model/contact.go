// internal/model/contact.go
package model

import (
	"time"

	"github.com/unclebandit/canvass-backend/internal/texting"
)

type MessageStatus string

const (
	StatusNeedsMessage  MessageStatus = "needsMessage"
	StatusNeedsResponse MessageStatus = "needsResponse"
	StatusMessaged      MessageStatus = "messaged"
	StatusConvo         MessageStatus = "convo"
	StatusClosed        MessageStatus = "closed"

	// NeedsMessageOrResponse is a filter alias, never a stored status.
	NeedsMessageOrResponse = "needsMessageOrResponse"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusNeedsMessage, StatusNeedsResponse, StatusMessaged, StatusConvo, StatusClosed:
		return true
	}
	return false
}

// AfterSend is the status a contact moves to once a texter messages it.
func (s MessageStatus) AfterSend() MessageStatus {
	switch s {
	case StatusNeedsMessage:
		return StatusMessaged
	case StatusNeedsResponse:
		return StatusConvo
	}
	return s
}

type Location struct {
	City     string            `json:"city,omitempty"`
	State    string            `json:"state,omitempty"`
	Timezone *texting.Timezone `json:"timezone,omitempty"`
}

type CampaignContact struct {
	ID             int               `db:"id" json:"id"`
	CampaignID     int               `db:"campaign_id" json:"campaign_id"`
	AssignmentID   *int              `db:"assignment_id" json:"assignment_id,omitempty"`
	FirstName      string            `db:"first_name" json:"first_name"`
	LastName       string            `db:"last_name" json:"last_name"`
	Cell           string            `db:"cell" json:"cell"`
	Zip            string            `db:"zip" json:"zip"`
	ExternalID     string            `db:"external_id" json:"external_id"`
	CustomFields   map[string]string `db:"custom_fields" json:"custom_fields,omitempty"`
	City           string            `db:"city" json:"-"`
	State          string            `db:"state" json:"-"`
	MessageStatus  MessageStatus     `db:"message_status" json:"message_status"`
	IsOptedOut     bool              `db:"is_opted_out" json:"is_opted_out"`
	TimezoneOffset string            `db:"timezone_offset" json:"timezone_offset"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// Timezone is the contact's parsed timezone, nil when unknown or malformed.
func (c *CampaignContact) Timezone() *texting.Timezone {
	tz, err := texting.ParseKey(c.TimezoneOffset)
	if err != nil {
		return nil
	}
	return tz
}

func (c *CampaignContact) Location() Location {
	return Location{City: c.City, State: c.State, Timezone: c.Timezone()}
}

type QuestionResponse struct {
	CampaignContactID int    `db:"campaign_contact_id" json:"campaign_contact_id"`
	InteractionStepID int    `db:"interaction_step_id" json:"interaction_step_id"`
	Value             string `db:"value" json:"value"`
}

type OptOut struct {
	ID             int       `db:"id" json:"id"`
	OrganizationID int       `db:"organization_id" json:"organization_id"`
	AssignmentID   int       `db:"assignment_id" json:"assignment_id"`
	Cell           string    `db:"cell" json:"cell"`
	Reason         string    `db:"reason" json:"reason"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type ContactTag struct {
	CampaignContactID int    `db:"campaign_contact_id" json:"campaign_contact_id"`
	Tag               string `db:"tag" json:"tag"`
	Comment           string `db:"comment" json:"comment"`
	Resolved          bool   `db:"resolved" json:"resolved"`
}
