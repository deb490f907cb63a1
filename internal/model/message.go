// internal/model/message.go
package model

import "time"

type SendStatus string

const (
	SendQueued SendStatus = "QUEUED"
	SendSent   SendStatus = "SENT"
	SendError  SendStatus = "ERROR"
)

type Message struct {
	ID                int        `db:"id" json:"id"`
	CampaignContactID int        `db:"campaign_contact_id" json:"campaign_contact_id"`
	AssignmentID      int        `db:"assignment_id" json:"assignment_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	ContactNumber     string     `db:"contact_number" json:"contact_number"`
	Text              string     `db:"text" json:"text"`
	IsFromContact     bool       `db:"is_from_contact" json:"is_from_contact"`
	SendStatus        SendStatus `db:"send_status" json:"send_status"`
	ServiceID         string     `db:"service_id" json:"service_id"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
