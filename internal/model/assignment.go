// internal/model/assignment.go
package model

type Assignment struct {
	ID          int  `db:"id" json:"id"`
	CampaignID  int  `db:"campaign_id" json:"campaign_id"`
	UserID      int  `db:"user_id" json:"user_id"`
	MaxContacts *int `db:"max_contacts" json:"max_contacts,omitempty"`
}

// ContactsFilter narrows an assignment's contacts. Pointer fields are
// tri-state: nil means the key was not supplied.
type ContactsFilter struct {
	ContactID      *int   `json:"contactId,omitempty"`
	IncludePastDue bool   `json:"includePastDue,omitempty"`
	ValidTimezone  *bool  `json:"validTimezone,omitempty"`
	MessageStatus  string `json:"messageStatus,omitempty"`
	IsOptedOut     *bool  `json:"isOptedOut,omitempty"`
}
