// internal/model/interaction_step.go
package model

// InteractionStep is the persisted form of one survey node. A child row's
// AnswerOption is the value on its parent's question that leads to it.
type InteractionStep struct {
	ID                  int    `db:"id" json:"id"`
	CampaignID          int    `db:"campaign_id" json:"campaign_id"`
	ParentInteractionID *int   `db:"parent_interaction_id" json:"parent_interaction_id,omitempty"`
	Question            string `db:"question" json:"question"`
	Script              string `db:"script" json:"script"`
	AnswerOption        string `db:"answer_option" json:"answer_option"`
	AnswerActions       string `db:"answer_actions" json:"answer_actions"`
	IsDeleted           bool   `db:"is_deleted" json:"is_deleted"`
}
