// internal/model/organization.go
package model

import "github.com/unclebandit/canvass-backend/internal/texting"

type Organization struct {
	ID                   int    `db:"id" json:"id"`
	Name                 string `db:"name" json:"name"`
	TextingHoursEnforced bool   `db:"texting_hours_enforced" json:"texting_hours_enforced"`
	TextingHoursStart    int    `db:"texting_hours_start" json:"texting_hours_start"`
	TextingHoursEnd      int    `db:"texting_hours_end" json:"texting_hours_end"`
	OptOutMessage        string `db:"opt_out_message" json:"opt_out_message"`
}

func (o *Organization) TextingHours() texting.Hours {
	return texting.Hours{
		Start:    o.TextingHoursStart,
		End:      o.TextingHoursEnd,
		Enforced: o.TextingHoursEnforced,
	}
}

type Role string

const (
	RoleSuspended      Role = "SUSPENDED"
	RoleTexter         Role = "TEXTER"
	RoleSupervolunteer Role = "SUPERVOLUNTEER"
	RoleAdmin          Role = "ADMIN"
	RoleOwner          Role = "OWNER"
)

// UserRole is one row of the organization's role-assignment table.
type UserRole struct {
	UserID         int  `db:"user_id" json:"user_id"`
	OrganizationID int  `db:"organization_id" json:"organization_id"`
	Role           Role `db:"role" json:"role"`
}

type User struct {
	ID        int    `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Cell      string `db:"cell" json:"cell"`
	Email     string `db:"email" json:"email"`
}
