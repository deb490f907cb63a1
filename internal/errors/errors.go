// internal/errors/errors.go
package appErrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrOutsideTextingHours  = errors.New("outside permitted texting time for this recipient")
	ErrContactOptedOut      = errors.New("contact has opted out")
	ErrSuspended            = errors.New("texter is suspended")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrBulkSendDisabled     = errors.New("bulk send is not enabled")
	ErrInvalidMessageStatus = errors.New("invalid message status")
	ErrEmptyMessage         = errors.New("message text cannot be empty")
	ErrForbidden            = errors.New("not permitted for this user")
)

// NotFoundError is returned when a record lookup matches nothing.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func NewNotFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewCampaignNotFound is kept for callers that only deal with campaigns.
func NewCampaignNotFound(id int) error {
	return NewNotFound("campaign", id)
}

// ConfigurationError marks a campaign whose survey script cannot be walked:
// no root, several roots, a dangling answer option or a cycle.
type ConfigurationError struct {
	CampaignID int
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.CampaignID == 0 {
		return "invalid interaction step configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid interaction step configuration for campaign %d: %s", e.CampaignID, e.Reason)
}

func NewConfigurationError(reason string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(reason, args...)}
}

// StaleAssignmentError is returned when a contact moved to another assignment
// between the texter loading it and submitting an action on it.
type StaleAssignmentError struct {
	ContactID           int
	AssignmentID        int
	CurrentAssignmentID int
}

func (e *StaleAssignmentError) Error() string {
	return "Your assignment has changed"
}

func NewStaleAssignment(contactID, assignmentID, current int) error {
	return &StaleAssignmentError{ContactID: contactID, AssignmentID: assignmentID, CurrentAssignmentID: current}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsStaleAssignment(err error) bool {
	var sa *StaleAssignmentError
	return errors.As(err, &sa)
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRetryable reports whether err came from the store timing out or losing
// its connection. The caller decides whether to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
	}
	return false
}
