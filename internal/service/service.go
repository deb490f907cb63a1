// internal/service/service.go
package service

import (
	"context"
	"sort"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/permissions"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/survey"
)

// Page bounds a contact listing. A zero Limit returns every match.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// canWorkAssignment allows the assignment's texter and anyone at
// SUPERVOLUNTEER or above in the organization. Suspended users never pass.
func canWorkAssignment(ctx context.Context, orgs repository.OrganizationRepositoryInterface, organizationID int, assignment *model.Assignment, userID int) error {
	roles, err := orgs.UserRoles(ctx, organizationID, userID)
	if err != nil {
		return err
	}
	if permissions.IsSuspended(roles) {
		return appErrors.ErrSuspended
	}
	if assignment.UserID != userID && !permissions.HasRoleAtLeast(permissions.HighestRole(roles), model.RoleSupervolunteer) {
		return appErrors.ErrForbidden
	}
	return nil
}

func clockOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func responsesFrom(rows []model.QuestionResponse) survey.Responses {
	out := make(survey.Responses, len(rows))
	for _, r := range rows {
		out[r.InteractionStepID] = r.Value
	}
	return out
}

// diffResponses turns a before/after pair into the upserts and deletions
// that take the store from one to the other.
func diffResponses(contactID int, before, after survey.Responses) (set []model.QuestionResponse, cleared []int) {
	for id, v := range after {
		if old, ok := before[id]; !ok || old != v {
			set = append(set, model.QuestionResponse{CampaignContactID: contactID, InteractionStepID: id, Value: v})
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			cleared = append(cleared, id)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i].InteractionStepID < set[j].InteractionStepID })
	sort.Ints(cleared)
	return set, cleared
}
