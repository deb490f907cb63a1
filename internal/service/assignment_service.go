// internal/service/assignment_service.go
package service

import (
	"context"
	"time"

	"github.com/unclebandit/canvass-backend/internal/metrics"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/texting"
)

// AssignmentService answers the texter's "who do I text next" questions.
type AssignmentService struct {
	Assignments   repository.AssignmentRepositoryInterface
	Contacts      repository.ContactRepositoryInterface
	Organizations repository.OrganizationRepositoryInterface
	Catalog       *Catalog
	Evaluator     *texting.Evaluator

	Now          func() time.Time
	QueryTimeout time.Duration
}

// authorize loads the assignment and its campaign for userID.
func (s *AssignmentService) authorize(ctx context.Context, userID, assignmentID int) (*model.Assignment, *CampaignMeta, error) {
	assignment, err := s.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	meta, err := s.Catalog.Campaign(ctx, assignment.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	if err := canWorkAssignment(ctx, s.Organizations, meta.Organization.ID, assignment, userID); err != nil {
		return nil, nil, err
	}
	return assignment, meta, nil
}

func (s *AssignmentService) query(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter, page Page, count bool) (repository.ContactQuery, error) {
	assignment, meta, err := s.authorize(ctx, userID, assignmentID)
	if err != nil {
		return repository.ContactQuery{}, err
	}
	return repository.BuildContactQuery(repository.ContactQueryInput{
		AssignmentID: assignment.ID,
		Filter:       filter,
		Organization: meta.Organization,
		Campaign:     meta.Campaign,
		Evaluator:    s.Evaluator,
		Now:          clockOr(s.Now),
		CountOnly:    count,
		Limit:        page.Limit,
		Offset:       page.Offset,
	}), nil
}

// SelectContacts lists an assignment's contacts matching filter. A nil
// filter returns every contact on the assignment.
func (s *AssignmentService) SelectContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter, page Page) ([]*model.CampaignContact, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	q, err := s.query(ctx, userID, assignmentID, filter, page, false)
	if err != nil {
		return nil, err
	}
	metrics.ContactsSelected.WithLabelValues("list").Inc()
	if q.Empty {
		return []*model.CampaignContact{}, nil
	}
	return s.Contacts.SelectContacts(ctx, q)
}

func (s *AssignmentService) CountContacts(ctx context.Context, userID, assignmentID int, filter *model.ContactsFilter) (int, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	q, err := s.query(ctx, userID, assignmentID, filter, Page{}, true)
	if err != nil {
		return 0, err
	}
	metrics.ContactsSelected.WithLabelValues("count").Inc()
	if q.Empty {
		return 0, nil
	}
	return s.Contacts.CountContacts(ctx, q)
}

// CannedResponses returns the campaign's shared responses followed by the
// assigned texter's own.
func (s *AssignmentService) CannedResponses(ctx context.Context, userID, assignmentID int) ([]model.CannedResponse, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	assignment, _, err := s.authorize(ctx, userID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.Catalog.CannedResponses(ctx, assignment.CampaignID, assignment.UserID)
}
