// internal/repository/assignment_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
)

type AssignmentRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Assignment, error)
}

type AssignmentRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func (r *AssignmentRepository) rebind(query string) string {
	if r.Dialect == nil {
		return rebind(Postgres, query)
	}
	return rebind(r.Dialect, query)
}

func (r *AssignmentRepository) Create(ctx context.Context, a *model.Assignment) error {
	var maxContacts any
	if a.MaxContacts != nil {
		maxContacts = *a.MaxContacts
	}
	return r.DB.QueryRowContext(ctx,
		r.rebind("INSERT INTO assignment (campaign_id, user_id, max_contacts) VALUES (?, ?, ?) RETURNING id"),
		a.CampaignID, a.UserID, maxContacts,
	).Scan(&a.ID)
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id int) (*model.Assignment, error) {
	var (
		a   model.Assignment
		maxContacts sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		r.rebind("SELECT id, campaign_id, user_id, max_contacts FROM assignment WHERE id = ?"), id,
	).Scan(&a.ID, &a.CampaignID, &a.UserID, &maxContacts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("assignment", id)
		}
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	if maxContacts.Valid {
		m := int(maxContacts.Int64)
		a.MaxContacts = &m
	}
	return &a, nil
}

var _ AssignmentRepositoryInterface = (*AssignmentRepository)(nil)
