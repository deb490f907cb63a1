// internal/repository/organization_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
)

type OrganizationRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Organization, error)
	UpdateTextingHours(ctx context.Context, id, start, end int) error
	UpdateTextingHoursEnforcement(ctx context.Context, id int, enforced bool) error
	UpdateOptOutMessage(ctx context.Context, id int, message string) error

	UserRoles(ctx context.Context, organizationID, userID int) ([]model.Role, error)
	GetUser(ctx context.Context, id int) (*model.User, error)
}

type OrganizationRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func (r *OrganizationRepository) rebind(query string) string {
	if r.Dialect == nil {
		return rebind(Postgres, query)
	}
	return rebind(r.Dialect, query)
}

func (r *OrganizationRepository) Create(ctx context.Context, o *model.Organization) error {
	return r.DB.QueryRowContext(ctx, r.rebind(`
        INSERT INTO organization (name, texting_hours_enforced, texting_hours_start, texting_hours_end, opt_out_message)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `), o.Name, o.TextingHoursEnforced, o.TextingHoursStart, o.TextingHoursEnd, o.OptOutMessage).Scan(&o.ID)
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id int) (*model.Organization, error) {
	var o model.Organization
	err := r.DB.QueryRowContext(ctx, r.rebind(`
        SELECT id, name, texting_hours_enforced, texting_hours_start, texting_hours_end, opt_out_message
        FROM organization WHERE id = ?
    `), id).Scan(&o.ID, &o.Name, &o.TextingHoursEnforced, &o.TextingHoursStart, &o.TextingHoursEnd, &o.OptOutMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("organization", id)
		}
		return nil, fmt.Errorf("get organization %d: %w", id, err)
	}
	return &o, nil
}

func (r *OrganizationRepository) exec(ctx context.Context, id int, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, r.rebind(query), append(args, id)...)
	if err != nil {
		return fmt.Errorf("update organization %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("organization", id)
	}
	return nil
}

func (r *OrganizationRepository) UpdateTextingHours(ctx context.Context, id, start, end int) error {
	return r.exec(ctx, id, "UPDATE organization SET texting_hours_start = ?, texting_hours_end = ? WHERE id = ?", start, end)
}

func (r *OrganizationRepository) UpdateTextingHoursEnforcement(ctx context.Context, id int, enforced bool) error {
	return r.exec(ctx, id, "UPDATE organization SET texting_hours_enforced = ? WHERE id = ?", enforced)
}

func (r *OrganizationRepository) UpdateOptOutMessage(ctx context.Context, id int, message string) error {
	return r.exec(ctx, id, "UPDATE organization SET opt_out_message = ? WHERE id = ?", message)
}

// ====================== Users & roles ======================

func (r *OrganizationRepository) UserRoles(ctx context.Context, organizationID, userID int) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		r.rebind("SELECT role FROM user_organization WHERE organization_id = ? AND user_id = ?"),
		organizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []model.Role{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, model.Role(role))
	}
	return roles, rows.Err()
}

func (r *OrganizationRepository) AddUserRole(ctx context.Context, ur model.UserRole) error {
	_, err := r.DB.ExecContext(ctx,
		r.rebind("INSERT INTO user_organization (user_id, organization_id, role) VALUES (?, ?, ?)"),
		ur.UserID, ur.OrganizationID, string(ur.Role))
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) CreateUser(ctx context.Context, u *model.User) error {
	return r.DB.QueryRowContext(ctx, r.rebind(`
        INSERT INTO users (first_name, last_name, cell, email) VALUES (?, ?, ?, ?)
        RETURNING id
    `), u.FirstName, u.LastName, u.Cell, u.Email).Scan(&u.ID)
}

func (r *OrganizationRepository) GetUser(ctx context.Context, id int) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		r.rebind("SELECT id, first_name, last_name, cell, email FROM users WHERE id = ?"), id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Cell, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("user", id)
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

var _ OrganizationRepositoryInterface = (*OrganizationRepository)(nil)
