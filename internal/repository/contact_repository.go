// internal/repository/contact_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
)

const contactColumns = "id, campaign_id, assignment_id, first_name, last_name, cell, zip, external_id, custom_fields, city, state, message_status, is_opted_out, timezone_offset, created_at, updated_at"

type ContactRepositoryInterface interface {
	SelectContacts(ctx context.Context, q ContactQuery) ([]*model.CampaignContact, error)
	CountContacts(ctx context.Context, q ContactQuery) (int, error)
	GetByID(ctx context.Context, id int) (*model.CampaignContact, error)
	SetMessageStatus(ctx context.Context, id int, status model.MessageStatus) error

	ListQuestionResponses(ctx context.Context, contactID int) ([]model.QuestionResponse, error)
	IsCellOptedOut(ctx context.Context, organizationID int, cell string) (bool, error)
	ApplyUpdate(ctx context.Context, u ContactUpdate) error

	AddTags(ctx context.Context, tags []model.ContactTag) error
	ResolveTags(ctx context.Context, contactIDs []int, tag string) (int, error)
	ListTags(ctx context.Context, contactID int) ([]model.ContactTag, error)
}

// ContactUpdate is everything a texter action changes on one contact. It is
// applied in a single transaction, guarded by the contact still belonging to
// AssignmentID.
type ContactUpdate struct {
	ContactID      int
	AssignmentID   int
	OrganizationID int

	// Status is left unchanged when empty.
	Status     model.MessageStatus
	Responses  []model.QuestionResponse
	ClearSteps []int
	Tag        *model.ContactTag
	OptOut     *model.OptOut
	// Message is inserted and its ID filled in.
	Message *model.Message
}

type ContactRepository struct {
	DB      *sql.DB
	Dialect Dialect
	Now     func() time.Time
}

func (r *ContactRepository) dialect() Dialect {
	if r.Dialect == nil {
		return Postgres
	}
	return r.Dialect
}

func (r *ContactRepository) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *ContactRepository) rebind(query string) string { return rebind(r.dialect(), query) }

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*model.CampaignContact, error) {
	var (
		c            model.CampaignContact
		assignmentID sql.NullInt64
		customFields sql.NullString
		status       string
	)
	err := s.Scan(
		&c.ID, &c.CampaignID, &assignmentID, &c.FirstName, &c.LastName, &c.Cell, &c.Zip,
		&c.ExternalID, &customFields, &c.City, &c.State, &status, &c.IsOptedOut,
		&c.TimezoneOffset, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignmentID.Valid {
		id := int(assignmentID.Int64)
		c.AssignmentID = &id
	}
	if customFields.Valid && customFields.String != "" {
		if err := json.Unmarshal([]byte(customFields.String), &c.CustomFields); err != nil {
			return nil, fmt.Errorf("contact %d custom fields: %w", c.ID, err)
		}
	}
	c.MessageStatus = model.MessageStatus(status)
	return &c, nil
}

func (r *ContactRepository) SelectContacts(ctx context.Context, q ContactQuery) ([]*model.CampaignContact, error) {
	contacts := []*model.CampaignContact{}
	if q.Empty {
		return contacts, nil
	}
	q.CountOnly = false
	query, args := q.SQL(r.dialect())

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	return contacts, nil
}

func (r *ContactRepository) CountContacts(ctx context.Context, q ContactQuery) (int, error) {
	if q.Empty {
		return 0, nil
	}
	q.CountOnly = true
	query, args := q.SQL(r.dialect())

	var total int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return total, nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.CampaignContact, error) {
	row := r.DB.QueryRowContext(ctx, r.rebind("SELECT "+contactColumns+" FROM campaign_contact WHERE id = ?"), id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("campaign contact", id)
		}
		return nil, fmt.Errorf("get contact %d: %w", id, err)
	}
	return c, nil
}

// Create inserts a contact. Used by imports, the seeder and tests.
func (r *ContactRepository) Create(ctx context.Context, c *model.CampaignContact) error {
	fields, err := json.Marshal(c.CustomFields)
	if err != nil {
		return fmt.Errorf("encode custom fields: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.MessageStatus == "" {
		c.MessageStatus = model.StatusNeedsMessage
	}
	var assignmentID any
	if c.AssignmentID != nil {
		assignmentID = *c.AssignmentID
	}
	query := r.rebind(`
        INSERT INTO campaign_contact
        (campaign_id, assignment_id, first_name, last_name, cell, zip, external_id, custom_fields,
         city, state, message_status, is_opted_out, timezone_offset, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	return r.DB.QueryRowContext(ctx, query,
		c.CampaignID, assignmentID, c.FirstName, c.LastName, c.Cell, c.Zip, c.ExternalID, string(fields),
		c.City, c.State, string(c.MessageStatus), c.IsOptedOut, c.TimezoneOffset, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
}

// SetMessageStatus changes status without an assignment check. Used for
// administrative edits.
func (r *ContactRepository) SetMessageStatus(ctx context.Context, id int, status model.MessageStatus) error {
	res, err := r.DB.ExecContext(ctx,
		r.rebind("UPDATE campaign_contact SET message_status = ?, updated_at = ? WHERE id = ?"),
		string(status), r.now(), id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("campaign contact", id)
	}
	return nil
}

func (r *ContactRepository) ListQuestionResponses(ctx context.Context, contactID int) ([]model.QuestionResponse, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`
        SELECT campaign_contact_id, interaction_step_id, value
        FROM question_response
        WHERE campaign_contact_id = ?
        ORDER BY interaction_step_id
    `), contactID)
	if err != nil {
		return nil, fmt.Errorf("list question responses: %w", err)
	}
	defer rows.Close()

	out := []model.QuestionResponse{}
	for rows.Next() {
		var qr model.QuestionResponse
		if err := rows.Scan(&qr.CampaignContactID, &qr.InteractionStepID, &qr.Value); err != nil {
			return nil, fmt.Errorf("scan question response: %w", err)
		}
		out = append(out, qr)
	}
	return out, rows.Err()
}

func (r *ContactRepository) IsCellOptedOut(ctx context.Context, organizationID int, cell string) (bool, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		r.rebind("SELECT COUNT(*) FROM opt_out WHERE organization_id = ? AND cell = ?"),
		organizationID, cell).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check opt out: %w", err)
	}
	return count > 0, nil
}

// ApplyUpdate writes u in one transaction. If the contact no longer belongs
// to u.AssignmentID nothing is written and a StaleAssignmentError is
// returned.
func (r *ContactRepository) ApplyUpdate(ctx context.Context, u ContactUpdate) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := r.now()

	var res sql.Result
	if u.Status != "" {
		res, err = tx.ExecContext(ctx,
			r.rebind("UPDATE campaign_contact SET message_status = ?, updated_at = ? WHERE id = ? AND assignment_id = ?"),
			string(u.Status), now, u.ContactID, u.AssignmentID)
	} else {
		res, err = tx.ExecContext(ctx,
			r.rebind("UPDATE campaign_contact SET updated_at = ? WHERE id = ? AND assignment_id = ?"),
			now, u.ContactID, u.AssignmentID)
	}
	if err != nil {
		return fmt.Errorf("update contact %d: %w", u.ContactID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.staleOrMissing(ctx, tx, u.ContactID, u.AssignmentID)
	}

	if err = r.writeResponses(ctx, tx, u.ContactID, u.Responses, u.ClearSteps); err != nil {
		return err
	}

	if u.Tag != nil {
		u.Tag.CampaignContactID = u.ContactID
		if err = r.upsertTag(ctx, tx, *u.Tag); err != nil {
			return err
		}
	}

	if u.OptOut != nil {
		if err = r.insertOptOut(ctx, tx, u, now); err != nil {
			return err
		}
	}

	if u.Message != nil {
		if u.Message.CreatedAt.IsZero() {
			u.Message.CreatedAt = now
			u.Message.UpdatedAt = now
		}
		if err = insertMessage(ctx, tx, r.dialect(), u.Message); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit contact update: %w", err)
	}
	return nil
}

func (r *ContactRepository) staleOrMissing(ctx context.Context, tx *sql.Tx, contactID, assignmentID int) error {
	var current sql.NullInt64
	err := tx.QueryRowContext(ctx, r.rebind("SELECT assignment_id FROM campaign_contact WHERE id = ?"), contactID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewNotFound("campaign contact", contactID)
	}
	if err != nil {
		return fmt.Errorf("check assignment: %w", err)
	}
	return appErrors.NewStaleAssignment(contactID, assignmentID, int(current.Int64))
}

func (r *ContactRepository) writeResponses(ctx context.Context, tx *sql.Tx, contactID int, set []model.QuestionResponse, clear []int) error {
	for _, stepID := range clear {
		_, err := tx.ExecContext(ctx,
			r.rebind("DELETE FROM question_response WHERE campaign_contact_id = ? AND interaction_step_id = ?"),
			contactID, stepID)
		if err != nil {
			return fmt.Errorf("delete question response %d: %w", stepID, err)
		}
	}
	for _, qr := range set {
		_, err := tx.ExecContext(ctx, r.rebind(`
            INSERT INTO question_response (campaign_contact_id, interaction_step_id, value)
            VALUES (?, ?, ?)
            ON CONFLICT (campaign_contact_id, interaction_step_id) DO UPDATE SET value = excluded.value
        `), contactID, qr.InteractionStepID, qr.Value)
		if err != nil {
			return fmt.Errorf("save question response %d: %w", qr.InteractionStepID, err)
		}
	}
	return nil
}

func (r *ContactRepository) insertOptOut(ctx context.Context, tx *sql.Tx, u ContactUpdate, now time.Time) error {
	o := u.OptOut
	o.AssignmentID = u.AssignmentID
	if o.OrganizationID == 0 {
		o.OrganizationID = u.OrganizationID
	}
	o.CreatedAt = now
	err := tx.QueryRowContext(ctx, r.rebind(`
        INSERT INTO opt_out (organization_id, assignment_id, cell, reason, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `), o.OrganizationID, o.AssignmentID, o.Cell, o.Reason, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert opt out: %w", err)
	}

	// Every contact with this cell in the organization stops receiving texts.
	_, err = tx.ExecContext(ctx, r.rebind(`
        UPDATE campaign_contact SET is_opted_out = ?, updated_at = ?
        WHERE cell = ? AND campaign_id IN (SELECT id FROM campaign WHERE organization_id = ?)
    `), true, now, o.Cell, o.OrganizationID)
	if err != nil {
		return fmt.Errorf("mark opted out: %w", err)
	}
	return nil
}

func (r *ContactRepository) upsertTag(ctx context.Context, ex execer, t model.ContactTag) error {
	_, err := ex.ExecContext(ctx, r.rebind(`
        INSERT INTO tag_campaign_contact (campaign_contact_id, tag, comment, resolved, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (campaign_contact_id, tag) DO UPDATE SET comment = excluded.comment, resolved = excluded.resolved
    `), t.CampaignContactID, t.Tag, t.Comment, t.Resolved, r.now())
	if err != nil {
		return fmt.Errorf("tag contact %d: %w", t.CampaignContactID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ContactRepository) AddTags(ctx context.Context, tags []model.ContactTag) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tags: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, t := range tags {
		if err = r.upsertTag(ctx, tx, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ResolveTags marks tag resolved on each contact and returns how many rows
// changed.
func (r *ContactRepository) ResolveTags(ctx context.Context, contactIDs []int, tag string) (resolved int, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin resolve tags: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, id := range contactIDs {
		res, err := tx.ExecContext(ctx,
			r.rebind("UPDATE tag_campaign_contact SET resolved = ? WHERE campaign_contact_id = ? AND tag = ? AND resolved = ?"),
			true, id, tag, false)
		if err != nil {
			return 0, fmt.Errorf("resolve tag on contact %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		resolved += int(n)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return resolved, nil
}

func (r *ContactRepository) ListTags(ctx context.Context, contactID int) ([]model.ContactTag, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`
        SELECT campaign_contact_id, tag, comment, resolved
        FROM tag_campaign_contact
        WHERE campaign_contact_id = ?
        ORDER BY tag
    `), contactID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []model.ContactTag{}
	for rows.Next() {
		var t model.ContactTag
		if err := rows.Scan(&t.CampaignContactID, &t.Tag, &t.Comment, &t.Resolved); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
