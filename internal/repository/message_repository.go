// internal/repository/message_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
)

const messageColumns = "id, campaign_contact_id, assignment_id, user_id, contact_number, text, is_from_contact, send_status, service_id, last_error, retry_count, created_at, updated_at"

type MessageRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Message, error)
	UpdateSendStatus(ctx context.Context, id int, status model.SendStatus, lastError string) error
	ListByContact(ctx context.Context, contactID int) ([]*model.Message, error)
}

type MessageRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func (r *MessageRepository) rebind(query string) string {
	if r.Dialect == nil {
		return rebind(Postgres, query)
	}
	return rebind(r.Dialect, query)
}

func insertMessage(ctx context.Context, ex queryRower, d Dialect, msg *model.Message) error {
	if msg.SendStatus == "" {
		msg.SendStatus = model.SendQueued
	}
	err := ex.QueryRowContext(ctx, rebind(d, `
        INSERT INTO message
        (campaign_contact_id, assignment_id, user_id, contact_number, text, is_from_contact,
         send_status, service_id, last_error, retry_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `),
		msg.CampaignContactID, msg.AssignmentID, msg.UserID, msg.ContactNumber, msg.Text, msg.IsFromContact,
		string(msg.SendStatus), msg.ServiceID, msg.LastError, msg.RetryCount, msg.CreatedAt, msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanMessage(s scanner) (*model.Message, error) {
	var (
		msg    model.Message
		status string
	)
	err := s.Scan(
		&msg.ID, &msg.CampaignContactID, &msg.AssignmentID, &msg.UserID, &msg.ContactNumber, &msg.Text,
		&msg.IsFromContact, &status, &msg.ServiceID, &msg.LastError, &msg.RetryCount,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.SendStatus = model.SendStatus(status)
	return &msg, nil
}

// GetByID fetches a message by its ID
func (r *MessageRepository) GetByID(ctx context.Context, id int) (*model.Message, error) {
	row := r.DB.QueryRowContext(ctx, r.rebind("SELECT "+messageColumns+" FROM message WHERE id = ?"), id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("message", id)
		}
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// UpdateSendStatus records the outcome of a delivery attempt. Failed
// attempts bump retry_count.
func (r *MessageRepository) UpdateSendStatus(ctx context.Context, id int, status model.SendStatus, lastError string) error {
	retry := 0
	if status == model.SendError {
		retry = 1
	}
	res, err := r.DB.ExecContext(ctx, r.rebind(`
        UPDATE message
        SET send_status = ?, last_error = ?, retry_count = retry_count + ?, updated_at = ?
        WHERE id = ?
    `), string(status), lastError, retry, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update message %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("message", id)
	}
	return nil
}

func (r *MessageRepository) ListByContact(ctx context.Context, contactID int) ([]*model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		r.rebind("SELECT "+messageColumns+" FROM message WHERE campaign_contact_id = ? ORDER BY created_at, id"),
		contactID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
