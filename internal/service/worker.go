package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/queue"
	"github.com/unclebandit/canvass-backend/internal/repository"
)

// Worker hands queued messages to a Sender and records the outcome on the
// message row.
type Worker struct {
	Messages repository.MessageRepositoryInterface
	Sender   Sender
	Logger   *slog.Logger
}

func NewWorker(messages repository.MessageRepositoryInterface, sender Sender) *Worker {
	return &Worker{Messages: messages, Sender: sender, Logger: slog.Default()}
}

// Handle processes one job. A returned error asks the queue to retry.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	msg, err := w.Messages.GetByID(ctx, job.MessageID)
	if err != nil {
		return fmt.Errorf("load message %d: %w", job.MessageID, err)
	}
	if job.ServiceID != "" && msg.ServiceID != job.ServiceID {
		w.Logger.Warn("dropping job for a different message", "message_id", msg.ID, "service_id", job.ServiceID)
		return nil
	}
	if msg.SendStatus == model.SendSent {
		return nil
	}

	if err := w.Sender.Send(ctx, msg); err != nil {
		w.Logger.Error("send failed", "message_id", msg.ID, "retry_count", msg.RetryCount, "error", err)
		if uerr := w.Messages.UpdateSendStatus(ctx, msg.ID, model.SendError, err.Error()); uerr != nil {
			w.Logger.Error("failed to record send error", "message_id", msg.ID, "error", uerr)
		}
		return err
	}

	if err := w.Messages.UpdateSendStatus(ctx, msg.ID, model.SendSent, ""); err != nil {
		return fmt.Errorf("mark message %d sent: %w", msg.ID, err)
	}
	w.Logger.Info("message sent", "message_id", msg.ID, "service_id", msg.ServiceID)
	return nil
}
