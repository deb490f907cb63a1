package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"

	"github.com/unclebandit/canvass-backend/internal/model"
)

// Sender delivers one message to the carrier.
type Sender interface {
	Send(ctx context.Context, msg *model.Message) error
}

// LogSender only logs. It is the default when no carrier is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg *model.Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "outbound message", "message_id", msg.ID, "to", msg.ContactNumber, "length", len(msg.Text))
	return nil
}

var ErrSimulatedFailure = errors.New("simulated send failure")

// SimulatedSender fails a fraction of sends, for exercising retries.
type SimulatedSender struct {
	SuccessRate float64
	Rand        func() float64
}

func (s SimulatedSender) Send(context.Context, *model.Message) error {
	r := rand.Float64
	if s.Rand != nil {
		r = s.Rand
	}
	if r() < s.SuccessRate {
		return nil
	}
	return ErrSimulatedFailure
}
