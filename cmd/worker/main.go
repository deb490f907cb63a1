// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/canvass-backend/internal/config"
	"github.com/unclebandit/canvass-backend/internal/db"
	"github.com/unclebandit/canvass-backend/internal/logger"
	"github.com/unclebandit/canvass-backend/internal/queue"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()
	dialect, err := repository.DialectFor(cfg.DBDriver)
	if err != nil {
		return err
	}

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer q.Close()
	q.Logger = log

	w := service.NewWorker(&repository.MessageRepository{DB: conn, Dialect: dialect}, newSender(cfg, log))
	w.Logger = log
	if err := q.Subscribe(cfg.QueueName, w.Handle); err != nil {
		return err
	}

	log.Info("worker running, waiting for messages", "queue", cfg.QueueName)
	<-ctx.Done()
	return nil
}

func newSender(cfg config.Config, log *slog.Logger) service.Sender {
	if cfg.SimulatedSendRate > 0 {
		log.Warn("using simulated sender", "success_rate", cfg.SimulatedSendRate)
		return service.SimulatedSender{SuccessRate: cfg.SimulatedSendRate}
	}
	return service.LogSender{Logger: log}
}
