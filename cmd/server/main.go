// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "time/tzdata"

	"github.com/unclebandit/canvass-backend/internal/config"
	"github.com/unclebandit/canvass-backend/internal/controller"
	"github.com/unclebandit/canvass-backend/internal/db"
	"github.com/unclebandit/canvass-backend/internal/handler"
	"github.com/unclebandit/canvass-backend/internal/logger"
	"github.com/unclebandit/canvass-backend/internal/metrics"
	"github.com/unclebandit/canvass-backend/internal/queue"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/service"
	"github.com/unclebandit/canvass-backend/internal/texting"
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
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, cfg.DBDriver); err != nil {
		return err
	}
	dialect, err := repository.DialectFor(cfg.DBDriver)
	if err != nil {
		return err
	}

	contactRepo := &repository.ContactRepository{DB: conn, Dialect: dialect}
	campaignRepo := &repository.CampaignRepository{DB: conn, Dialect: dialect}
	assignmentRepo := &repository.AssignmentRepository{DB: conn, Dialect: dialect}
	orgRepo := &repository.OrganizationRepository{DB: conn, Dialect: dialect}
	messageRepo := &repository.MessageRepository{DB: conn, Dialect: dialect}

	q, closeQueue, err := openQueue(cfg, log, messageRepo)
	if err != nil {
		return err
	}
	defer closeQueue()

	evaluator := texting.NewEvaluator(
		texting.WithDefaultTimezone(cfg.DefaultTimezone),
		texting.WithDSTReference(cfg.DSTReferenceTimezone),
	)
	catalog := service.NewCatalog(campaignRepo, orgRepo, cfg.CacheTTL)

	assignmentService := &service.AssignmentService{
		Assignments:   assignmentRepo,
		Contacts:      contactRepo,
		Organizations: orgRepo,
		Catalog:       catalog,
		Evaluator:     evaluator,
		QueryTimeout:  cfg.QueryTimeout,
	}
	contactService := &service.ContactService{
		Contacts:      contactRepo,
		Assignments:   assignmentRepo,
		Organizations: orgRepo,
		Catalog:       catalog,
		Evaluator:     evaluator,
		Queue:         q,
		Config: service.ContactServiceConfig{
			BulkSendEnabled:   cfg.AllowSendAll,
			BulkSendChunkSize: cfg.BulkSendChunkSize,
			MaxMessageLength:  cfg.MaxMessageLength,
		},
		Topic:        cfg.QueueName,
		Logger:       log,
		QueryTimeout: cfg.QueryTimeout,
	}
	orgService := &service.OrganizationService{
		Organizations: orgRepo,
		Campaigns:     campaignRepo,
		Catalog:       catalog,
		Logger:        log,
		QueryTimeout:  cfg.QueryTimeout,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(reg)

	sendLimit := controller.SendRateLimit(cfg.SendRateLimit, cfg.SendRateBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.PingContext(r.Context()); err != nil {
			controller.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
			return
		}
		controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(controller.Identify)
		r.Use(controller.RequestLogger(log))

		(&controller.AssignmentController{Assignments: assignmentService, Sender: contactService, SendLimit: sendLimit}).Routes(r)
		(&controller.ContactController{Contacts: contactService, SendLimit: sendLimit}).Routes(r)
		(&handler.CampaignHandler{Scripts: orgService, Steps: contactService}).Routes(r)
		(&handler.OrganizationHandler{Settings: orgService}).Routes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", srv.Addr, "driver", cfg.DBDriver, "in_memory_queue", cfg.QueueInMemory)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// openQueue returns the outbound queue. The in-memory queue delivers to a
// worker inside this process; otherwise cmd/worker consumes from RabbitMQ.
func openQueue(cfg config.Config, log *slog.Logger, messages repository.MessageRepositoryInterface) (queue.Queue, func(), error) {
	if cfg.QueueInMemory {
		q := queue.NewInMemoryQueue()
		q.Logger = log
		w := service.NewWorker(messages, service.LogSender{Logger: log})
		w.Logger = log
		if err := q.Subscribe(cfg.QueueName, w.Handle); err != nil {
			return nil, nil, err
		}
		return q, q.Wait, nil
	}

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	q.Logger = log
	return q, func() {
		if err := q.Close(); err != nil {
			log.Warn("failed to close rabbitmq connection", "error", err)
		}
	}, nil
}
