package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TopicOutbound carries texter messages waiting to be handed to the carrier.
const TopicOutbound = "outbound_messages"

// Job identifies one queued message. ServiceID is the idempotency key
// stored on the message row.
type Job struct {
	MessageID int    `json:"message_id"`
	ServiceID string `json:"service_id"`
}

type Handler func(ctx context.Context, job Job) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job Job) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to subscribers on goroutines and retries
// failed handlers with linear backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Logger     *slog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*500) * time.Millisecond
		},
		Logger: slog.Default(),
	}
}

// Publish sends a job to all subscribers of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job Job) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	// Delivery outlives the publishing request.
	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		q.wg.Add(1)
		go q.process(ctx, topic, handler, job)
	}
	return nil
}

func (q *InMemoryQueue) process(ctx context.Context, topic string, handler Handler, job Job) {
	defer q.wg.Done()
	for attempt := 0; ; attempt++ {
		err := handler(ctx, job)
		if err == nil {
			q.Logger.Debug("job processed", "topic", topic, "message_id", job.MessageID)
			return
		}
		if attempt >= q.MaxRetries {
			q.Logger.Error("job permanently failed", "topic", topic, "message_id", job.MessageID, "attempts", attempt+1, "error", err)
			return
		}
		q.Logger.Warn("job failed", "topic", topic, "message_id", job.MessageID, "attempt", attempt+1, "error", err)
		time.Sleep(q.Backoff(attempt + 1))
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, including retries.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}
