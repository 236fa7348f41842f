// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// TopicBatchSends carries BatchJob payloads for async dispatches.
const TopicBatchSends = "outreach_batches"

// Handler processes one delivery. Returning an error only logs it; jobs
// are never redelivered, a failed batch is re-triggered by the operator.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers each message once to every subscriber of its topic.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Publish encodes payload as JSON and hands it to all subscribers
func (q *InMemoryQueue) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.process(topic, handler, body)
	}
	return nil
}

func (q *InMemoryQueue) process(topic string, handler Handler, body []byte) {
	defer q.wg.Done()
	if err := handler(q.ctx, body); err != nil {
		q.logger.Error("job failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	q.logger.Debug("job processed", zap.String("topic", topic))
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close cancels in-flight handlers and waits for them to return.
func (q *InMemoryQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
