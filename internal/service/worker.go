// internal/service/worker.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/queue"
)

// BatchSender is the part of OutreachService the worker needs.
type BatchSender interface {
	SendBatch(ctx context.Context, req model.BatchRequest) (*model.BatchResult, error)
}

// BatchWorker processes queued batch jobs
type BatchWorker struct {
	Sender BatchSender
	Logger *zap.Logger
}

// NewBatchWorker is the constructor
func NewBatchWorker(sender BatchSender, logger *zap.Logger) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWorker{Sender: sender, Logger: logger}
}

// Handle runs one job. Malformed payloads are dropped; a send error is
// returned for logging only, the job is never retried.
func (w *BatchWorker) Handle(ctx context.Context, body []byte) error {
	var job model.BatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.Logger.Warn("invalid batch job", zap.Error(err))
		return nil
	}

	result, err := w.Sender.SendBatch(ctx, job.Request)
	if err != nil {
		return fmt.Errorf("batch job %s: %w", job.ID, err)
	}
	w.Logger.Info("batch job processed",
		zap.String("job_id", job.ID),
		zap.Int("attempted", result.Attempted),
		zap.Int("sent", result.Sent),
		zap.Int("failed", len(result.Failures)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return nil
}

// Start subscribes the worker to topic.
func (w *BatchWorker) Start(q queue.Queue, topic string) error {
	if topic == "" {
		topic = queue.TopicBatchSends
	}
	return q.Subscribe(topic, w.Handle)
}
