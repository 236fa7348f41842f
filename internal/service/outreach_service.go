// internal/service/outreach_service.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/queue"
	"github.com/unclebandit/outreach-service/internal/repository"
)

// OutreachService is the operator entry point for batch sends, inbox
// polling and the message store.
type OutreachService struct {
	ContactRepo  repository.ContactRepositoryInterface
	OutboundRepo repository.OutboundRecordRepositoryInterface
	ReplyRepo    repository.InboundReplyRepositoryInterface
	Dispatcher   *Dispatcher
	Poller       *Poller
	// Queue is optional; without it async batches are rejected.
	Queue      queue.Queue
	QueueTopic string
	Logger     *zap.Logger
	Now        func() time.Time
}

// SendBatch renders the request's templates for every matching contact and dispatches them.
func (s *OutreachService) SendBatch(ctx context.Context, req model.BatchRequest) (*model.BatchResult, error) {
	if err := validateBatch(req); err != nil {
		return nil, err
	}
	contacts, err := s.ContactRepo.FetchContacts(ctx, req.Filter)
	if err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, 0, len(contacts))
	byID := make(map[string]model.Contact, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, c.Recipient())
		byID[c.ID] = c
	}

	s.logger().Info("sending batch",
		zap.Int("recipients", len(recipients)),
		zap.String("requested_by", req.RequestedBy),
	)
	return s.Dispatcher.Dispatch(ctx, recipients, func(r model.Recipient) (model.Content, error) {
		data := contactData(byID[r.ID])
		var content model.Content
		var err error
		if content.Subject, err = RenderTemplate(req.SubjectTemplate, data); err != nil {
			return model.Content{}, err
		}
		if content.Body, err = RenderTemplate(req.BodyTemplate, data); err != nil {
			return model.Content{}, err
		}
		if req.HTMLTemplate != "" {
			if content.HTMLBody, err = RenderTemplate(req.HTMLTemplate, data); err != nil {
				return model.Content{}, err
			}
		}
		return content, nil
	})
}

// EnqueueBatch publishes the request for a worker and returns the job id.
func (s *OutreachService) EnqueueBatch(ctx context.Context, req model.BatchRequest) (string, error) {
	if err := validateBatch(req); err != nil {
		return "", err
	}
	if s.Queue == nil {
		return "", appErrors.NewConfigurationError("queue", "no batch queue configured")
	}
	job := model.BatchJob{ID: uuid.NewString(), Request: req, EnqueuedAt: s.now()}
	topic := s.QueueTopic
	if topic == "" {
		topic = queue.TopicBatchSends
	}
	if err := s.Queue.Publish(ctx, topic, job); err != nil {
		return "", appErrors.NewTransportError("enqueue batch", err)
	}
	s.logger().Info("batch enqueued", zap.String("job_id", job.ID), zap.String("topic", topic))
	return job.ID, nil
}

// MarkReplied records a manually asserted reply against the recipient's
// most recent outbound record.
func (s *OutreachService) MarkReplied(ctx context.Context, recipientID, note string) (*model.InboundReply, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, appErrors.NewValidationError("recipient_id", "is required")
	}
	latest, err := s.OutboundRepo.LatestForRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reply := &model.InboundReply{
		ID:                   uuid.NewString(),
		CorrelatedOutboundID: latest.ID,
		RecipientID:          recipientID,
		FromAddress:          latest.RecipientAddress,
		Subject:              latest.Subject,
		Body:                 note,
		ReceivedAt:           now,
		Manual:               true,
		CreatedAt:            now,
	}
	if err := s.ReplyRepo.Create(ctx, reply); err != nil {
		return nil, err
	}
	s.logger().Info("manual reply recorded", zap.String("recipient_id", recipientID), zap.String("outbound_id", latest.ID))
	return reply, nil
}

func (s *OutreachService) ListOutbound(ctx context.Context, recipientID string, limit int) ([]model.OutboundRecord, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, appErrors.NewValidationError("recipient_id", "is required")
	}
	return s.OutboundRepo.ListByRecipient(ctx, recipientID, limit)
}

func (s *OutreachService) ListReplies(ctx context.Context, filter model.ReplyFilter) ([]model.InboundReply, error) {
	return s.ReplyRepo.List(ctx, filter)
}

// PollInbox runs a single operator-triggered poll.
func (s *OutreachService) PollInbox(ctx context.Context, opts PollOptions) (*model.PollResult, error) {
	return s.Poller.Poll(ctx, opts)
}

func (s *OutreachService) CountInbox(ctx context.Context, subject string, since *time.Time, includeRead bool) (int, error) {
	return s.Poller.CountBySubject(ctx, subject, since, includeRead)
}

func validateBatch(req model.BatchRequest) error {
	if strings.TrimSpace(req.SubjectTemplate) == "" {
		return appErrors.NewValidationError("subject_template", "cannot be empty")
	}
	if strings.TrimSpace(req.BodyTemplate) == "" && strings.TrimSpace(req.HTMLTemplate) == "" {
		return appErrors.NewValidationError("body_template", "cannot be empty")
	}
	if len(req.Filter.IDs) == 0 && req.Filter.Status == "" {
		return appErrors.NewValidationError("filter", "contact_ids or status is required")
	}
	return nil
}

// contactData is the placeholder map for a contact. Metadata keys never
// shadow the built-in ones.
func contactData(c model.Contact) map[string]string {
	data := make(map[string]string, len(c.Metadata)+6)
	for k, v := range c.Metadata {
		data[k] = v
	}
	firstName := c.DisplayName
	if fields := strings.Fields(c.DisplayName); len(fields) > 0 {
		firstName = fields[0]
	}
	data["name"] = c.DisplayName
	data["first_name"] = firstName
	data["email"] = c.Address
	data["status"] = c.Status
	data["country"] = c.Country
	data["id"] = c.ID
	return data
}

func (s *OutreachService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *OutreachService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
