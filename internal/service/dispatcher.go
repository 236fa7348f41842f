// internal/service/dispatcher.go
package service

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
)

// Sender is the remote send endpoint.
type Sender interface {
	// CheckConfig fails fast when credentials are missing.
	CheckConfig() error
	// Send returns the provider message id assigned to the accepted message.
	Send(ctx context.Context, msg model.OutgoingMessage) (string, error)
}

// ContentResolver produces the subject and body for one recipient.
type ContentResolver func(r model.Recipient) (model.Content, error)

const recordWriteTimeout = 10 * time.Second

// Dispatcher sends one message per recipient and records every attempt.
type Dispatcher struct {
	Sender       Sender
	OutboundRepo repository.OutboundRecordRepositoryInterface
	Logger       *zap.Logger
	Concurrency  int
	SendTimeout  time.Duration
	Now          func() time.Time
}

type dispatchJob struct {
	recipient model.Recipient
	address   string
	content   model.Content
}

type dispatchOutcome struct {
	record model.OutboundRecord
	err    error
}

// Dispatch sends to every usable recipient. Recipients without a usable
// address, duplicates and render failures are skipped and never reach the
// transport. A transport failure for one recipient does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []model.Recipient, resolve ContentResolver) (*model.BatchResult, error) {
	if err := d.Sender.CheckConfig(); err != nil {
		return nil, err
	}
	logger := d.logger()

	result := &model.BatchResult{
		Skipped:     []model.SkippedRecipient{},
		Failures:    []model.SendFailure{},
		OutboundIDs: []string{},
	}

	seen := make(map[string]bool, len(recipients))
	jobs := make([]dispatchJob, 0, len(recipients))
	for _, r := range recipients {
		address := model.NormalizeAddress(r.Address)
		skip := func(reason string) {
			result.Skipped = append(result.Skipped, model.SkippedRecipient{RecipientID: r.ID, Address: address, Reason: reason})
		}
		switch {
		case address == "":
			skip(model.SkipReasonMissingAddress)
			continue
		case !validAddress(address):
			skip(model.SkipReasonInvalidAddress)
			continue
		case seen[address]:
			skip(model.SkipReasonDuplicateAddress)
			continue
		}
		seen[address] = true

		content, err := resolve(r)
		if err != nil {
			logger.Warn("render failed, recipient skipped", zap.String("recipient_id", r.ID), zap.Error(err))
			skip(model.SkipReasonRenderFailed)
			continue
		}
		jobs = append(jobs, dispatchJob{recipient: r, address: address, content: content})
	}

	outcomes := make([]dispatchOutcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(d.concurrency())
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			outcomes[i] = d.sendOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		result.Attempted++
		result.OutboundIDs = append(result.OutboundIDs, o.record.ID)
		if o.err == nil {
			result.Sent++
			continue
		}
		result.Failures = append(result.Failures, model.SendFailure{
			RecipientID: jobs[i].recipient.ID,
			Address:     jobs[i].address,
			Subject:     jobs[i].content.Subject,
			OutboundID:  o.record.ID,
			Error:       o.err.Error(),
		})
	}

	logger.Info("dispatch finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("sent", result.Sent),
		zap.Int("failed", len(result.Failures)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, job dispatchJob) dispatchOutcome {
	sendCtx := ctx
	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.SendTimeout)
		defer cancel()
	}

	providerID, err := d.Sender.Send(sendCtx, model.OutgoingMessage{
		To:       job.address,
		ToName:   job.recipient.Name,
		Subject:  job.content.Subject,
		TextBody: job.content.Body,
		HTMLBody: job.content.HTMLBody,
	})

	rec := model.OutboundRecord{
		ID:               uuid.NewString(),
		RecipientID:      job.recipient.ID,
		RecipientAddress: job.address,
		Subject:          job.content.Subject,
		SentAt:           d.now(),
	}
	if err != nil {
		detail := err.Error()
		rec.Status = model.OutboundStatusFailed
		rec.ErrorDetail = &detail
	} else {
		rec.Status = model.OutboundStatusSent
		rec.ProviderMessageID = &providerID
	}

	// a send that timed out with ctx must still be recorded
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteTimeout)
	defer cancel()
	if werr := d.OutboundRepo.Create(writeCtx, &rec); werr != nil {
		d.logger().Error("failed to record outbound attempt",
			zap.String("recipient_id", rec.RecipientID),
			zap.String("status", rec.Status),
			zap.Error(werr),
		)
	}

	if err != nil {
		d.logger().Warn("send failed",
			zap.String("recipient_id", rec.RecipientID),
			zap.String("address", rec.RecipientAddress),
			zap.Error(err),
		)
	}
	return dispatchOutcome{record: rec, err: err}
}

func validAddress(address string) bool {
	parsed, err := mail.ParseAddress(address)
	return err == nil && parsed.Address == address
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency < 1 {
		return 1
	}
	return d.Concurrency
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
