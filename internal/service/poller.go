// internal/service/poller.go
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/mail"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
)

// Mailbox is the remote inbox the poller reads.
type Mailbox interface {
	CheckConfig() error
	// FetchUnseen returns up to max unread messages above afterUID, oldest first.
	FetchUnseen(ctx context.Context, since *time.Time, afterUID uint32, max int) ([]model.RawMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	CountBySubject(ctx context.Context, subject string, since *time.Time, includeRead bool) (int, error)
}

// PollOptions narrows one poll. Zero values mean no filter.
type PollOptions struct {
	Since         *time.Time `json:"since,omitempty"`
	MaxMessages   int        `json:"max_messages,omitempty"`
	SubjectFilter string     `json:"subject_filter,omitempty"`
}

const defaultPollMaxMessages = 50

// Poller fetches unread inbox messages and hands each to the Correlator.
type Poller struct {
	Mailbox    Mailbox
	Correlator *Correlator
	ReplyRepo  repository.InboundReplyRepositoryInterface
	Logger     *zap.Logger
	// Parse defaults to mail.Parse.
	Parse func(model.RawMessage) (*model.ParsedMessage, error)
	// Timeout bounds a whole poll; unprocessed messages stay unread for the next one.
	Timeout     time.Duration
	MaxMessages int
	// Lookback is the rolling window the poll loop passes as Since.
	Lookback time.Duration
	// MarkSeen flags every consumed message as read. Messages hidden by a
	// subject filter or hit by a store error stay unread.
	MarkSeen bool
	Now      func() time.Time

	mu sync.Mutex
	// checkpoint is the highest UID below which every message was consumed.
	checkpoint uint32
}

// Poll runs one fetch-parse-correlate pass.
func (p *Poller) Poll(ctx context.Context, opts PollOptions) (*model.PollResult, error) {
	if err := p.Mailbox.CheckConfig(); err != nil {
		return nil, err
	}
	logger := p.logger()
	parse := p.Parse
	if parse == nil {
		parse = mail.Parse
	}
	max := opts.MaxMessages
	if max <= 0 {
		max = p.MaxMessages
	}
	if max <= 0 {
		max = defaultPollMaxMessages
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	filter := strings.ToLower(strings.TrimSpace(opts.SubjectFilter))
	var after uint32
	if filter == "" {
		after = p.lastCheckpoint()
	}

	result := &model.PollResult{}
	raws, err := p.Mailbox.FetchUnseen(ctx, opts.Since, after, max)
	if err != nil {
		if ctx.Err() != nil {
			result.TimedOut = true
			logger.Warn("inbox fetch timed out", zap.Error(err))
			return result, nil
		}
		return nil, err
	}
	result.Fetched = len(raws)

	var seen []uint32
	checkpoint, blocked := after, false
	consume := func(uid uint32) {
		seen = append(seen, uid)
		if !blocked && uid > checkpoint {
			checkpoint = uid
		}
	}

	for _, raw := range raws {
		if ctx.Err() != nil {
			result.TimedOut = true
			break
		}

		msg, err := parse(raw)
		if err != nil {
			result.ParseErrors++
			logger.Warn("skipping unparseable message", zap.Uint32("uid", raw.UID), zap.Error(err))
			consume(raw.UID)
			continue
		}
		if msg.FromAddress == "" {
			result.NoSender++
			logger.Warn("skipping message without sender", zap.Uint32("uid", raw.UID), zap.String("subject", msg.Subject))
			consume(raw.UID)
			continue
		}
		// IMAP SINCE is day granular
		if opts.Since != nil && !msg.Date.IsZero() && msg.Date.Before(*opts.Since) {
			result.Filtered++
			consume(raw.UID)
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(msg.Subject), filter) {
			result.Filtered++
			continue
		}
		result.Processed++

		if msg.MessageID != "" {
			exists, err := p.ReplyRepo.ExistsByProviderMessageID(ctx, msg.MessageID)
			if err != nil {
				logger.Error("reply lookup failed", zap.String("message_id", msg.MessageID), zap.Error(err))
				blocked = true
				continue
			}
			if exists {
				result.Duplicates++
				consume(raw.UID)
				continue
			}
		}

		reply, err := p.Correlator.Correlate(ctx, msg)
		switch {
		case errors.Is(err, appErrors.ErrDuplicateReply):
			result.Duplicates++
			consume(raw.UID)
		case err != nil:
			logger.Error("correlation failed", zap.String("message_id", msg.MessageID), zap.Error(err))
			blocked = true
		case reply == nil:
			result.Unmatched++
			consume(raw.UID)
		default:
			result.Matched++
			consume(raw.UID)
		}
	}
	if filter == "" {
		p.advanceCheckpoint(checkpoint)
	}

	if p.MarkSeen && len(seen) > 0 {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := p.Mailbox.MarkSeen(markCtx, seen); err != nil {
			logger.Warn("failed to mark messages seen", zap.Int("count", len(seen)), zap.Error(err))
		}
		cancel()
	}

	logger.Info("inbox poll finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("processed", result.Processed),
		zap.Int("matched", result.Matched),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("duplicates", result.Duplicates),
		zap.Bool("timed_out", result.TimedOut),
	)
	return result, nil
}

// CountBySubject counts inbox messages whose subject contains subject
// without creating any reply.
func (p *Poller) CountBySubject(ctx context.Context, subject string, since *time.Time, includeRead bool) (int, error) {
	if strings.TrimSpace(subject) == "" {
		return 0, appErrors.NewValidationError("subject", "is required")
	}
	if err := p.Mailbox.CheckConfig(); err != nil {
		return 0, err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return p.Mailbox.CountBySubject(ctx, subject, since, includeRead)
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	logger := p.logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("poll loop started", zap.Duration("interval", interval))
	for {
		var opts PollOptions
		if p.Lookback > 0 {
			since := p.now().Add(-p.Lookback)
			opts.Since = &since
		}
		if _, err := p.Poll(ctx, opts); err != nil && ctx.Err() == nil {
			logger.Error("inbox poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) lastCheckpoint() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoint
}

func (p *Poller) advanceCheckpoint(uid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uid > p.checkpoint {
		p.checkpoint = uid
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Poller) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
