// internal/service/correlator.go
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
)

const defaultSubjectScanLimit = 500

var replyPrefixPattern = regexp.MustCompile(`(?i)^(\s*re\s*:\s*)+`)

// Correlator links inbound messages to the outbound record that provoked
// them. Header threading is tried first, then the subject heuristic.
type Correlator struct {
	OutboundRepo repository.OutboundRecordRepositoryInterface
	ReplyRepo    repository.InboundReplyRepositoryInterface
	Logger       *zap.Logger
	// SubjectScanLimit bounds how many recent sent records the subject tier compares.
	SubjectScanLimit int
	Now              func() time.Time
}

// Correlate returns the persisted reply, or nil when nothing matched.
// A message already recorded returns appErrors.ErrDuplicateReply.
func (c *Correlator) Correlate(ctx context.Context, msg *model.ParsedMessage) (*model.InboundReply, error) {
	logger := c.logger()

	match, tier, err := c.Match(ctx, msg)
	if err != nil {
		return nil, err
	}
	if match == nil {
		logger.Info("inbound message did not correlate",
			zap.String("message_id", msg.MessageID),
			zap.String("from", msg.FromAddress),
			zap.String("subject", msg.Subject),
		)
		return nil, nil
	}

	reply := &model.InboundReply{
		ID:                   uuid.NewString(),
		CorrelatedOutboundID: match.ID,
		RecipientID:          match.RecipientID,
		FromAddress:          msg.FromAddress,
		FromName:             optional(msg.FromName),
		Subject:              msg.Subject,
		Body:                 msg.TextBody,
		HTMLBody:             msg.HTMLBody,
		ReceivedAt:           msg.Date,
		ProviderMessageID:    optional(msg.MessageID),
		InReplyToHeader:      optional(bracketed(msg.InReplyTo)),
		ReferencesHeader:     optional(joinBracketed(msg.References)),
		CreatedAt:            c.now(),
	}
	if reply.ReceivedAt.IsZero() {
		reply.ReceivedAt = reply.CreatedAt
	}

	if err := c.ReplyRepo.Create(ctx, reply); err != nil {
		return nil, err
	}
	logger.Info("inbound reply recorded",
		zap.String("reply_id", reply.ID),
		zap.String("outbound_id", match.ID),
		zap.String("recipient_id", match.RecipientID),
		zap.String("tier", tier),
	)
	return reply, nil
}

// Match finds the outbound record msg replies to without persisting anything.
// tier is "header" or "subject".
func (c *Correlator) Match(ctx context.Context, msg *model.ParsedMessage) (*model.OutboundRecord, string, error) {
	for _, id := range CandidateMessageIDs(msg) {
		rec, err := c.OutboundRepo.FindByProviderMessageID(ctx, id)
		if err != nil {
			return nil, "", fmt.Errorf("lookup message id %s: %w", id, err)
		}
		if rec == nil {
			rec, err = c.OutboundRepo.FindByProviderMessageIDContaining(ctx, id)
			if err != nil {
				return nil, "", fmt.Errorf("lookup message id fragment %s: %w", id, err)
			}
		}
		if rec != nil && !model.IsReportRecipient(rec.RecipientID) {
			return rec, "header", nil
		}
	}

	subject := StripReplyPrefix(msg.Subject)
	if subject == "" {
		return nil, "", nil
	}
	limit := c.SubjectScanLimit
	if limit <= 0 {
		limit = defaultSubjectScanLimit
	}
	sent, err := c.OutboundRepo.ListSent(ctx, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list sent records: %w", err)
	}
	for i := range sent {
		if model.IsReportRecipient(sent[i].RecipientID) {
			continue
		}
		if SubjectsMatch(subject, sent[i].Subject) {
			return &sent[i], "subject", nil
		}
	}
	return nil, "", nil
}

// CandidateMessageIDs returns In-Reply-To followed by References, without
// angle brackets and without duplicates.
func CandidateMessageIDs(msg *model.ParsedMessage) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(raw string) {
		id := strings.Trim(strings.TrimSpace(raw), "<>")
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	add(msg.InReplyTo)
	for _, ref := range msg.References {
		add(ref)
	}
	return ids
}

// StripReplyPrefix removes any number of leading "Re:" markers.
func StripReplyPrefix(subject string) string {
	return strings.TrimSpace(replyPrefixPattern.ReplaceAllString(subject, ""))
}

// SubjectsMatch reports case-insensitive containment in either direction.
func SubjectsMatch(inbound, outbound string) bool {
	a := strings.ToLower(strings.TrimSpace(inbound))
	b := strings.ToLower(strings.TrimSpace(outbound))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func bracketed(id string) string {
	if id == "" {
		return ""
	}
	return "<" + id + ">"
}

func joinBracketed(ids []string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, bracketed(id))
	}
	return strings.Join(out, " ")
}

func (c *Correlator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Correlator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
