// internal/repository/inbound_reply_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

const uniqueViolation = "23505"

// InboundReplyRepositoryInterface is the reply half of the message store.
type InboundReplyRepositoryInterface interface {
	// Create returns appErrors.ErrDuplicateReply when ProviderMessageID is already recorded.
	Create(ctx context.Context, reply *model.InboundReply) error
	ExistsByProviderMessageID(ctx context.Context, messageID string) (bool, error)
	List(ctx context.Context, filter model.ReplyFilter) ([]model.InboundReply, error)
}

var _ InboundReplyRepositoryInterface = (*InboundReplyRepository)(nil)

type InboundReplyRepository struct {
	DB *sql.DB
}

func (r *InboundReplyRepository) Create(ctx context.Context, reply *model.InboundReply) error {
	query := `
		INSERT INTO inbound_replies
		(id, correlated_outbound_id, recipient_id, from_address, from_name, subject, body, html_body,
		 received_at, provider_message_id, in_reply_to, references_header, manual, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.DB.ExecContext(ctx, query,
		reply.ID,
		reply.CorrelatedOutboundID,
		reply.RecipientID,
		reply.FromAddress,
		reply.FromName,
		reply.Subject,
		reply.Body,
		reply.HTMLBody,
		reply.ReceivedAt,
		reply.ProviderMessageID,
		reply.InReplyToHeader,
		reply.ReferencesHeader,
		reply.Manual,
		reply.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return appErrors.ErrDuplicateReply
	}
	return err
}

func (r *InboundReplyRepository) ExistsByProviderMessageID(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT 1 FROM inbound_replies WHERE provider_message_id = $1 LIMIT 1`
	var tmp int
	err := r.DB.QueryRowContext(ctx, query, messageID).Scan(&tmp)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *InboundReplyRepository) List(ctx context.Context, filter model.ReplyFilter) ([]model.InboundReply, error) {
	query := `
		SELECT id, correlated_outbound_id, recipient_id, from_address, from_name, subject, body, html_body,
		       received_at, provider_message_id, in_reply_to, references_header, manual, created_at
		FROM inbound_replies
		WHERE ($1 = '' OR recipient_id = $1)
		  AND ($2 = '' OR correlated_outbound_id = $2)
		ORDER BY received_at DESC
		LIMIT $3
	`
	rows, err := r.DB.QueryContext(ctx, query, filter.RecipientID, filter.OutboundID, clampLimit(filter.Limit, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	replies := []model.InboundReply{}
	for rows.Next() {
		var rep model.InboundReply
		var fromName, providerID, inReplyTo, references sql.NullString
		if err := rows.Scan(
			&rep.ID,
			&rep.CorrelatedOutboundID,
			&rep.RecipientID,
			&rep.FromAddress,
			&fromName,
			&rep.Subject,
			&rep.Body,
			&rep.HTMLBody,
			&rep.ReceivedAt,
			&providerID,
			&inReplyTo,
			&references,
			&rep.Manual,
			&rep.CreatedAt,
		); err != nil {
			return nil, err
		}
		rep.FromName = nullableString(fromName)
		rep.ProviderMessageID = nullableString(providerID)
		rep.InReplyToHeader = nullableString(inReplyTo)
		rep.ReferencesHeader = nullableString(references)
		replies = append(replies, rep)
	}
	return replies, rows.Err()
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
