// internal/repository/outbound_record_repository.go
package repository

import (
	"context"
	"database/sql"
	"strings"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

// OutboundRecordRepositoryInterface is the outbound half of the message store.
type OutboundRecordRepositoryInterface interface {
	Create(ctx context.Context, rec *model.OutboundRecord) error
	GetByID(ctx context.Context, id string) (*model.OutboundRecord, error)
	// FindByProviderMessageID matches ignoring enclosing angle brackets.
	FindByProviderMessageID(ctx context.Context, messageID string) (*model.OutboundRecord, error)
	// FindByProviderMessageIDContaining returns the newest sent record whose id contains fragment.
	FindByProviderMessageIDContaining(ctx context.Context, fragment string) (*model.OutboundRecord, error)
	// ListSent returns sent records, newest first.
	ListSent(ctx context.Context, limit int) ([]model.OutboundRecord, error)
	LatestForRecipient(ctx context.Context, recipientID string) (*model.OutboundRecord, error)
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]model.OutboundRecord, error)
}

var _ OutboundRecordRepositoryInterface = (*OutboundRecordRepository)(nil)

type OutboundRecordRepository struct {
	DB *sql.DB
}

const outboundColumns = `id, recipient_id, recipient_address, subject, provider_message_id, sent_at, status, error_detail`

func scanOutbound(row interface{ Scan(...any) error }) (*model.OutboundRecord, error) {
	var rec model.OutboundRecord
	var providerID, errorDetail sql.NullString
	if err := row.Scan(
		&rec.ID,
		&rec.RecipientID,
		&rec.RecipientAddress,
		&rec.Subject,
		&providerID,
		&rec.SentAt,
		&rec.Status,
		&errorDetail,
	); err != nil {
		return nil, err
	}
	if providerID.Valid {
		rec.ProviderMessageID = &providerID.String
	}
	if errorDetail.Valid {
		rec.ErrorDetail = &errorDetail.String
	}
	return &rec, nil
}

// Create inserts a new outbound record. Records are never updated afterwards.
func (r *OutboundRecordRepository) Create(ctx context.Context, rec *model.OutboundRecord) error {
	query := `
		INSERT INTO outbound_records
		(id, recipient_id, recipient_address, subject, provider_message_id, sent_at, status, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.RecipientID,
		rec.RecipientAddress,
		rec.Subject,
		rec.ProviderMessageID,
		rec.SentAt,
		rec.Status,
		rec.ErrorDetail,
	)
	return err
}

func (r *OutboundRecordRepository) GetByID(ctx context.Context, id string) (*model.OutboundRecord, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbound_records WHERE id = $1`
	rec, err := scanOutbound(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("outbound record", id)
	}
	return rec, err
}

func (r *OutboundRecordRepository) FindByProviderMessageID(ctx context.Context, messageID string) (*model.OutboundRecord, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_records
		WHERE status = 'sent' AND TRIM(BOTH '<>' FROM provider_message_id) = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`
	rec, err := scanOutbound(r.DB.QueryRowContext(ctx, query, trimBrackets(messageID)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *OutboundRecordRepository) FindByProviderMessageIDContaining(ctx context.Context, fragment string) (*model.OutboundRecord, error) {
	fragment = trimBrackets(fragment)
	if fragment == "" {
		return nil, nil
	}
	// strpos avoids treating % and _ in message ids as LIKE wildcards
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_records
		WHERE status = 'sent' AND provider_message_id IS NOT NULL AND strpos(provider_message_id, $1) > 0
		ORDER BY sent_at DESC
		LIMIT 1
	`
	rec, err := scanOutbound(r.DB.QueryRowContext(ctx, query, fragment))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *OutboundRecordRepository) ListSent(ctx context.Context, limit int) ([]model.OutboundRecord, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_records
		WHERE status = 'sent'
		ORDER BY sent_at DESC
		LIMIT $1
	`
	return r.list(ctx, query, clampLimit(limit, 1000))
}

func (r *OutboundRecordRepository) LatestForRecipient(ctx context.Context, recipientID string) (*model.OutboundRecord, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_records
		WHERE recipient_id = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`
	rec, err := scanOutbound(r.DB.QueryRowContext(ctx, query, recipientID))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("outbound record for recipient", recipientID)
	}
	return rec, err
}

func (r *OutboundRecordRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]model.OutboundRecord, error) {
	query := `
		SELECT ` + outboundColumns + `
		FROM outbound_records
		WHERE recipient_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, recipientID, clampLimit(limit, 200))
}

func (r *OutboundRecordRepository) list(ctx context.Context, query string, args ...any) ([]model.OutboundRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.OutboundRecord{}
	for rows.Next() {
		rec, err := scanOutbound(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func trimBrackets(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
