// internal/repository/contact_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

// ContactRepositoryInterface defines methods used by service
type ContactRepositoryInterface interface {
	FetchContacts(ctx context.Context, filter model.ContactFilter) ([]model.Contact, error)
	GetByID(ctx context.Context, id string) (*model.Contact, error)
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, display_name, address, status, country, score, metadata, created_at`

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	var score sql.NullInt64
	var metadata []byte
	if err := row.Scan(&c.ID, &c.DisplayName, &c.Address, &c.Status, &c.Country, &score, &metadata, &c.CreatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		c.Score = &v
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode contact metadata: %w", err)
		}
	}
	return &c, nil
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("contact", id)
	}
	return c, err
}

// FetchContacts lists contacts matching the filter in creation order.
func (r *ContactRepository) FetchContacts(ctx context.Context, filter model.ContactFilter) ([]model.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE (cardinality($1::text[]) = 0 OR id = ANY($1))
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`
	ids := filter.IDs
	if ids == nil {
		ids = []string{}
	}
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids), filter.Status, clampLimit(filter.Limit, 5000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}
