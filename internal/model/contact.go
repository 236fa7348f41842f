// internal/model/contact.go
package model

import "time"

// Contact is a CRM record that outreach can be addressed to.
type Contact struct {
	ID          string            `db:"id" json:"id"`
	DisplayName string            `db:"display_name" json:"display_name"`
	Address     string            `db:"address" json:"address"`
	Status      string            `db:"status" json:"status"`
	Country     string            `db:"country" json:"country"`
	Score       *int              `db:"score" json:"score,omitempty"`
	Metadata    map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// ContactFilter narrows fetchContacts. Empty fields are ignored.
type ContactFilter struct {
	IDs    []string `json:"ids,omitempty"`
	Status string   `json:"status,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Recipient converts the contact into a dispatch recipient.
func (c Contact) Recipient() Recipient {
	return Recipient{
		ID:       c.ID,
		Name:     c.DisplayName,
		Address:  c.Address,
		Metadata: c.Metadata,
	}
}
