// internal/model/inbound_reply.go
package model

import "time"

// InboundReply is an inbound message linked to the outbound record that provoked it.
type InboundReply struct {
	ID                   string    `db:"id" json:"id"`
	CorrelatedOutboundID string    `db:"correlated_outbound_id" json:"correlated_outbound_id"`
	RecipientID          string    `db:"recipient_id" json:"recipient_id"`
	FromAddress          string    `db:"from_address" json:"from_address"`
	FromName             *string   `db:"from_name" json:"from_name,omitempty"`
	Subject              string    `db:"subject" json:"subject"`
	Body                 string    `db:"body" json:"body"`
	HTMLBody             string    `db:"html_body" json:"html_body,omitempty"`
	ReceivedAt           time.Time `db:"received_at" json:"received_at"`
	ProviderMessageID    *string   `db:"provider_message_id" json:"provider_message_id,omitempty"`
	InReplyToHeader      *string   `db:"in_reply_to" json:"in_reply_to,omitempty"`
	ReferencesHeader     *string   `db:"references_header" json:"references_header,omitempty"`
	Manual               bool      `db:"manual" json:"manual"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// ReplyFilter is used when listing replies.
type ReplyFilter struct {
	RecipientID string
	OutboundID  string
	Limit       int
}
