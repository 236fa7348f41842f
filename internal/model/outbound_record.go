// internal/model/outbound_record.go
package model

import (
	"strings"
	"time"
)

const (
	OutboundStatusSent   = "sent"
	OutboundStatusFailed = "failed"
)

// ReportRecipientPrefix marks outbound records written by scheduled report
// sends. They are not CRM outreach.
const ReportRecipientPrefix = "report-config:"

// IsReportRecipient reports whether recipientID belongs to a scheduled report send.
func IsReportRecipient(recipientID string) bool {
	return strings.HasPrefix(recipientID, ReportRecipientPrefix)
}

// OutboundRecord is one send attempt. It is written once and never updated.
type OutboundRecord struct {
	ID                string    `db:"id" json:"id"`
	RecipientID       string    `db:"recipient_id" json:"recipient_id"`
	RecipientAddress  string    `db:"recipient_address" json:"recipient_address"`
	Subject           string    `db:"subject" json:"subject"`
	ProviderMessageID *string   `db:"provider_message_id" json:"provider_message_id,omitempty"`
	SentAt            time.Time `db:"sent_at" json:"sent_at"`
	Status            string    `db:"status" json:"status"` // sent, failed
	ErrorDetail       *string   `db:"error_detail" json:"error_detail,omitempty"`
}

// NormalizeAddress lowercases and trims an address for storage and dedup.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
