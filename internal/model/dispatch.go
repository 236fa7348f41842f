// internal/model/dispatch.go
package model

import "time"

const (
	SkipReasonMissingAddress   = "missing_address"
	SkipReasonInvalidAddress   = "invalid_address"
	SkipReasonDuplicateAddress = "duplicate_address"
	SkipReasonRenderFailed     = "render_failed"
)

// Recipient is one target of a dispatch batch.
type Recipient struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Address  string            `json:"address"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Content is the rendered subject and body for one recipient.
type Content struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body,omitempty"`
}

// SkippedRecipient never reached the transport.
type SkippedRecipient struct {
	RecipientID string `json:"recipient_id"`
	Address     string `json:"address,omitempty"`
	Reason      string `json:"reason"`
}

// SendFailure is a recipient whose send reached the transport and failed.
type SendFailure struct {
	RecipientID string `json:"recipient_id"`
	Address     string `json:"address"`
	Subject     string `json:"subject,omitempty"`
	OutboundID  string `json:"outbound_id"`
	Error       string `json:"error"`
}

// BatchResult always satisfies Attempted == Sent + len(Failures).
type BatchResult struct {
	Attempted   int                `json:"attempted"`
	Sent        int                `json:"sent"`
	Skipped     []SkippedRecipient `json:"skipped"`
	Failures    []SendFailure      `json:"failures"`
	OutboundIDs []string           `json:"outbound_ids"`
}

// BatchRequest is an operator-triggered send to a set of contacts.
type BatchRequest struct {
	Filter          ContactFilter `json:"filter"`
	SubjectTemplate string        `json:"subject_template"`
	BodyTemplate    string        `json:"body_template"`
	HTMLTemplate    string        `json:"html_template,omitempty"`
	RequestedBy     string        `json:"requested_by,omitempty"`
}

// BatchJob is the queued form of a BatchRequest.
type BatchJob struct {
	ID         string       `json:"id"`
	Request    BatchRequest `json:"request"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}
