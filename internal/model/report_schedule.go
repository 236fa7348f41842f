// internal/model/report_schedule.go
package model

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

const (
	ReportLogStatusSent   = "sent"
	ReportLogStatusFailed = "failed"
)

const DefaultTopN = 10

// ReportScheduleConfig is one recurring report subscription.
// LastSentAt is the only field the scheduler writes.
type ReportScheduleConfig struct {
	ID                   string     `db:"id" json:"id"`
	RecipientAddress     string     `db:"recipient_address" json:"recipient_address"`
	RecipientName        string     `db:"recipient_name" json:"recipient_name,omitempty"`
	Frequency            string     `db:"frequency" json:"frequency"`
	TimeHour             int        `db:"time_hour" json:"time_hour"`
	TimeMinute           int        `db:"time_minute" json:"time_minute"`
	Timezone             string     `db:"timezone" json:"timezone"`
	DayOfWeek            *int       `db:"day_of_week" json:"day_of_week,omitempty"`   // 0 = Sunday
	DayOfMonth           *int       `db:"day_of_month" json:"day_of_month,omitempty"` // 1..28
	Enabled              bool       `db:"enabled" json:"enabled"`
	IncludeStats         bool       `db:"include_stats" json:"include_stats"`
	IncludeNewContacts   bool       `db:"include_new_contacts" json:"include_new_contacts"`
	IncludeEmailActivity bool       `db:"include_email_activity" json:"include_email_activity"`
	IncludeTopContacts   bool       `db:"include_top_contacts" json:"include_top_contacts"`
	TopN                 int        `db:"top_n" json:"top_n"`
	LastSentAt           *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks the operator-facing invariants and normalizes the recipient address.
func (c *ReportScheduleConfig) Validate() error {
	c.RecipientAddress = NormalizeAddress(c.RecipientAddress)
	if c.RecipientAddress == "" || !strings.Contains(c.RecipientAddress, "@") {
		return appErrors.NewValidationError("recipient_address", "must be an email address")
	}
	if c.TimeHour < 0 || c.TimeHour > 23 {
		return appErrors.NewValidationError("time_hour", "must be between 0 and 23")
	}
	if c.TimeMinute < 0 || c.TimeMinute > 59 {
		return appErrors.NewValidationError("time_minute", "must be between 0 and 59")
	}
	if strings.TrimSpace(c.Timezone) == "" {
		return appErrors.NewValidationError("timezone", "is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return appErrors.NewValidationError("timezone", "unknown IANA zone "+c.Timezone)
	}
	if c.TopN < 0 {
		return appErrors.NewValidationError("top_n", "must not be negative")
	}

	switch c.Frequency {
	case FrequencyDaily:
		c.DayOfWeek = nil
		c.DayOfMonth = nil
	case FrequencyWeekly:
		if c.DayOfWeek == nil {
			return appErrors.NewValidationError("day_of_week", "is required for weekly reports")
		}
		if *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return appErrors.NewValidationError("day_of_week", "must be between 0 (Sunday) and 6 (Saturday)")
		}
		c.DayOfMonth = nil
	case FrequencyMonthly:
		if c.DayOfMonth == nil {
			return appErrors.NewValidationError("day_of_month", "is required for monthly reports")
		}
		// 29..31 do not exist in every month
		if *c.DayOfMonth < 1 || *c.DayOfMonth > 28 {
			return appErrors.NewValidationError("day_of_month", "must be between 1 and 28")
		}
		c.DayOfWeek = nil
	default:
		return appErrors.NewValidationError("frequency", "must be daily, weekly or monthly")
	}
	return nil
}

// Location returns the config's time zone, falling back to UTC.
func (c *ReportScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReportDispatchLog is an append-only audit row for one scheduled send attempt.
type ReportDispatchLog struct {
	ID               string         `db:"id" json:"id"`
	ConfigID         string         `db:"config_id" json:"config_id"`
	RecipientAddress string         `db:"recipient_address" json:"recipient_address"`
	Frequency        string         `db:"frequency" json:"frequency"`
	PeriodStart      time.Time      `db:"period_start" json:"period_start"`
	PeriodEnd        time.Time      `db:"period_end" json:"period_end"`
	Status           string         `db:"status" json:"status"`
	ErrorDetail      *string        `db:"error_detail" json:"error_detail,omitempty"`
	StatsSummary     map[string]any `db:"stats_summary" json:"stats_summary,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// SweepResult summarizes one scheduler tick.
type SweepResult struct {
	Evaluated int      `json:"evaluated"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Busy      int      `json:"busy"`
	SentIDs   []string `json:"sent_ids,omitempty"`
}
