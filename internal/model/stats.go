// internal/model/stats.go
package model

import "time"

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

type TopContact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Score       int    `json:"score"`
	Status      string `json:"status"`
	Country     string `json:"country"`
}

// Stats is the aggregate used to populate a report body.
type Stats struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	ContactsTotal       int            `json:"contacts_total"`
	NewContactsInPeriod int            `json:"new_contacts_in_period"`
	ContactsByStatus    map[string]int `json:"contacts_by_status"`
	ContactsByCountry   []CountryCount `json:"contacts_by_country"`

	SentTotal       int        `json:"sent_total"`
	SentInPeriod    int        `json:"sent_in_period"`
	RepliesTotal    int        `json:"replies_total"`
	RepliesInPeriod int        `json:"replies_in_period"`
	ReplyRate       float64    `json:"reply_rate"`
	UniqueContacted int        `json:"unique_contacted"`
	SentByDay       []DayCount `json:"sent_by_day"`

	TopContacts []TopContact `json:"top_contacts"`
}

// Summary is the compact form stored with a ReportDispatchLog.
func (s *Stats) Summary() map[string]any {
	return map[string]any{
		"contacts_total":    s.ContactsTotal,
		"contacts_new":      s.NewContactsInPeriod,
		"sent_in_period":    s.SentInPeriod,
		"replies_in_period": s.RepliesInPeriod,
		"reply_rate":        s.ReplyRate,
	}
}
