// internal/service/schedule.go
package service

import (
	"time"

	"github.com/unclebandit/outreach-service/internal/model"
)

// Skip reasons returned by ShouldSend.
const (
	SkipDisabled         = "disabled"
	SkipNotTime          = "not_time"
	SkipWrongWeekday     = "wrong_weekday"
	SkipWrongDayOfMonth  = "wrong_day_of_month"
	SkipAlreadySentDay   = "already_sent_today"
	SkipAlreadySentWeek  = "already_sent_within_week"
	SkipAlreadySentMonth = "already_sent_this_month"
	SkipUnknownFrequency = "unknown_frequency"
)

// weeklyIdempotenceDays counts local calendar days, not elapsed time.
const weeklyIdempotenceDays = 7

// ShouldSend evaluates cfg at now in the config's time zone. It returns
// false with a reason unless the local time is exactly the configured
// hour:minute on a matching day and no report went out for this period yet.
func ShouldSend(cfg *model.ReportScheduleConfig, now time.Time) (bool, string) {
	loc := cfg.Location()
	local := now.In(loc)

	if local.Hour() != cfg.TimeHour || local.Minute() != cfg.TimeMinute {
		return false, SkipNotTime
	}
	if !cfg.Enabled {
		return false, SkipDisabled
	}

	switch cfg.Frequency {
	case model.FrequencyDaily:
	case model.FrequencyWeekly:
		if cfg.DayOfWeek == nil || int(local.Weekday()) != *cfg.DayOfWeek {
			return false, SkipWrongWeekday
		}
	case model.FrequencyMonthly:
		if cfg.DayOfMonth == nil || local.Day() != *cfg.DayOfMonth {
			return false, SkipWrongDayOfMonth
		}
	default:
		return false, SkipUnknownFrequency
	}

	if cfg.LastSentAt == nil {
		return true, ""
	}
	last := cfg.LastSentAt.In(loc)
	switch cfg.Frequency {
	case model.FrequencyDaily:
		if sameDate(last, local) {
			return false, SkipAlreadySentDay
		}
	case model.FrequencyWeekly:
		if daysBetween(last, local) < weeklyIdempotenceDays {
			return false, SkipAlreadySentWeek
		}
	case model.FrequencyMonthly:
		if last.Year() == local.Year() && last.Month() == local.Month() {
			return false, SkipAlreadySentMonth
		}
	}
	return true, ""
}

// PeriodBounds returns the local period containing now. end is the last
// millisecond of the period: day, Monday-to-Sunday week, or calendar month.
func PeriodBounds(frequency string, now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var next time.Time
	switch frequency {
	case model.FrequencyWeekly:
		sinceMonday := (int(local.Weekday()) + 6) % 7
		start = midnight.AddDate(0, 0, -sinceMonday)
		next = start.AddDate(0, 0, 7)
	case model.FrequencyMonthly:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 1, 0)
	default:
		start = midnight
		next = start.AddDate(0, 0, 1)
	}
	return start, next.Add(-time.Millisecond)
}

// daysBetween counts calendar days from a's local date to b's local date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
