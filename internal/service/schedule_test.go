package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/service"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func dailyAtNine() *model.ReportScheduleConfig {
	return &model.ReportScheduleConfig{
		ID:               "daily",
		RecipientAddress: "manager@example.com",
		Frequency:        model.FrequencyDaily,
		TimeHour:         9,
		TimeMinute:       0,
		Timezone:         "Asia/Ho_Chi_Minh",
		Enabled:          true,
	}
}

func TestShouldSendDailyOncePerLocalDay(t *testing.T) {
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	cfg := dailyAtNine()
	nine := time.Date(2026, 3, 2, 9, 0, 0, 0, hcm)

	ok, _ := service.ShouldSend(cfg, nine)
	assert.True(t, ok)

	sentAt := nine.Add(20 * time.Second).UTC()
	cfg.LastSentAt = &sentAt

	ok, reason := service.ShouldSend(cfg, nine.Add(30*time.Second))
	assert.False(t, ok)
	assert.Equal(t, service.SkipAlreadySentDay, reason)

	ok, _ = service.ShouldSend(cfg, nine.AddDate(0, 0, 1))
	assert.True(t, ok, "next local day is due again")
}

func TestShouldSendRequiresExactMinute(t *testing.T) {
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	for _, cfg := range []*model.ReportScheduleConfig{
		dailyAtNine(),
		{Frequency: model.FrequencyWeekly, TimeHour: 9, Timezone: "Asia/Ho_Chi_Minh", DayOfWeek: intPtr(1), Enabled: true},
		{Frequency: model.FrequencyMonthly, TimeHour: 9, Timezone: "Asia/Ho_Chi_Minh", DayOfMonth: intPtr(2), Enabled: true},
	} {
		for _, minute := range []int{1, 30, 59} {
			ok, reason := service.ShouldSend(cfg, time.Date(2026, 3, 2, 9, minute, 0, 0, hcm))
			assert.False(t, ok)
			assert.Equal(t, service.SkipNotTime, reason)
		}
		ok, _ := service.ShouldSend(cfg, time.Date(2026, 3, 2, 9, 0, 59, 0, hcm))
		assert.True(t, ok, cfg.Frequency)
	}
}

func TestShouldSendUsesConfigTimezone(t *testing.T) {
	cfg := dailyAtNine()
	// 09:00 UTC is 16:00 in Ho Chi Minh City
	ok, _ := service.ShouldSend(cfg, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	ok, _ = service.ShouldSend(cfg, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	assert.True(t, ok)
}

func TestShouldSendWeekly(t *testing.T) {
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	cfg := &model.ReportScheduleConfig{
		Frequency: model.FrequencyWeekly, TimeHour: 8, TimeMinute: 30,
		Timezone: "Asia/Ho_Chi_Minh", DayOfWeek: intPtr(int(time.Monday)), Enabled: true,
	}
	monday := time.Date(2026, 3, 2, 8, 30, 0, 0, hcm)

	ok, reason := service.ShouldSend(cfg, monday.AddDate(0, 0, 1))
	assert.False(t, ok)
	assert.Equal(t, service.SkipWrongWeekday, reason)

	ok, _ = service.ShouldSend(cfg, monday)
	assert.True(t, ok)

	last := monday.Add(-6 * 24 * time.Hour)
	cfg.LastSentAt = &last
	ok, reason = service.ShouldSend(cfg, monday)
	assert.False(t, ok)
	assert.Equal(t, service.SkipAlreadySentWeek, reason)

	last = monday.AddDate(0, 0, -7)
	ok, _ = service.ShouldSend(cfg, monday)
	assert.True(t, ok)

	// last week's send landed 30s into the minute; this week's tick is 10s in
	last = monday.AddDate(0, 0, -7).Add(30 * time.Second)
	ok, reason = service.ShouldSend(cfg, monday.Add(10*time.Second))
	assert.True(t, ok, reason)
}

func TestShouldSendWeeklyAcrossDST(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	cfg := &model.ReportScheduleConfig{
		Frequency: model.FrequencyWeekly, TimeHour: 9,
		Timezone: "America/New_York", DayOfWeek: intPtr(int(time.Monday)), Enabled: true,
	}
	// clocks spring forward on 2026-03-08, so this week is 7d-1h long
	last := time.Date(2026, 3, 2, 9, 0, 0, 0, ny)
	cfg.LastSentAt = &last

	for _, sec := range []int{0, 20, 40} {
		ok, reason := service.ShouldSend(cfg, time.Date(2026, 3, 9, 9, 0, sec, 0, ny))
		assert.True(t, ok, "second %d: %s", sec, reason)
	}

	ok, reason := service.ShouldSend(cfg, time.Date(2026, 3, 2, 9, 0, 40, 0, ny))
	assert.False(t, ok)
	assert.Equal(t, service.SkipAlreadySentWeek, reason)
}

func TestShouldSendMonthly(t *testing.T) {
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	cfg := &model.ReportScheduleConfig{
		Frequency: model.FrequencyMonthly, TimeHour: 7, Timezone: "Asia/Ho_Chi_Minh",
		DayOfMonth: intPtr(1), Enabled: true,
	}
	first := time.Date(2026, 4, 1, 7, 0, 0, 0, hcm)

	ok, reason := service.ShouldSend(cfg, first.AddDate(0, 0, 1))
	assert.False(t, ok)
	assert.Equal(t, service.SkipWrongDayOfMonth, reason)

	last := first.Add(-time.Minute)
	cfg.LastSentAt = &last
	ok, reason = service.ShouldSend(cfg, first)
	assert.True(t, ok, reason)

	last = first.Add(10 * time.Second)
	ok, reason = service.ShouldSend(cfg, first.Add(30*time.Second))
	assert.False(t, ok)
	assert.Equal(t, service.SkipAlreadySentMonth, reason)
}

func TestShouldSendDisabled(t *testing.T) {
	cfg := dailyAtNine()
	cfg.Enabled = false
	ok, reason := service.ShouldSend(cfg, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, service.SkipDisabled, reason)
}

func TestPeriodBounds(t *testing.T) {
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	// Wednesday
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, hcm)

	start, end := service.PeriodBounds(model.FrequencyDaily, now, hcm)
	assertSameInstant(t, time.Date(2026, 2, 18, 0, 0, 0, 0, hcm), start)
	assertSameInstant(t, time.Date(2026, 2, 18, 23, 59, 59, 999000000, hcm), end)

	start, end = service.PeriodBounds(model.FrequencyWeekly, now, hcm)
	assertSameInstant(t, time.Date(2026, 2, 16, 0, 0, 0, 0, hcm), start)
	assertSameInstant(t, time.Date(2026, 2, 22, 23, 59, 59, 999000000, hcm), end)

	start, end = service.PeriodBounds(model.FrequencyMonthly, now, hcm)
	assertSameInstant(t, time.Date(2026, 2, 1, 0, 0, 0, 0, hcm), start)
	assertSameInstant(t, time.Date(2026, 2, 28, 23, 59, 59, 999000000, hcm), end)

	// Sunday belongs to the week that started the previous Monday
	sunday := time.Date(2026, 2, 22, 9, 0, 0, 0, hcm)
	start, _ = service.PeriodBounds(model.FrequencyWeekly, sunday, hcm)
	assertSameInstant(t, time.Date(2026, 2, 16, 0, 0, 0, 0, hcm), start)

	// the period follows the local date, not the UTC date
	lateUTC := time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC) // 1 March 03:00 local
	start, _ = service.PeriodBounds(model.FrequencyMonthly, lateUTC, hcm)
	assertSameInstant(t, time.Date(2026, 3, 1, 0, 0, 0, 0, hcm), start)
}

func assertSameInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}
