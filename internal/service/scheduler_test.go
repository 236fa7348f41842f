package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-service/internal/lock"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
	"github.com/unclebandit/outreach-service/internal/service"
)

// 09:00 in Ho Chi Minh City
var nineLocal = time.Date(2026, 3, 2, 2, 0, 15, 0, time.UTC)

type schedulerFixture struct {
	store     *repository.MemoryStore
	sender    *MockSender
	stats     *MockStats
	scheduler *service.ReportScheduler
}

func newSchedulerFixture(t *testing.T, now time.Time) *schedulerFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	sender := newMockSender()
	stats := &MockStats{}
	d := newDispatcher(store, sender)
	d.Now = fixedClock(now)
	return &schedulerFixture{
		store:  store,
		sender: sender,
		stats:  stats,
		scheduler: &service.ReportScheduler{
			ScheduleRepo: store.Schedules(),
			StatsRepo:    stats,
			Dispatcher:   d,
			Renderer:     service.NewRenderer(),
			Locker:       lock.NewLocalLocker(),
			Parallel:     4,
			StatsTimeout: time.Second,
			Now:          fixedClock(now),
		},
	}
}

func (f *schedulerFixture) addConfig(t *testing.T, cfg *model.ReportScheduleConfig) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	require.NoError(t, f.store.Schedules().Create(context.Background(), cfg))
}

func TestSweepSendsDueReportOnce(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	cfg := dailyAtNine()
	cfg.IncludeStats = true
	cfg.IncludeEmailActivity = true
	f.addConfig(t, cfg)

	notDue := dailyAtNine()
	notDue.ID = "later"
	notDue.TimeHour = 17
	f.addConfig(t, notDue)

	result, err := f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, []string{"daily"}, result.SentIDs)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "manager@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "Daily report")
	assert.Contains(t, sent[0].TextBody, "Total contacts: 12")

	got, err := f.store.Schedules().GetByID(context.Background(), "daily")
	require.NoError(t, err)
	require.NotNil(t, got.LastSentAt)
	assert.True(t, got.LastSentAt.Equal(nineLocal))

	logs, err := f.store.Schedules().ListLogs(context.Background(), "daily", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ReportLogStatusSent, logs[0].Status)
	assert.Equal(t, 12, logs[0].StatsSummary["contacts_total"])
	hcm := mustLoc(t, "Asia/Ho_Chi_Minh")
	assert.True(t, logs[0].PeriodStart.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, hcm)))

	// a second tick in the same minute finds last_sent_at and skips
	result, err = f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Sent)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestSweepRecordsFailureWithoutMarkingSent(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	f.addConfig(t, dailyAtNine())
	f.sender.failFor["manager@example.com"] = errTransport

	ok := dailyAtNine()
	ok.ID = "other"
	ok.RecipientAddress = "director@example.com"
	f.addConfig(t, ok)

	result, err := f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Sent)

	got, err := f.store.Schedules().GetByID(context.Background(), "daily")
	require.NoError(t, err)
	assert.Nil(t, got.LastSentAt)

	logs, err := f.store.Schedules().ListLogs(context.Background(), "daily", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ReportLogStatusFailed, logs[0].Status)
	require.NotNil(t, logs[0].ErrorDetail)
	assert.Contains(t, *logs[0].ErrorDetail, "550")
}

func TestSweepStatsFailureIsLogged(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	f.stats.err = errors.New("stats backend down")
	f.addConfig(t, dailyAtNine())

	result, err := f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, f.sender.Sent())

	logs, err := f.store.Schedules().ListLogs(context.Background(), "daily", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, *logs[0].ErrorDetail, "compute statistics")
}

func TestSweepSkipsConfigHeldByAnotherSweep(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	f.addConfig(t, dailyAtNine())

	unlock, ok, err := f.scheduler.Locker.TryLock(context.Background(), "report-schedule:daily", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Busy)
	assert.Zero(t, f.stats.Calls())

	unlock()
	result, err = f.scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
}

func TestConcurrentSweepsSendOnce(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	f.stats.delay = 20 * time.Millisecond
	f.addConfig(t, dailyAtNine())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Sweep(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.sender.Sent(), 1)
	logs, err := f.store.Schedules().ListLogs(context.Background(), "daily", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	f := newSchedulerFixture(t, nineLocal)
	f.addConfig(t, dailyAtNine())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Len(t, f.sender.Sent(), 1)
}

// stallingStats holds the first statistics call until release is closed.
type stallingStats struct {
	MockStats
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *stallingStats) ComputeStatistics(ctx context.Context, start, end time.Time, topN int) (*model.Stats, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.MockStats.ComputeStatistics(ctx, start, end, topN)
}

func TestSchedulerRunSlowConfigDoesNotDelayOthers(t *testing.T) {
	var mu sync.Mutex
	now := nineLocal
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	f := newSchedulerFixture(t, nineLocal)
	stats := &stallingStats{started: make(chan struct{}), release: make(chan struct{})}
	f.scheduler.StatsRepo = stats
	f.scheduler.StatsTimeout = 5 * time.Second
	f.scheduler.Now = clock
	f.scheduler.Dispatcher.Now = clock

	f.addConfig(t, dailyAtNine())
	next := dailyAtNine()
	next.ID = "next-minute"
	next.RecipientAddress = "ops@example.com"
	next.TimeMinute = 1
	f.addConfig(t, next)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}()

	select {
	case <-stats.started:
	case <-time.After(time.Second):
		t.Fatal("first report never started")
	}
	mu.Lock()
	now = nineLocal.Add(time.Minute)
	mu.Unlock()

	require.Eventually(t, func() bool {
		for _, m := range f.sender.Sent() {
			if m.To == "ops@example.com" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "a stalled config must not hold back later ticks")
	assert.Len(t, f.sender.Sent(), 1)

	close(stats.release)
	require.Eventually(t, func() bool { return len(f.sender.Sent()) == 2 }, time.Second, 5*time.Millisecond)
}
