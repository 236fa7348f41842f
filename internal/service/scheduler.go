// internal/service/scheduler.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-service/internal/lock"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
)

const (
	defaultLockTTL      = 5 * time.Minute
	defaultStatsTimeout = 30 * time.Second
)

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeSent
	outcomeFailed
	outcomeBusy
)

// ReportScheduler evaluates report configs on each tick and sends the due ones.
type ReportScheduler struct {
	ScheduleRepo repository.ReportScheduleRepositoryInterface
	StatsRepo    repository.StatsRepositoryInterface
	Dispatcher   *Dispatcher
	Renderer     *Renderer
	// Locker serializes evaluate-and-send per config.
	Locker       lock.Locker
	Logger       *zap.Logger
	Parallel     int
	StatsTimeout time.Duration
	LockTTL      time.Duration
	Now          func() time.Time
}

// Sweep evaluates every enabled config once. A failing config never stops the others.
func (s *ReportScheduler) Sweep(ctx context.Context) (*model.SweepResult, error) {
	configs, err := s.ScheduleRepo.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list report schedules: %w", err)
	}
	now := s.now()

	result := &model.SweepResult{Evaluated: len(configs), SentIDs: []string{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(s.Parallel, 1))
	for _, cfg := range configs {
		id := cfg.ID
		g.Go(func() error {
			outcome := s.evaluate(ctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				result.Sent++
				result.SentIDs = append(result.SentIDs, id)
			case outcomeFailed:
				result.Failed++
			case outcomeBusy:
				result.Busy++
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(result.SentIDs)

	if result.Sent > 0 || result.Failed > 0 || result.Busy > 0 {
		s.logger().Info("report sweep finished",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("busy", result.Busy),
		)
	}
	return result, nil
}

func (s *ReportScheduler) evaluate(ctx context.Context, id string, now time.Time) sweepOutcome {
	logger := s.logger().With(zap.String("config_id", id))

	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	unlock, ok, err := s.Locker.TryLock(ctx, "report-schedule:"+id, ttl)
	if err != nil {
		logger.Error("acquire schedule lock", zap.Error(err))
		return outcomeBusy
	}
	if !ok {
		logger.Debug("report schedule busy, skipping this tick")
		return outcomeBusy
	}
	defer unlock()

	// reload under the lock so a send finished by another holder is visible
	cfg, err := s.ScheduleRepo.GetByID(ctx, id)
	if err != nil {
		logger.Error("reload report schedule", zap.Error(err))
		return outcomeSkipped
	}
	if due, reason := ShouldSend(cfg, now); !due {
		logger.Debug("report not due", zap.String("reason", reason))
		return outcomeSkipped
	}

	start, end := PeriodBounds(cfg.Frequency, now, cfg.Location())
	entry := &model.ReportDispatchLog{
		ID:               uuid.NewString(),
		ConfigID:         cfg.ID,
		RecipientAddress: cfg.RecipientAddress,
		Frequency:        cfg.Frequency,
		PeriodStart:      start,
		PeriodEnd:        end,
	}

	outcome := outcomeSent
	if err := s.send(ctx, cfg, entry); err != nil {
		detail := err.Error()
		entry.Status = model.ReportLogStatusFailed
		entry.ErrorDetail = &detail
		outcome = outcomeFailed
		logger.Error("scheduled report failed", zap.String("recipient", cfg.RecipientAddress), zap.Error(err))
	} else {
		entry.Status = model.ReportLogStatusSent
		if err := s.ScheduleRepo.MarkSent(ctx, cfg.ID, now); err != nil {
			logger.Error("report sent but last_sent_at not updated", zap.Error(err))
		}
		logger.Info("scheduled report sent",
			zap.String("recipient", cfg.RecipientAddress),
			zap.String("frequency", cfg.Frequency),
			zap.Any("stats", entry.StatsSummary),
		)
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteTimeout)
	defer cancel()
	if err := s.ScheduleRepo.CreateLog(logCtx, entry); err != nil {
		logger.Error("write report dispatch log", zap.Error(err))
	}
	return outcome
}

func (s *ReportScheduler) send(ctx context.Context, cfg *model.ReportScheduleConfig, entry *model.ReportDispatchLog) error {
	topN := 0
	if cfg.IncludeTopContacts {
		topN = cfg.TopN
		if topN <= 0 {
			topN = model.DefaultTopN
		}
	}

	timeout := s.StatsTimeout
	if timeout <= 0 {
		timeout = defaultStatsTimeout
	}
	statsCtx, cancel := context.WithTimeout(ctx, timeout)
	stats, err := s.StatsRepo.ComputeStatistics(statsCtx, entry.PeriodStart, entry.PeriodEnd, topN)
	cancel()
	if err != nil {
		return fmt.Errorf("compute statistics: %w", err)
	}
	entry.StatsSummary = stats.Summary()

	content, err := s.Renderer.RenderReport(cfg, stats)
	if err != nil {
		return err
	}

	recipient := model.Recipient{
		ID:      model.ReportRecipientPrefix + cfg.ID,
		Name:    cfg.RecipientName,
		Address: cfg.RecipientAddress,
	}
	result, err := s.Dispatcher.Dispatch(ctx, []model.Recipient{recipient}, func(model.Recipient) (model.Content, error) {
		return content, nil
	})
	if err != nil {
		return err
	}
	switch {
	case result.Sent == 1:
		return nil
	case len(result.Failures) > 0:
		return errors.New(result.Failures[0].Error)
	case len(result.Skipped) > 0:
		return fmt.Errorf("recipient skipped: %s", result.Skipped[0].Reason)
	}
	return errors.New("report was not sent")
}

// Run starts a sweep on every tick until ctx is done. Sweeps may overlap;
// the per-config lock keeps a slow config from being sent twice while later
// ticks still reach the others. Run returns once in-flight sweeps finish.
func (s *ReportScheduler) Run(ctx context.Context, tick time.Duration) {
	logger := s.logger()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	logger.Info("report scheduler started", zap.Duration("tick", tick))
	for {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error("report sweep failed", zap.Error(err))
			}
		}()
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info("report scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *ReportScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ReportScheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
