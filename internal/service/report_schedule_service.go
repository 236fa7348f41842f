// internal/service/report_schedule_service.go
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
)

// ReportScheduleService manages report subscriptions for operators.
type ReportScheduleService struct {
	Repo            repository.ReportScheduleRepositoryInterface
	Scheduler       *ReportScheduler
	DefaultTimezone string
}

func (s *ReportScheduleService) Create(ctx context.Context, cfg *model.ReportScheduleConfig) (*model.ReportScheduleConfig, error) {
	s.applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ID = uuid.NewString()
	// only the scheduler writes last_sent_at
	cfg.LastSentAt = nil
	if err := s.Repo.Create(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *ReportScheduleService) Update(ctx context.Context, id string, cfg *model.ReportScheduleConfig) (*model.ReportScheduleConfig, error) {
	if _, err := s.Repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	cfg.ID = id
	s.applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, cfg); err != nil {
		return nil, err
	}
	return s.Repo.GetByID(ctx, id)
}

func (s *ReportScheduleService) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func (s *ReportScheduleService) Get(ctx context.Context, id string) (*model.ReportScheduleConfig, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *ReportScheduleService) List(ctx context.Context, enabledOnly bool) ([]model.ReportScheduleConfig, error) {
	return s.Repo.List(ctx, enabledOnly)
}

// ListLogs returns the newest dispatch logs for an existing config.
func (s *ReportScheduleService) ListLogs(ctx context.Context, id string, limit int) ([]model.ReportDispatchLog, error) {
	if _, err := s.Repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.ListLogs(ctx, id, limit)
}

// SweepNow runs the scheduler immediately. Configs that are not due are skipped as usual.
func (s *ReportScheduleService) SweepNow(ctx context.Context) (*model.SweepResult, error) {
	return s.Scheduler.Sweep(ctx)
}

func (s *ReportScheduleService) applyDefaults(cfg *model.ReportScheduleConfig) {
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = s.DefaultTimezone
	}
	if cfg.TopN == 0 {
		cfg.TopN = model.DefaultTopN
	}
}
