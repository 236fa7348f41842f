// cmd/seeder/main.go
package main

import (
	"context"
	"embed"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/app"
	"github.com/unclebandit/outreach-service/internal/config"
	"github.com/unclebandit/outreach-service/internal/db"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
	"github.com/unclebandit/outreach-service/internal/service"
)

//go:embed seed/*.sql
var seedFS embed.FS

var seedFiles = []string{
	"seed/contacts.sql",
}

func main() {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	for _, file := range seedFiles {
		content, err := seedFS.ReadFile(file)
		if err != nil {
			logger.Fatal("read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logger.Fatal("execute seed file", zap.String("file", file), zap.Error(err))
		}
		logger.Info("seeded", zap.String("file", file))
	}

	schedules := &service.ReportScheduleService{
		Repo:            &repository.ReportScheduleRepository{DB: conn},
		DefaultTimezone: cfg.Outreach.DefaultTimezone,
	}
	existing, err := schedules.List(ctx, false)
	if err != nil {
		logger.Fatal("list report schedules", zap.Error(err))
	}
	if len(existing) > 0 {
		logger.Info("report schedules already present, skipping", zap.Int("count", len(existing)))
		return
	}
	for _, cfg := range sampleSchedules() {
		created, err := schedules.Create(ctx, cfg)
		if err != nil {
			logger.Fatal("create report schedule", zap.String("recipient", cfg.RecipientAddress), zap.Error(err))
		}
		logger.Info("report schedule seeded", zap.String("config_id", created.ID), zap.String("frequency", created.Frequency))
	}
	logger.Info("database seeding completed")
}

func sampleSchedules() []*model.ReportScheduleConfig {
	monday, first := 1, 1
	return []*model.ReportScheduleConfig{
		{
			RecipientAddress:     "sales.manager@example.com",
			RecipientName:        "Sales Manager",
			Frequency:            model.FrequencyDaily,
			TimeHour:             8,
			Enabled:              true,
			IncludeStats:         true,
			IncludeEmailActivity: true,
		},
		{
			RecipientAddress:   "director@example.com",
			Frequency:          model.FrequencyWeekly,
			DayOfWeek:          &monday,
			TimeHour:           9,
			TimeMinute:         30,
			Enabled:            true,
			IncludeStats:       true,
			IncludeNewContacts: true,
			IncludeTopContacts: true,
		},
		{
			RecipientAddress:     "board@example.com",
			Frequency:            model.FrequencyMonthly,
			DayOfMonth:           &first,
			TimeHour:             7,
			Timezone:             "Europe/Berlin",
			Enabled:              false,
			IncludeStats:         true,
			IncludeEmailActivity: true,
			IncludeTopContacts:   true,
		},
	}
}
