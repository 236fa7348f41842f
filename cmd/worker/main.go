// cmd/worker/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/app"
	"github.com/unclebandit/outreach-service/internal/config"
	"github.com/unclebandit/outreach-service/internal/service"
)

func main() {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.AMQP.URL == "" {
		logger.Fatal("AMQP_URL is required for the worker")
	}
	if cfg.Database.Backend == "memory" {
		logger.Fatal("the worker needs the postgres backend to share records with the server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	worker := service.NewBatchWorker(a.Outreach, logger.Named("worker"))
	if err := worker.Start(a.Queue, cfg.AMQP.Queue); err != nil {
		logger.Fatal("subscribe", zap.Error(err))
	}

	logger.Info("worker running, waiting for batch jobs", zap.String("queue", cfg.AMQP.Queue))
	<-ctx.Done()
	logger.Info("worker stopping")
}
