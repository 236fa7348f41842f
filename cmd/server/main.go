// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	// without RabbitMQ, async batches run in this process
	if cfg.AMQP.URL == "" {
		if err := service.NewBatchWorker(a.Outreach, logger.Named("worker")).Start(a.Queue, cfg.AMQP.Queue); err != nil {
			logger.Fatal("subscribe batch worker", zap.Error(err))
		}
	}

	var loops sync.WaitGroup
	if !cfg.Outreach.DisablePollLoop {
		loops.Add(1)
		go func() {
			defer loops.Done()
			a.Poller.Run(ctx, cfg.Outreach.PollInterval)
		}()
	}
	if !cfg.Outreach.DisableSchedulerLoop {
		loops.Add(1)
		go func() {
			defer loops.Done()
			a.Scheduler.Run(ctx, cfg.Outreach.SchedulerTick)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	loops.Wait()
	logger.Info("server stopped")
}
