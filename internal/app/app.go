// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unclebandit/outreach-service/internal/config"
	"github.com/unclebandit/outreach-service/internal/controller"
	"github.com/unclebandit/outreach-service/internal/db"
	"github.com/unclebandit/outreach-service/internal/handler"
	"github.com/unclebandit/outreach-service/internal/lock"
	"github.com/unclebandit/outreach-service/internal/mail"
	"github.com/unclebandit/outreach-service/internal/middleware"
	"github.com/unclebandit/outreach-service/internal/queue"
	"github.com/unclebandit/outreach-service/internal/repository"
	"github.com/unclebandit/outreach-service/internal/response"
	"github.com/unclebandit/outreach-service/internal/service"
)

// App is the runtime container shared by the server and worker binaries.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Redis  *redis.Client
	Queue  queue.Queue

	Memory    *repository.MemoryStore
	Contacts  repository.ContactRepositoryInterface
	Outbound  repository.OutboundRecordRepositoryInterface
	Replies   repository.InboundReplyRepositoryInterface
	Schedules repository.ReportScheduleRepositoryInterface
	Stats     repository.StatsRepositoryInterface

	Dispatcher *service.Dispatcher
	Poller     *service.Poller
	Scheduler  *service.ReportScheduler
	Outreach   *service.OutreachService
	Reports    *service.ReportScheduleService

	closers []func() error
}

// NewLogger builds the production zap logger used by every binary.
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// New wires storage, transports and services from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initQueue(); err != nil {
		a.Close()
		return nil, err
	}
	locker, err := a.initLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	out := cfg.Outreach
	a.Dispatcher = &service.Dispatcher{
		Sender:       mail.NewSMTPSender(cfg.SMTP, logger),
		OutboundRepo: a.Outbound,
		Logger:       logger.Named("dispatcher"),
		Concurrency:  out.SendConcurrency,
		SendTimeout:  out.SendTimeout,
	}
	a.Poller = &service.Poller{
		Mailbox: mail.NewIMAPMailbox(cfg.IMAP, logger),
		Correlator: &service.Correlator{
			OutboundRepo: a.Outbound,
			ReplyRepo:    a.Replies,
			Logger:       logger.Named("correlator"),
		},
		ReplyRepo:   a.Replies,
		Logger:      logger.Named("poller"),
		Timeout:     out.PollTimeout,
		MaxMessages: out.PollMaxMessages,
		Lookback:    out.PollLookback,
		MarkSeen:    cfg.IMAP.MarkSeen,
	}
	a.Scheduler = &service.ReportScheduler{
		ScheduleRepo: a.Schedules,
		StatsRepo:    a.Stats,
		Dispatcher:   a.Dispatcher,
		Renderer:     service.NewRenderer(),
		Locker:       locker,
		Logger:       logger.Named("scheduler"),
		Parallel:     out.SchedulerParallel,
		StatsTimeout: out.StatsTimeout,
		LockTTL:      out.LockTTL,
	}
	a.Outreach = &service.OutreachService{
		ContactRepo:  a.Contacts,
		OutboundRepo: a.Outbound,
		ReplyRepo:    a.Replies,
		Dispatcher:   a.Dispatcher,
		Poller:       a.Poller,
		Queue:        a.Queue,
		QueueTopic:   cfg.AMQP.Queue,
		Logger:       logger.Named("outreach"),
	}
	a.Reports = &service.ReportScheduleService{
		Repo:            a.Schedules,
		Scheduler:       a.Scheduler,
		DefaultTimezone: out.DefaultTimezone,
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.Config.Database.Backend == "memory" {
		a.Logger.Warn("using in-memory store, data is lost on restart")
		a.Memory = repository.NewMemoryStore()
		a.Contacts = a.Memory.Contacts()
		a.Outbound = a.Memory.Outbound()
		a.Replies = a.Memory.Replies()
		a.Schedules = a.Memory.Schedules()
		a.Stats = a.Memory.Stats()
		return nil
	}

	conn, err := db.Open(ctx, a.Config.Database.DSN(), a.Logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Contacts = &repository.ContactRepository{DB: conn}
	a.Outbound = &repository.OutboundRecordRepository{DB: conn}
	a.Replies = &repository.InboundReplyRepository{DB: conn}
	a.Schedules = &repository.ReportScheduleRepository{DB: conn}
	a.Stats = &repository.StatsRepository{DB: conn}
	return nil
}

func (a *App) initQueue() error {
	if a.Config.AMQP.URL == "" {
		q := queue.NewInMemoryQueue(a.Logger.Named("queue"))
		a.Queue = q
		a.closers = append(a.closers, q.Close)
		return nil
	}
	q, err := queue.NewAMQPQueue(a.Config.AMQP.URL, a.Logger.Named("queue"))
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}
	a.Queue = q
	a.closers = append(a.closers, q.Close)
	return nil
}

func (a *App) initLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Redis.Addr == "" {
		a.Logger.Info("REDIS_ADDR not set, scheduler lock is process local")
		return lock.NewLocalLocker(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)
	return lock.NewRedisLocker(rdb, a.Logger.Named("lock")), nil
}

// Router builds the operator API. Every route except /health requires a
// bearer token when AUTH_JWT_SECRET is set.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(a.Logger.Named("http")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if secret := a.Config.Auth.JWTSecret; secret != "" {
			r.Use(middleware.JWT(middleware.NewJWTService(secret)))
		} else {
			a.Logger.Warn("AUTH_JWT_SECRET not set, operator API is unauthenticated")
		}
		(&controller.OutreachController{OutreachService: a.Outreach, Logger: a.Logger.Named("http")}).Routes(r)
		handler.NewReportScheduleHandler(a.Reports, a.Logger.Named("http")).Routes(r)
	})
	return r
}

// Close releases every connection opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
