package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	IMAP     IMAPConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Auth     AuthConfig
	Outreach OutreachConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
// Backend "memory" keeps everything in process (local development only).
type DatabaseConfig struct {
	Backend  string
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SMTPConfig is the outbound send endpoint.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
}

// IMAPConfig is the shared inbox watched for replies.
type IMAPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Mailbox  string
	TLS      bool
	MarkSeen bool
}

// RedisConfig enables the distributed scheduler lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig enables the RabbitMQ batch queue when URL is set.
type AMQPConfig struct {
	URL   string
	Queue string
}

// AuthConfig protects the operator API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string
}

// OutreachConfig tunes the dispatcher, poller and scheduler.
type OutreachConfig struct {
	SendConcurrency      int
	SendTimeout          time.Duration
	PollInterval         time.Duration
	PollMaxMessages      int
	PollTimeout          time.Duration
	PollLookback         time.Duration
	SchedulerTick        time.Duration
	SchedulerParallel    int
	StatsTimeout         time.Duration
	LockTTL              time.Duration
	DefaultTimezone      string
	DisablePollLoop      bool
	DisableSchedulerLoop bool
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			ReadTimeout:  v.GetDuration("READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Backend:  strings.ToLower(v.GetString("STORE_BACKEND")),
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		SMTP: SMTPConfig{
			Host:        v.GetString("EMAIL_HOST"),
			Port:        v.GetInt("EMAIL_PORT"),
			User:        v.GetString("EMAIL_HOST_USER"),
			Password:    v.GetString("EMAIL_HOST_PASSWORD"),
			FromAddress: v.GetString("DEFAULT_FROM_EMAIL"),
			FromName:    v.GetString("DEFAULT_FROM_NAME"),
		},
		IMAP: IMAPConfig{
			Host:     v.GetString("EMAIL_IMAP_HOST"),
			Port:     v.GetInt("EMAIL_IMAP_PORT"),
			User:     v.GetString("EMAIL_HOST_USER"),
			Password: v.GetString("EMAIL_HOST_PASSWORD"),
			Mailbox:  v.GetString("EMAIL_IMAP_MAILBOX"),
			TLS:      v.GetBool("EMAIL_IMAP_TLS"),
			MarkSeen: v.GetBool("EMAIL_IMAP_MARK_SEEN"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		AMQP: AMQPConfig{
			URL:   v.GetString("AMQP_URL"),
			Queue: v.GetString("AMQP_QUEUE"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("AUTH_JWT_SECRET"),
		},
		Outreach: OutreachConfig{
			SendConcurrency:      v.GetInt("SEND_CONCURRENCY"),
			SendTimeout:          v.GetDuration("SEND_TIMEOUT"),
			PollInterval:         v.GetDuration("POLL_INTERVAL"),
			PollMaxMessages:      v.GetInt("POLL_MAX_MESSAGES"),
			PollTimeout:          v.GetDuration("POLL_TIMEOUT"),
			PollLookback:         v.GetDuration("POLL_LOOKBACK"),
			SchedulerTick:        v.GetDuration("SCHEDULER_TICK"),
			SchedulerParallel:    v.GetInt("SCHEDULER_PARALLEL"),
			StatsTimeout:         v.GetDuration("STATS_TIMEOUT"),
			LockTTL:              v.GetDuration("SCHEDULER_LOCK_TTL"),
			DefaultTimezone:      v.GetString("DEFAULT_TIMEZONE"),
			DisablePollLoop:      v.GetBool("DISABLE_POLL_LOOP"),
			DisableSchedulerLoop: v.GetBool("DISABLE_SCHEDULER_LOOP"),
		},
	}

	if cfg.SMTP.FromAddress == "" {
		cfg.SMTP.FromAddress = cfg.SMTP.User
	}
	if cfg.IMAP.Host == "" {
		cfg.IMAP.Host = DetectIMAPHost(cfg.IMAP.User, cfg.SMTP.Host)
	}
	// exact-minute matching misses schedules when the tick is longer than a minute
	if cfg.Outreach.SchedulerTick <= 0 || cfg.Outreach.SchedulerTick > time.Minute {
		return nil, fmt.Errorf("SCHEDULER_TICK must be between 0 and 1m, got %s", cfg.Outreach.SchedulerTick)
	}
	if cfg.Outreach.SendConcurrency < 1 {
		cfg.Outreach.SendConcurrency = 1
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("READ_TIMEOUT", 30*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 60*time.Second)

	v.SetDefault("STORE_BACKEND", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "outreach")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("EMAIL_PORT", 587)
	v.SetDefault("DEFAULT_FROM_NAME", "CRM Outreach")
	v.SetDefault("EMAIL_IMAP_PORT", 993)
	v.SetDefault("EMAIL_IMAP_MAILBOX", "INBOX")
	v.SetDefault("EMAIL_IMAP_TLS", true)
	v.SetDefault("EMAIL_IMAP_MARK_SEEN", true)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AMQP_QUEUE", "outreach_batches")

	v.SetDefault("SEND_CONCURRENCY", 4)
	v.SetDefault("SEND_TIMEOUT", 30*time.Second)
	v.SetDefault("POLL_INTERVAL", 5*time.Minute)
	v.SetDefault("POLL_MAX_MESSAGES", 50)
	v.SetDefault("POLL_TIMEOUT", 2*time.Minute)
	v.SetDefault("POLL_LOOKBACK", 7*24*time.Hour)
	v.SetDefault("SCHEDULER_TICK", time.Minute)
	v.SetDefault("SCHEDULER_PARALLEL", 4)
	v.SetDefault("STATS_TIMEOUT", 30*time.Second)
	v.SetDefault("SCHEDULER_LOCK_TTL", 5*time.Minute)
	v.SetDefault("DEFAULT_TIMEZONE", "Asia/Ho_Chi_Minh")
}

// DetectIMAPHost guesses the IMAP server from the mailbox user's domain, falling back to the SMTP host.
func DetectIMAPHost(user, smtpHost string) string {
	if at := strings.LastIndex(user, "@"); at >= 0 {
		domain := strings.ToLower(user[at+1:])
		switch {
		case strings.Contains(domain, "outlook.com"), strings.Contains(domain, "hotmail.com"), strings.Contains(domain, "live.com"):
			return "imap-mail.outlook.com"
		case strings.Contains(domain, "office365.com"), strings.Contains(domain, "microsoft.com"):
			return "outlook.office365.com"
		case strings.Contains(domain, "gmail.com"):
			return "imap.gmail.com"
		}
	}
	if strings.Contains(smtpHost, "smtp.") {
		return strings.Replace(smtpHost, "smtp.", "imap.", 1)
	}
	return "imap.gmail.com"
}
