// internal/repository/report_schedule_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

type ReportScheduleRepositoryInterface interface {
	Create(ctx context.Context, cfg *model.ReportScheduleConfig) error
	Update(ctx context.Context, cfg *model.ReportScheduleConfig) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.ReportScheduleConfig, error)
	List(ctx context.Context, enabledOnly bool) ([]model.ReportScheduleConfig, error)
	// MarkSent is the only write the scheduler performs on a config.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	CreateLog(ctx context.Context, log *model.ReportDispatchLog) error
	ListLogs(ctx context.Context, configID string, limit int) ([]model.ReportDispatchLog, error)
}

var _ ReportScheduleRepositoryInterface = (*ReportScheduleRepository)(nil)

type ReportScheduleRepository struct {
	DB *sql.DB
}

const scheduleColumns = `id, recipient_address, recipient_name, frequency, time_hour, time_minute, timezone,
	day_of_week, day_of_month, enabled, include_stats, include_new_contacts, include_email_activity,
	include_top_contacts, top_n, last_sent_at, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*model.ReportScheduleConfig, error) {
	var c model.ReportScheduleConfig
	var dow, dom sql.NullInt64
	var lastSent sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.RecipientAddress,
		&c.RecipientName,
		&c.Frequency,
		&c.TimeHour,
		&c.TimeMinute,
		&c.Timezone,
		&dow,
		&dom,
		&c.Enabled,
		&c.IncludeStats,
		&c.IncludeNewContacts,
		&c.IncludeEmailActivity,
		&c.IncludeTopContacts,
		&c.TopN,
		&lastSent,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if dow.Valid {
		v := int(dow.Int64)
		c.DayOfWeek = &v
	}
	if dom.Valid {
		v := int(dom.Int64)
		c.DayOfMonth = &v
	}
	if lastSent.Valid {
		t := lastSent.Time
		c.LastSentAt = &t
	}
	return &c, nil
}

func (r *ReportScheduleRepository) Create(ctx context.Context, c *model.ReportScheduleConfig) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	query := `
		INSERT INTO report_schedule_configs
		(id, recipient_address, recipient_name, frequency, time_hour, time_minute, timezone,
		 day_of_week, day_of_month, enabled, include_stats, include_new_contacts, include_email_activity,
		 include_top_contacts, top_n, last_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.RecipientAddress, c.RecipientName, c.Frequency, c.TimeHour, c.TimeMinute, c.Timezone,
		c.DayOfWeek, c.DayOfMonth, c.Enabled, c.IncludeStats, c.IncludeNewContacts, c.IncludeEmailActivity,
		c.IncludeTopContacts, c.TopN, c.LastSentAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// Update writes operator-editable fields. last_sent_at is left untouched.
func (r *ReportScheduleRepository) Update(ctx context.Context, c *model.ReportScheduleConfig) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE report_schedule_configs
		SET recipient_address=$1, recipient_name=$2, frequency=$3, time_hour=$4, time_minute=$5, timezone=$6,
		    day_of_week=$7, day_of_month=$8, enabled=$9, include_stats=$10, include_new_contacts=$11,
		    include_email_activity=$12, include_top_contacts=$13, top_n=$14, updated_at=$15
		WHERE id=$16
	`
	res, err := r.DB.ExecContext(ctx, query,
		c.RecipientAddress, c.RecipientName, c.Frequency, c.TimeHour, c.TimeMinute, c.Timezone,
		c.DayOfWeek, c.DayOfMonth, c.Enabled, c.IncludeStats, c.IncludeNewContacts,
		c.IncludeEmailActivity, c.IncludeTopContacts, c.TopN, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "report schedule", c.ID)
}

func (r *ReportScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM report_schedule_configs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, "report schedule", id)
}

func (r *ReportScheduleRepository) GetByID(ctx context.Context, id string) (*model.ReportScheduleConfig, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedule_configs WHERE id=$1`
	c, err := scanSchedule(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("report schedule", id)
	}
	return c, err
}

func (r *ReportScheduleRepository) List(ctx context.Context, enabledOnly bool) ([]model.ReportScheduleConfig, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM report_schedule_configs
		WHERE ($1 = FALSE OR enabled = TRUE)
		ORDER BY created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []model.ReportScheduleConfig{}
	for rows.Next() {
		c, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

func (r *ReportScheduleRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE report_schedule_configs SET last_sent_at=$1 WHERE id=$2`, sentAt, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, "report schedule", id)
}

func (r *ReportScheduleRepository) CreateLog(ctx context.Context, l *model.ReportDispatchLog) error {
	var summary []byte
	if l.StatsSummary != nil {
		var err error
		summary, err = json.Marshal(l.StatsSummary)
		if err != nil {
			return fmt.Errorf("encode stats summary: %w", err)
		}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO report_dispatch_logs
		(id, config_id, recipient_address, frequency, period_start, period_end, status, error_detail, stats_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.DB.ExecContext(ctx, query,
		l.ID, l.ConfigID, l.RecipientAddress, l.Frequency, l.PeriodStart, l.PeriodEnd,
		l.Status, l.ErrorDetail, summary, l.CreatedAt,
	)
	return err
}

func (r *ReportScheduleRepository) ListLogs(ctx context.Context, configID string, limit int) ([]model.ReportDispatchLog, error) {
	query := `
		SELECT id, config_id, recipient_address, frequency, period_start, period_end, status, error_detail, stats_summary, created_at
		FROM report_dispatch_logs
		WHERE config_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, configID, clampLimit(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.ReportDispatchLog{}
	for rows.Next() {
		var l model.ReportDispatchLog
		var errorDetail sql.NullString
		var summary []byte
		if err := rows.Scan(
			&l.ID, &l.ConfigID, &l.RecipientAddress, &l.Frequency, &l.PeriodStart, &l.PeriodEnd,
			&l.Status, &errorDetail, &summary, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.ErrorDetail = nullableString(errorDetail)
		if len(summary) > 0 {
			if err := json.Unmarshal(summary, &l.StatsSummary); err != nil {
				return nil, fmt.Errorf("decode stats summary: %w", err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewNotFound(entity, id)
	}
	return nil
}
