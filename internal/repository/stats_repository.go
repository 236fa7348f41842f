// internal/repository/stats_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-service/internal/model"
)

// StatsRepositoryInterface computes report aggregates for a period.
type StatsRepositoryInterface interface {
	ComputeStatistics(ctx context.Context, start, end time.Time, topN int) (*model.Stats, error)
}

var _ StatsRepositoryInterface = (*StatsRepository)(nil)

type StatsRepository struct {
	DB *sql.DB
}

// ComputeStatistics runs the aggregate queries. The period is inclusive on
// both ends. Scheduled report sends and replies to them are left out.
func (r *StatsRepository) ComputeStatistics(ctx context.Context, start, end time.Time, topN int) (*model.Stats, error) {
	s := &model.Stats{
		PeriodStart:      start,
		PeriodEnd:        end,
		ContactsByStatus: map[string]int{},
	}
	reports := model.ReportRecipientPrefix + "%"

	counts := `
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM contacts WHERE created_at BETWEEN $1 AND $2),
			(SELECT COUNT(*) FROM outbound_records WHERE status = 'sent' AND recipient_id NOT LIKE $3),
			(SELECT COUNT(*) FROM outbound_records WHERE status = 'sent' AND recipient_id NOT LIKE $3 AND sent_at BETWEEN $1 AND $2),
			(SELECT COUNT(*) FROM inbound_replies WHERE recipient_id NOT LIKE $3),
			(SELECT COUNT(*) FROM inbound_replies WHERE recipient_id NOT LIKE $3 AND received_at BETWEEN $1 AND $2),
			(SELECT COUNT(DISTINCT recipient_id) FROM outbound_records WHERE status = 'sent' AND recipient_id NOT LIKE $3)
	`
	if err := r.DB.QueryRowContext(ctx, counts, start, end, reports).Scan(
		&s.ContactsTotal,
		&s.NewContactsInPeriod,
		&s.SentTotal,
		&s.SentInPeriod,
		&s.RepliesTotal,
		&s.RepliesInPeriod,
		&s.UniqueContacted,
	); err != nil {
		return nil, err
	}
	if s.SentTotal > 0 {
		s.ReplyRate = float64(s.RepliesTotal) / float64(s.SentTotal) * 100
	}

	err := r.scan(ctx, func(rows *sql.Rows) error {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		s.ContactsByStatus[status] = n
		return nil
	}, `SELECT status, COUNT(*) FROM contacts GROUP BY status`)
	if err != nil {
		return nil, err
	}

	err = r.scan(ctx, func(rows *sql.Rows) error {
		var cc model.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return err
		}
		s.ContactsByCountry = append(s.ContactsByCountry, cc)
		return nil
	}, `
		SELECT country, COUNT(*) FROM contacts
		WHERE country <> ''
		GROUP BY country
		ORDER BY COUNT(*) DESC, country ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}

	err = r.scan(ctx, func(rows *sql.Rows) error {
		var dc model.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return err
		}
		s.SentByDay = append(s.SentByDay, dc)
		return nil
	}, `
		SELECT to_char(sent_at, 'YYYY-MM-DD'), COUNT(*) FROM outbound_records
		WHERE status = 'sent' AND recipient_id NOT LIKE $3 AND sent_at BETWEEN $1 AND $2
		GROUP BY 1
		ORDER BY 1
	`, start, end, reports)
	if err != nil {
		return nil, err
	}

	if topN > 0 {
		err = r.scan(ctx, func(rows *sql.Rows) error {
			var tc model.TopContact
			if err := rows.Scan(&tc.ID, &tc.DisplayName, &tc.Address, &tc.Score, &tc.Status, &tc.Country); err != nil {
				return err
			}
			s.TopContacts = append(s.TopContacts, tc)
			return nil
		}, `
			SELECT id, display_name, address, score, status, country FROM contacts
			WHERE score IS NOT NULL
			ORDER BY score DESC, created_at ASC
			LIMIT $1
		`, topN)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// scan runs query and calls fn for every row.
func (r *StatsRepository) scan(ctx context.Context, fn func(*sql.Rows) error, query string, args ...interface{}) error {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
