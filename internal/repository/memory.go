// internal/repository/memory.go
package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

// MemoryStore backs every repository interface with process memory.
// It is used by tests and by STORE_BACKEND=memory.
type MemoryStore struct {
	mu        sync.Mutex
	contacts  []model.Contact
	outbound  []model.OutboundRecord
	replies   []model.InboundReply
	schedules map[string]model.ReportScheduleConfig
	logs      []model.ReportDispatchLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: map[string]model.ReportScheduleConfig{}}
}

var (
	_ OutboundRecordRepositoryInterface = (*MemoryOutboundRepository)(nil)
	_ InboundReplyRepositoryInterface   = (*MemoryReplyRepository)(nil)
	_ ReportScheduleRepositoryInterface = (*MemoryScheduleRepository)(nil)
	_ ContactRepositoryInterface        = (*MemoryContactRepository)(nil)
	_ StatsRepositoryInterface          = (*MemoryStatsRepository)(nil)
)

type MemoryOutboundRepository struct{ *MemoryStore }
type MemoryReplyRepository struct{ *MemoryStore }
type MemoryScheduleRepository struct{ *MemoryStore }
type MemoryContactRepository struct{ *MemoryStore }
type MemoryStatsRepository struct{ *MemoryStore }

func (s *MemoryStore) Outbound() *MemoryOutboundRepository  { return &MemoryOutboundRepository{s} }
func (s *MemoryStore) Replies() *MemoryReplyRepository      { return &MemoryReplyRepository{s} }
func (s *MemoryStore) Schedules() *MemoryScheduleRepository { return &MemoryScheduleRepository{s} }
func (s *MemoryStore) Contacts() *MemoryContactRepository   { return &MemoryContactRepository{s} }
func (s *MemoryStore) Stats() *MemoryStatsRepository        { return &MemoryStatsRepository{s} }

// AddContact seeds a contact.
func (s *MemoryStore) AddContact(c model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.contacts = append(s.contacts, c)
}

// ====================== Outbound ======================

func (r *MemoryOutboundRepository) Create(_ context.Context, rec *model.OutboundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound = append(r.outbound, *rec)
	return nil
}

func (r *MemoryOutboundRepository) GetByID(_ context.Context, id string) (*model.OutboundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.outbound {
		if rec.ID == id {
			rec := rec
			return &rec, nil
		}
	}
	return nil, appErrors.NewNotFound("outbound record", id)
}

// newestFirst returns a copy of the records sorted by SentAt descending. Caller holds mu.
func (r *MemoryOutboundRepository) newestFirst(keep func(model.OutboundRecord) bool) []model.OutboundRecord {
	out := []model.OutboundRecord{}
	for _, rec := range r.outbound {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

func (r *MemoryOutboundRepository) first(keep func(model.OutboundRecord) bool) *model.OutboundRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := r.newestFirst(keep)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

func (r *MemoryOutboundRepository) FindByProviderMessageID(_ context.Context, messageID string) (*model.OutboundRecord, error) {
	want := trimBrackets(messageID)
	return r.first(func(rec model.OutboundRecord) bool {
		return rec.Status == model.OutboundStatusSent && rec.ProviderMessageID != nil &&
			trimBrackets(*rec.ProviderMessageID) == want
	}), nil
}

func (r *MemoryOutboundRepository) FindByProviderMessageIDContaining(_ context.Context, fragment string) (*model.OutboundRecord, error) {
	fragment = trimBrackets(fragment)
	if fragment == "" {
		return nil, nil
	}
	return r.first(func(rec model.OutboundRecord) bool {
		return rec.Status == model.OutboundStatusSent && rec.ProviderMessageID != nil &&
			strings.Contains(*rec.ProviderMessageID, fragment)
	}), nil
}

func (r *MemoryOutboundRepository) ListSent(_ context.Context, limit int) ([]model.OutboundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.newestFirst(func(rec model.OutboundRecord) bool { return rec.Status == model.OutboundStatusSent })
	return truncate(out, clampLimit(limit, 1000)), nil
}

func (r *MemoryOutboundRepository) LatestForRecipient(_ context.Context, recipientID string) (*model.OutboundRecord, error) {
	rec := r.first(func(rec model.OutboundRecord) bool { return rec.RecipientID == recipientID })
	if rec == nil {
		return nil, appErrors.NewNotFound("outbound record for recipient", recipientID)
	}
	return rec, nil
}

func (r *MemoryOutboundRepository) ListByRecipient(_ context.Context, recipientID string, limit int) ([]model.OutboundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.newestFirst(func(rec model.OutboundRecord) bool { return rec.RecipientID == recipientID })
	return truncate(out, clampLimit(limit, 200)), nil
}

// ====================== Replies ======================

func (r *MemoryReplyRepository) Create(_ context.Context, reply *model.InboundReply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reply.ProviderMessageID != nil {
		for _, existing := range r.replies {
			if existing.ProviderMessageID != nil && *existing.ProviderMessageID == *reply.ProviderMessageID {
				return appErrors.ErrDuplicateReply
			}
		}
	}
	r.replies = append(r.replies, *reply)
	return nil
}

func (r *MemoryReplyRepository) ExistsByProviderMessageID(_ context.Context, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.replies {
		if existing.ProviderMessageID != nil && *existing.ProviderMessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryReplyRepository) List(_ context.Context, filter model.ReplyFilter) ([]model.InboundReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.InboundReply{}
	for _, rep := range r.replies {
		if filter.RecipientID != "" && rep.RecipientID != filter.RecipientID {
			continue
		}
		if filter.OutboundID != "" && rep.CorrelatedOutboundID != filter.OutboundID {
			continue
		}
		out = append(out, rep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return truncate(out, clampLimit(filter.Limit, 200)), nil
}

// ====================== Report schedules ======================

func (r *MemoryScheduleRepository) Create(_ context.Context, c *model.ReportScheduleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.schedules[c.ID] = *c
	return nil
}

func (r *MemoryScheduleRepository) Update(_ context.Context, c *model.ReportScheduleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.schedules[c.ID]
	if !ok {
		return appErrors.NewNotFound("report schedule", c.ID)
	}
	c.UpdatedAt = time.Now().UTC()
	c.CreatedAt = existing.CreatedAt
	c.LastSentAt = existing.LastSentAt
	r.schedules[c.ID] = *c
	return nil
}

func (r *MemoryScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[id]; !ok {
		return appErrors.NewNotFound("report schedule", id)
	}
	delete(r.schedules, id)
	return nil
}

func (r *MemoryScheduleRepository) GetByID(_ context.Context, id string) (*model.ReportScheduleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.schedules[id]
	if !ok {
		return nil, appErrors.NewNotFound("report schedule", id)
	}
	return &c, nil
}

func (r *MemoryScheduleRepository) List(_ context.Context, enabledOnly bool) ([]model.ReportScheduleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ReportScheduleConfig{}
	for _, c := range r.schedules {
		if enabledOnly && !c.Enabled {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryScheduleRepository) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.schedules[id]
	if !ok {
		return appErrors.NewNotFound("report schedule", id)
	}
	c.LastSentAt = &sentAt
	r.schedules[id] = c
	return nil
}

func (r *MemoryScheduleRepository) CreateLog(_ context.Context, l *model.ReportDispatchLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	r.logs = append(r.logs, *l)
	return nil
}

func (r *MemoryScheduleRepository) ListLogs(_ context.Context, configID string, limit int) ([]model.ReportDispatchLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ReportDispatchLog{}
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].ConfigID == configID {
			out = append(out, r.logs[i])
		}
	}
	return truncate(out, clampLimit(limit, 100)), nil
}

// ====================== Contacts ======================

func (r *MemoryContactRepository) GetByID(_ context.Context, id string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, appErrors.NewNotFound("contact", id)
}

func (r *MemoryContactRepository) FetchContacts(_ context.Context, filter model.ContactFilter) ([]model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range filter.IDs {
		wanted[id] = true
	}
	out := []model.Contact{}
	for _, c := range r.contacts {
		if len(wanted) > 0 && !wanted[c.ID] {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return truncate(out, clampLimit(filter.Limit, 5000)), nil
}

// ====================== Stats ======================

func (r *MemoryStatsRepository) ComputeStatistics(_ context.Context, start, end time.Time, topN int) (*model.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := func(t time.Time) bool { return !t.Before(start) && !t.After(end) }

	s := &model.Stats{PeriodStart: start, PeriodEnd: end, ContactsByStatus: map[string]int{}}
	countries := map[string]int{}
	for _, c := range r.contacts {
		s.ContactsTotal++
		if in(c.CreatedAt) {
			s.NewContactsInPeriod++
		}
		s.ContactsByStatus[c.Status]++
		if c.Country != "" {
			countries[c.Country]++
		}
	}
	for country, n := range countries {
		s.ContactsByCountry = append(s.ContactsByCountry, model.CountryCount{Country: country, Count: n})
	}
	sort.Slice(s.ContactsByCountry, func(i, j int) bool {
		a, b := s.ContactsByCountry[i], s.ContactsByCountry[j]
		if a.Count == b.Count {
			return a.Country < b.Country
		}
		return a.Count > b.Count
	})
	s.ContactsByCountry = truncate(s.ContactsByCountry, 10)

	contacted := map[string]bool{}
	byDay := map[string]int{}
	for _, rec := range r.outbound {
		if rec.Status != model.OutboundStatusSent || model.IsReportRecipient(rec.RecipientID) {
			continue
		}
		s.SentTotal++
		contacted[rec.RecipientID] = true
		if in(rec.SentAt) {
			s.SentInPeriod++
			byDay[rec.SentAt.UTC().Format("2006-01-02")]++
		}
	}
	s.UniqueContacted = len(contacted)
	for day, n := range byDay {
		s.SentByDay = append(s.SentByDay, model.DayCount{Date: day, Count: n})
	}
	sort.Slice(s.SentByDay, func(i, j int) bool { return s.SentByDay[i].Date < s.SentByDay[j].Date })

	for _, rep := range r.replies {
		if model.IsReportRecipient(rep.RecipientID) {
			continue
		}
		s.RepliesTotal++
		if in(rep.ReceivedAt) {
			s.RepliesInPeriod++
		}
	}
	if s.SentTotal > 0 {
		s.ReplyRate = float64(s.RepliesTotal) / float64(s.SentTotal) * 100
	}

	if topN > 0 {
		for _, c := range r.contacts {
			if c.Score == nil {
				continue
			}
			s.TopContacts = append(s.TopContacts, model.TopContact{
				ID: c.ID, DisplayName: c.DisplayName, Address: c.Address,
				Score: *c.Score, Status: c.Status, Country: c.Country,
			})
		}
		sort.SliceStable(s.TopContacts, func(i, j int) bool { return s.TopContacts[i].Score > s.TopContacts[j].Score })
		s.TopContacts = truncate(s.TopContacts, topN)
	}
	return s, nil
}

func truncate[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
