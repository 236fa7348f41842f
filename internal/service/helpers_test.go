package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
	"github.com/unclebandit/outreach-service/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Mock Sender ---

type MockSender struct {
	mu       sync.Mutex
	seq      int
	sent     []model.OutgoingMessage
	failFor  map[string]error
	block    map[string]bool
	notReady error
}

func newMockSender() *MockSender {
	return &MockSender{failFor: map[string]error{}, block: map[string]bool{}}
}

func (m *MockSender) CheckConfig() error { return m.notReady }

func (m *MockSender) Send(ctx context.Context, msg model.OutgoingMessage) (string, error) {
	m.mu.Lock()
	blocked := m.block[msg.To]
	failure := m.failFor[msg.To]
	m.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return "", appErrors.NewTransportError("smtp send", ctx.Err())
	}
	if failure != nil {
		return "", failure
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("<msg-%d@example.com>", m.seq), nil
}

func (m *MockSender) Sent() []model.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OutgoingMessage(nil), m.sent...)
}

// --- Mock Mailbox ---

type MockMailbox struct {
	mu       sync.Mutex
	messages []model.RawMessage
	seen     map[uint32]bool
	fetchErr error
	notReady error
	count    int
}

func (m *MockMailbox) CheckConfig() error { return m.notReady }

// FetchUnseen mirrors the IMAP mailbox: unread only, UID order, capped at max.
func (m *MockMailbox) FetchUnseen(_ context.Context, _ *time.Time, afterUID uint32, max int) ([]model.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []model.RawMessage
	for _, msg := range m.messages {
		if m.seen[msg.UID] || msg.UID <= afterUID {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (m *MockMailbox) isSeen(uid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[uid]
}

func (m *MockMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[uint32]bool{}
	}
	for _, uid := range uids {
		m.seen[uid] = true
	}
	return nil
}

func (m *MockMailbox) CountBySubject(context.Context, string, *time.Time, bool) (int, error) {
	return m.count, nil
}

// --- Mock Stats ---

type MockStats struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (m *MockStats) ComputeStatistics(ctx context.Context, start, end time.Time, topN int) (*model.Stats, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &model.Stats{
		PeriodStart:      start,
		PeriodEnd:        end,
		ContactsTotal:    12,
		ContactsByStatus: map[string]int{"New": 12},
		SentInPeriod:     3,
		RepliesInPeriod:  1,
		ReplyRate:        33.3,
	}, nil
}

func (m *MockStats) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- helpers ---

var errTransport = errors.New("550 mailbox unavailable")

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newDispatcher(store *repository.MemoryStore, sender service.Sender) *service.Dispatcher {
	return &service.Dispatcher{
		Sender:       sender,
		OutboundRepo: store.Outbound(),
		Concurrency:  4,
		SendTimeout:  time.Second,
	}
}

func staticContent(subject string) service.ContentResolver {
	return func(r model.Recipient) (model.Content, error) {
		return model.Content{Subject: subject, Body: "Hello " + r.Name}, nil
	}
}

func rawMessage(uid uint32, headers map[string]string, body string) model.RawMessage {
	var b strings.Builder
	for _, k := range []string{"From", "To", "Subject", "Date", "Message-ID", "In-Reply-To", "References"} {
		if v, ok := headers[k]; ok {
			b.WriteString(k + ": " + v + "\r\n")
		}
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return model.RawMessage{UID: uid, Body: []byte(b.String())}
}
