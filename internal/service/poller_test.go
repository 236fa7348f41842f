package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/repository"
	"github.com/unclebandit/outreach-service/internal/service"
)

func newPoller(t *testing.T, store *repository.MemoryStore, box *MockMailbox) *service.Poller {
	return &service.Poller{
		Mailbox:    box,
		Correlator: newCorrelator(store),
		ReplyRepo:  store.Replies(),
		Logger:     zaptest.NewLogger(t),
		Timeout:    5 * time.Second,
	}
}

func inboxFixture() *MockMailbox {
	return &MockMailbox{messages: []model.RawMessage{
		rawMessage(1, map[string]string{
			"From":        "Buyer <buyer@partner.vn>",
			"Subject":     "Re: Invite to Forum - 2nd follow-up",
			"Date":        "Thu, 05 Mar 2026 10:00:00 +0700",
			"Message-ID":  "<r1@partner.vn>",
			"In-Reply-To": "<m2@x>",
		}, "Count me in"),
		rawMessage(2, map[string]string{
			"From":       "promo@nowhere.com",
			"Subject":    "Big sale",
			"Date":       "Thu, 05 Mar 2026 11:00:00 +0700",
			"Message-ID": "<promo-1@nowhere.com>",
		}, "Buy now"),
		rawMessage(3, map[string]string{
			"Subject":    "Re: Invite to Forum",
			"Message-ID": "<anon@x>",
		}, "who am I"),
		{UID: 4, Body: []byte("garbage without headers\r\n\r\n")},
		rawMessage(5, map[string]string{
			"From":       "buyer2@partner.vn",
			"Subject":    "RE: Invite to Forum",
			"Date":       "Thu, 05 Mar 2026 12:00:00 +0700",
			"Message-ID": "<r5@partner.vn>",
		}, "Interested"),
	}}
}

func TestPollCorrelatesAndIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	p := newPoller(t, store, inboxFixture())

	first, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Fetched)
	assert.Equal(t, 1, first.ParseErrors)
	assert.Equal(t, 1, first.NoSender)
	assert.Equal(t, 3, first.Processed)
	assert.Equal(t, 2, first.Matched)
	assert.Equal(t, 1, first.Unmatched)

	replies, err := store.Replies().List(context.Background(), model.ReplyFilter{})
	require.NoError(t, err)
	require.Len(t, replies, 2)

	// a restarted poller has no checkpoint and reads the same unread messages
	second, err := newPoller(t, store, p.Mailbox.(*MockMailbox)).Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Fetched)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 2, second.Duplicates)

	third, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Zero(t, third.Fetched, "consumed messages are behind the checkpoint")

	replies, err = store.Replies().List(context.Background(), model.ReplyFilter{})
	require.NoError(t, err)
	assert.Len(t, replies, 2, "re-polling must not add replies")
}

func TestPollSubjectFilterAndSince(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	p := newPoller(t, store, inboxFixture())

	since := time.Date(2026, 3, 5, 3, 30, 0, 0, time.UTC)
	result, err := p.Poll(context.Background(), service.PollOptions{Since: &since, SubjectFilter: "invite"})
	require.NoError(t, err)

	// uid 1 is before since, uid 2 fails the subject filter
	assert.Equal(t, 2, result.Filtered)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Matched)
}

func TestPollMarksConsumedMessagesSeen(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	box := inboxFixture()
	p := newPoller(t, store, box)
	p.MarkSeen = true

	_, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	for uid := uint32(1); uid <= 5; uid++ {
		assert.True(t, box.isSeen(uid), "uid %d", uid)
	}

	restarted := newPoller(t, store, box)
	again, err := restarted.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Zero(t, again.Fetched)
}

func TestPollSubjectFilterLeavesOtherMessagesUnread(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	box := inboxFixture()
	p := newPoller(t, store, box)
	p.MarkSeen = true

	result, err := p.Poll(context.Background(), service.PollOptions{SubjectFilter: "sale"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unmatched)
	assert.True(t, box.isSeen(2))
	assert.False(t, box.isSeen(1))
	assert.False(t, box.isSeen(5))

	// a filtered poll does not move the checkpoint
	all, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Matched)
}

func TestPollNoiseDoesNotStarveReplies(t *testing.T) {
	spam := func(uid uint32) model.RawMessage {
		return rawMessage(uid, map[string]string{
			"From":       "promo@nowhere.com",
			"Subject":    "Big sale",
			"Message-ID": fmt.Sprintf("<promo-%d@nowhere.com>", uid),
		}, "Buy now")
	}
	reply := func(uid uint32) model.RawMessage {
		return rawMessage(uid, map[string]string{
			"From":        "buyer@partner.vn",
			"Subject":     "Re: Invite to Forum - 2nd follow-up",
			"Message-ID":  "<r1@partner.vn>",
			"In-Reply-To": "<m2@x>",
		}, "Count me in")
	}

	tests := []struct {
		name     string
		messages []model.RawMessage
		markSeen bool
	}{
		{"reply older than noise", []model.RawMessage{reply(1), spam(2), spam(3)}, false},
		{"reply newer than noise", []model.RawMessage{spam(1), spam(2), reply(3)}, false},
		{"reply newer than noise, marking seen", []model.RawMessage{spam(1), spam(2), reply(3)}, true},
		{"noise beyond one batch", []model.RawMessage{spam(1), spam(2), spam(3), spam(4), spam(5), reply(6)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			seedForumThread(t, store)
			p := newPoller(t, store, &MockMailbox{messages: tt.messages})
			p.MarkSeen = tt.markSeen

			matched := 0
			for i := 0; i < len(tt.messages); i++ {
				result, err := p.Poll(context.Background(), service.PollOptions{MaxMessages: 2})
				require.NoError(t, err)
				matched += result.Matched
			}
			assert.Equal(t, 1, matched)

			replies, err := store.Replies().List(context.Background(), model.ReplyFilter{})
			require.NoError(t, err)
			require.Len(t, replies, 1)
			assert.Equal(t, "B", replies[0].CorrelatedOutboundID)
		})
	}
}

type failingReplyLookup struct {
	repository.InboundReplyRepositoryInterface
	fail bool
}

func (f *failingReplyLookup) ExistsByProviderMessageID(ctx context.Context, messageID string) (bool, error) {
	if f.fail {
		return false, errors.New("connection reset")
	}
	return f.InboundReplyRepositoryInterface.ExistsByProviderMessageID(ctx, messageID)
}

func TestPollRetriesMessagesAfterStoreError(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	box := inboxFixture()
	lookup := &failingReplyLookup{InboundReplyRepositoryInterface: store.Replies(), fail: true}
	p := newPoller(t, store, box)
	p.ReplyRepo = lookup
	p.MarkSeen = true

	first, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Zero(t, first.Matched)
	assert.False(t, box.isSeen(1), "a failed lookup leaves the message unread")
	assert.True(t, box.isSeen(4), "unparseable messages are consumed")

	lookup.fail = false
	second, err := p.Poll(context.Background(), service.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Matched)
}

func TestPollRespectsMaxMessages(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	p := newPoller(t, store, inboxFixture())

	result, err := p.Poll(context.Background(), service.PollOptions{MaxMessages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
}

func TestPollErrors(t *testing.T) {
	store := repository.NewMemoryStore()

	box := &MockMailbox{notReady: appErrors.NewConfigurationError("imap", "EMAIL_IMAP_HOST is empty")}
	_, err := newPoller(t, store, box).Poll(context.Background(), service.PollOptions{})
	assert.True(t, appErrors.IsConfiguration(err))

	box = &MockMailbox{fetchErr: appErrors.NewTransportError("imap login", errors.New("bad credentials"))}
	_, err = newPoller(t, store, box).Poll(context.Background(), service.PollOptions{})
	assert.True(t, appErrors.IsTransport(err))
}

func TestPollTimeoutProcessesFewer(t *testing.T) {
	store := repository.NewMemoryStore()
	seedForumThread(t, store)
	p := newPoller(t, store, inboxFixture())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p.Parse = func(raw model.RawMessage) (*model.ParsedMessage, error) {
		calls++
		cancel()
		return &model.ParsedMessage{UID: raw.UID, FromAddress: "x@y.z", Subject: "noise"}, nil
	}

	result, err := p.Poll(ctx, service.PollOptions{})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, 1, calls)
}

func TestCountBySubject(t *testing.T) {
	p := newPoller(t, repository.NewMemoryStore(), &MockMailbox{count: 4})

	n, err := p.CountBySubject(context.Background(), "Invite", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = p.CountBySubject(context.Background(), " ", nil, true)
	assert.True(t, appErrors.IsValidation(err))
}

func TestPollRunStopsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	p := newPoller(t, store, &MockMailbox{})
	p.Lookback = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
}
