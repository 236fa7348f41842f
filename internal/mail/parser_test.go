package mail_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/mail"
	"github.com/unclebandit/outreach-service/internal/model"
)

func raw(lines ...string) model.RawMessage {
	return model.RawMessage{UID: 7, Body: []byte(strings.Join(lines, "\r\n"))}
}

func TestParsePlainReply(t *testing.T) {
	msg, err := mail.Parse(raw(
		"From: \"Nguyen Van A\" <A.Nguyen@Partner.vn>",
		"To: sales@example.com",
		"Subject: Re: Invite to Forum",
		"Date: Mon, 02 Mar 2026 09:15:00 +0700",
		"Message-ID: <reply-1@partner.vn>",
		"In-Reply-To: <m2@example.com>",
		"References: <m1@example.com> <m2@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Thanks, count me in.",
		"",
	))
	require.NoError(t, err)

	assert.Equal(t, uint32(7), msg.UID)
	assert.Equal(t, "a.nguyen@partner.vn", msg.FromAddress)
	assert.Equal(t, "Nguyen Van A", msg.FromName)
	assert.Equal(t, "Re: Invite to Forum", msg.Subject)
	assert.Equal(t, "reply-1@partner.vn", msg.MessageID)
	assert.Equal(t, "m2@example.com", msg.InReplyTo)
	assert.Equal(t, []string{"m1@example.com", "m2@example.com"}, msg.References)
	assert.Equal(t, "Thanks, count me in.", msg.TextBody)
	assert.True(t, msg.Date.Equal(time.Date(2026, 3, 2, 2, 15, 0, 0, time.UTC)))
}

func TestParseMultipartAlternative(t *testing.T) {
	msg, err := mail.Parse(raw(
		"From: buyer@example.org",
		"Subject: =?UTF-8?B?UmU6IELDoW8gZ2nDoQ==?=",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=XYZ",
		"",
		"--XYZ",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain part",
		"--XYZ",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html part</p>",
		"--XYZ--",
		"",
	))
	require.NoError(t, err)

	assert.Equal(t, "Re: Báo giá", msg.Subject)
	assert.Equal(t, "plain part", msg.TextBody)
	assert.Contains(t, msg.HTMLBody, "<p>html part</p>")
	assert.Empty(t, msg.InReplyTo)
	assert.Empty(t, msg.References)
}

func TestParseWithoutFromLeavesAddressEmpty(t *testing.T) {
	msg, err := mail.Parse(raw(
		"Subject: hello",
		"",
		"body",
	))
	require.NoError(t, err)
	assert.Empty(t, msg.FromAddress)
}

func TestParseMalformedHeader(t *testing.T) {
	_, err := mail.Parse(raw(
		"this line is not a header",
		"",
		"body",
	))
	require.Error(t, err)
	assert.True(t, appErrors.IsParse(err))
}
