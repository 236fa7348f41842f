// internal/mail/parser.go
package mail

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomessagemail "github.com/emersion/go-message/mail"

	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

// Parse fully materializes a raw RFC 5322 message. Unknown charsets are
// tolerated; anything that prevents reading the header is a ParseError.
func Parse(raw model.RawMessage) (*model.ParsedMessage, error) {
	mr, err := gomessagemail.CreateReader(bytes.NewReader(raw.Body))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, appErrors.NewParseError(err)
	}
	defer mr.Close()

	h := mr.Header
	parsed := &model.ParsedMessage{UID: raw.UID}

	if subject, err := h.Subject(); err == nil {
		parsed.Subject = subject
	} else {
		parsed.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil {
		parsed.Date = date
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		parsed.MessageID = id
	} else {
		parsed.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}
	if ids := msgIDs(h, "In-Reply-To"); len(ids) > 0 {
		parsed.InReplyTo = ids[0]
	}
	parsed.References = msgIDs(h, "References")

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		parsed.FromAddress = model.NormalizeAddress(from[0].Address)
		parsed.FromName = from[0].Name
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, appErrors.NewParseError(err)
		}

		inline, ok := p.Header.(*gomessagemail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, appErrors.NewParseError(err)
		}
		switch {
		case contentType == "text/html" && parsed.HTMLBody == "":
			parsed.HTMLBody = string(body)
		case (contentType == "text/plain" || contentType == "") && parsed.TextBody == "":
			parsed.TextBody = string(body)
		}
	}

	parsed.TextBody = strings.TrimSpace(parsed.TextBody)
	return parsed, nil
}

// msgIDs reads a message-id list header, falling back to whitespace
// splitting for providers that emit ids without angle brackets.
func msgIDs(h gomessagemail.Header, key string) []string {
	if ids, err := h.MsgIDList(key); err == nil && len(ids) > 0 {
		return ids
	}
	var ids []string
	for _, f := range strings.Fields(h.Get(key)) {
		if id := strings.Trim(f, "<>,"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
