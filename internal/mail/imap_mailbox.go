// internal/mail/imap_mailbox.go
package mail

import (
	"context"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/config"
	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

const defaultIMAPTimeout = 30 * time.Second

// IMAPMailbox reads the shared reply inbox. Every call opens its own
// session so the poll loop and operator requests never share a connection.
type IMAPMailbox struct {
	cfg     config.IMAPConfig
	timeout time.Duration
	logger  *zap.Logger
}

func NewIMAPMailbox(cfg config.IMAPConfig, logger *zap.Logger) *IMAPMailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPMailbox{cfg: cfg, timeout: defaultIMAPTimeout, logger: logger}
}

func (m *IMAPMailbox) CheckConfig() error {
	if m.cfg.Host == "" {
		return appErrors.NewConfigurationError("imap", "EMAIL_IMAP_HOST is empty")
	}
	if m.cfg.User == "" || m.cfg.Password == "" {
		return appErrors.NewConfigurationError("imap", "mailbox credentials are empty")
	}
	return nil
}

// session dials, logs in and selects the configured mailbox. The returned
// close func logs out and detaches the ctx watcher.
func (m *IMAPMailbox) session(ctx context.Context, readOnly bool) (*client.Client, func(), error) {
	if err := m.CheckConfig(); err != nil {
		return nil, nil, err
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var (
		c   *client.Client
		err error
	)
	if m.cfg.TLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, nil, appErrors.NewTransportError("imap dial", err)
	}
	c.Timeout = m.timeout

	// go-imap v1 has no context support; closing the connection unblocks any pending command
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	closeFn := func() {
		stop()
		if err := c.Logout(); err != nil {
			m.logger.Debug("imap logout", zap.Error(err))
		}
	}

	if err := c.Login(m.cfg.User, m.cfg.Password); err != nil {
		closeFn()
		return nil, nil, appErrors.NewTransportError("imap login", err)
	}
	if _, err := c.Select(m.cfg.Mailbox, readOnly); err != nil {
		closeFn()
		return nil, nil, appErrors.NewTransportError("imap select "+m.cfg.Mailbox, err)
	}
	return c, closeFn, nil
}

// FetchUnseen returns up to max unread messages with a UID above afterUID
// received on or after since (day granularity, as IMAP SEARCH SINCE). The
// oldest messages are returned first so a backlog drains in arrival order.
// Bodies are fetched with PEEK so the Seen flag is left untouched.
func (m *IMAPMailbox) FetchUnseen(ctx context.Context, since *time.Time, afterUID uint32, max int) ([]model.RawMessage, error) {
	c, closeFn, err := m.session(ctx, true)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if since != nil {
		criteria.Since = *since
	}
	if afterUID > 0 {
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(afterUID+1, 0)
	}
	found, err := c.UidSearch(criteria)
	if err != nil {
		return nil, appErrors.NewTransportError("imap search", err)
	}
	// "n:*" still matches the highest UID when n is past it
	uids := found[:0]
	for _, uid := range found {
		if uid > afterUID {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}
	return m.fetch(c, uids)
}

func (m *IMAPMailbox) fetch(c *client.Client, uids []uint32) ([]model.RawMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []model.RawMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			m.logger.Warn("imap message without body", zap.Uint32("uid", msg.Uid))
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			m.logger.Warn("read imap body", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		out = append(out, model.RawMessage{UID: msg.Uid, Body: b})
	}
	if err := <-done; err != nil {
		return out, appErrors.NewTransportError("imap fetch", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// MarkSeen sets \Seen on the given messages.
func (m *IMAPMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	c, closeFn, err := m.session(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return appErrors.NewTransportError("imap store", err)
	}
	return nil
}

// CountBySubject counts messages whose subject contains subject. The match
// runs server side and is case-insensitive.
func (m *IMAPMailbox) CountBySubject(ctx context.Context, subject string, since *time.Time, includeRead bool) (int, error) {
	c, closeFn, err := m.session(ctx, true)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{"Subject": {subject}}
	if !includeRead {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if since != nil {
		criteria.Since = *since
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return 0, appErrors.NewTransportError("imap search", err)
	}
	return len(uids), nil
}
