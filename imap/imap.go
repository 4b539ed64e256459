package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mail-to-joplin/model"
)

var (
	ErrInvalidID       = errors.New("message id is not an IMAP UID")
	ErrMessageNotFound = errors.New("message not found in mailbox")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	TrashMailbox       string
}

// Source reads unread messages from one IMAP mailbox. Message ids are UIDs
// rendered in decimal. The connection is opened on first use and kept until
// Close.
type Source struct {
	opts    Options
	logger  *slog.Logger
	client  *imapclient.Client
	cleanup func()
}

func NewSource(opts Options, logger *slog.Logger) (*Source, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{opts: opts, logger: logger}, nil
}

// ListUnread returns the UIDs of every message without the \Seen flag.
// Messages already flagged \Deleted are skipped.
func (s *Source) ListUnread(ctx context.Context) ([]string, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	criteria := &imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen, imapv2.FlagDeleted},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unread in %s: %w", s.mailbox(), err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchRaw downloads the full RFC 5322 message with BODY.PEEK[] so the
// message stays unread until Trash.
func (s *Source) FetchRaw(ctx context.Context, id string) (model.RawMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return model.RawMessage{}, err
	}
	client, err := s.connect(ctx)
	if err != nil {
		return model.RawMessage{}, err
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	cmd := client.Fetch(imapv2.UIDSetNum(uid), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return model.RawMessage{}, fmt.Errorf("fetch uid %d: %w", uid, err)
		}
		return model.RawMessage{}, fmt.Errorf("uid %d: %w", uid, ErrMessageNotFound)
	}
	buf, err := msg.Collect()
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("collect uid %d: %w", uid, err)
	}
	if err := cmd.Close(); err != nil {
		return model.RawMessage{}, fmt.Errorf("fetch uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return model.RawMessage{}, fmt.Errorf("uid %d: server returned no body", uid)
	}
	return model.RawMessage{ID: id, Raw: raw}, nil
}

// Trash moves the message into the trash mailbox. Servers without MOVE get
// a COPY instead. The source message is then flagged \Deleted and, when the
// server supports UIDPLUS, expunged by UID so no other message is touched.
func (s *Source) Trash(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}

	set := imapv2.UIDSetNum(uid)
	caps := client.Caps()
	if trash := s.opts.TrashMailbox; trash != "" && trash != s.mailbox() {
		if caps.Has(imapv2.CapMove) {
			if _, err := client.Move(set, trash).Wait(); err != nil {
				return fmt.Errorf("move uid %d to %s: %w", uid, trash, err)
			}
			s.logger.Debug("imap message moved", "uid", uid, "mailbox", trash)
			return nil
		}
		if _, err := client.Copy(set, trash).Wait(); err != nil {
			return fmt.Errorf("copy uid %d to %s: %w", uid, trash, err)
		}
		s.logger.Debug("imap message copied", "uid", uid, "mailbox", trash)
	}

	store := client.Store(set, &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagDeleted},
	}, nil)
	if err := store.Close(); err != nil {
		return fmt.Errorf("flag uid %d deleted: %w", uid, err)
	}

	if !caps.Has(imapv2.CapUIDPlus) {
		s.logger.Debug("imap server lacks UIDPLUS, message left flagged deleted", "uid", uid)
		return nil
	}
	if err := client.UIDExpunge(set).Close(); err != nil {
		return fmt.Errorf("expunge uid %d: %w", uid, err)
	}
	return nil
}

// Close logs out and releases the connection, if one was opened.
func (s *Source) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
		s.client = nil
	}
	return nil
}

func (s *Source) connect(ctx context.Context) (*imapclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client, s.cleanup = client, cleanup
	return client, nil
}

func (s *Source) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if trash := s.opts.TrashMailbox; trash != "" && trash != s.mailbox() {
		if err := s.ensureMailbox(client, trash); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	if _, err := client.Select(s.mailbox(), nil).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("select %s: %w", s.mailbox(), err)
	}

	s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "mailbox", s.mailbox(), "tls", s.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (s *Source) mailbox() string {
	if s.opts.Mailbox == "" {
		return "INBOX"
	}
	return s.opts.Mailbox
}

func (s *Source) ensureMailbox(client *imapclient.Client, name string) error {
	cmd := client.Create(name, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) {
			if respErr.Code == imapv2.ResponseCodeAlreadyExists {
				s.logger.Debug("imap mailbox already exists", "mailbox", name)
				return nil
			}
		}
		return fmt.Errorf("ensure mailbox %s: %w", name, err)
	}

	s.logger.Info("imap mailbox created", "mailbox", name)
	return nil
}

func parseUID(id string) (imapv2.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return imapv2.UID(n), nil
}
