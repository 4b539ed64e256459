package mbox

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message/textproto"
	"github.com/spf13/afero"

	"github.com/dhcgn/mail-to-joplin/model"
)

var ErrUnknownMessage = errors.New("message id not found in mbox")

// Tracker remembers which messages were already trashed.
type Tracker interface {
	Processed(id string) bool
	MarkProcessed(id, subject string) error
	Flush() error
}

type Options struct {
	Path string
}

// Source treats an mbox archive as a mailbox. A message is unread until it
// is trashed, which only records its id in the tracker; the archive itself
// is never modified. Ids are the hex SHA-256 of the raw message.
type Source struct {
	fs      afero.Fs
	path    string
	tracker Tracker
	logger  *slog.Logger

	messages map[string]entry
}

type entry struct {
	raw     []byte
	subject string
}

func NewSource(fs afero.Fs, opts Options, tracker Tracker, logger *slog.Logger) (*Source, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{fs: fs, path: path, tracker: tracker, logger: logger}, nil
}

// ListUnread reads the whole archive and returns the ids not yet trashed,
// in file order. Identical messages share an id and are listed once.
func (s *Source) ListUnread(ctx context.Context) ([]string, error) {
	s.messages = make(map[string]entry)

	var ids []string
	skipped := 0
	err := Scan(ctx, s.fs, s.path, func(raw []byte) error {
		id := MessageID(raw)
		if _, seen := s.messages[id]; seen {
			return nil
		}
		s.messages[id] = entry{raw: raw, subject: rawSubject(raw)}

		if s.tracker.Processed(id) {
			skipped++
			return nil
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("mbox scanned", "path", s.path, "unread", len(ids), "alreadyTrashed", skipped)
	return ids, nil
}

// Scan calls fn with the raw bytes of every message in the archive.
func Scan(ctx context.Context, fs afero.Fs, path string, fn func(raw []byte) error) error {
	file, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}

func (s *Source) FetchRaw(_ context.Context, id string) (model.RawMessage, error) {
	e, ok := s.messages[id]
	if !ok {
		return model.RawMessage{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	return model.RawMessage{ID: id, Raw: e.raw}, nil
}

// Trash marks the message as processed and flushes the tracker so a crash
// cannot import it twice.
func (s *Source) Trash(_ context.Context, id string) error {
	e, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if err := s.tracker.MarkProcessed(id, e.subject); err != nil {
		return err
	}
	return s.tracker.Flush()
}

// MessageID is the id the source assigns to a raw message.
func MessageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func rawSubject(raw []byte) string {
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	return header.Get("Subject")
}
