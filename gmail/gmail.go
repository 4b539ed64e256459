package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dhcgn/mail-to-joplin/model"
)

const (
	user        = "me"
	unreadQuery = "is:unread"
)

// Source reads unread mail from a Gmail account through the REST API.
type Source struct {
	srv    *gmailapi.Service
	logger *slog.Logger
}

// NewSource builds a Source on an authorized HTTP client. Extra options are
// passed to the API client.
func NewSource(ctx context.Context, httpClient *http.Client, logger *slog.Logger, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{srv: srv, logger: logger}, nil
}

// ListUnread pages through every message matching is:unread.
func (s *Source) ListUnread(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.srv.Users.Messages.List(user).
		Q(unreadQuery).
		Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
			for _, m := range page.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}
	s.logger.Debug("gmail listed unread", "count", len(ids))
	return ids, nil
}

func (s *Source) FetchRaw(ctx context.Context, id string) (model.RawMessage, error) {
	msg, err := s.srv.Users.Messages.Get(user, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("get message %s: %w", id, err)
	}
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("message %s: %w", id, err)
	}
	return model.RawMessage{ID: id, Raw: raw}, nil
}

func (s *Source) Trash(ctx context.Context, id string) error {
	if _, err := s.srv.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

// decodeRaw accepts the URL-safe base64 Gmail uses, padded or not.
func decodeRaw(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return b, nil
}
