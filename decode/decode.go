package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"

	"github.com/dhcgn/mail-to-joplin/model"
)

const defaultCharset = "utf-8"

// Decoder turns raw RFC 5322 messages into model.DecodedMessage values.
type Decoder struct {
	logger *slog.Logger
	words  *mime.WordDecoder
}

func New(logger *slog.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		words:  &mime.WordDecoder{CharsetReader: wordCharsetReader},
	}
}

// Decode never fails: header problems fall back to raw values and body
// problems are annotated into the body text.
func (d *Decoder) Decode(raw model.RawMessage) model.DecodedMessage {
	out := model.DecodedMessage{ID: raw.ID, Subject: model.NoSubject}

	entity, err := message.Read(bytes.NewReader(raw.Raw))
	if err != nil && !tolerable(err) {
		out.BodyErr = fmt.Errorf("parse message: %w", err)
		out.Body = annotate(out.BodyErr, lossyUTF8(raw.Raw))
		d.logDecodeError(out)
		return out
	}

	out.Subject = d.subject(entity.Header.Get("Subject"))
	out.Sender = Sender(entity.Header.Get("From"))

	var bodyFound bool
	walkErr := walk(entity, err, func(part *message.Entity, partErr error) error {
		mediaType, _, _ := part.Header.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		isBody := !bodyFound && mediaType == "text/plain"
		isAttachment := part.Header.Get("Content-Disposition") != ""
		if !isBody && !isAttachment {
			return nil
		}

		payload, readErr := io.ReadAll(part.Body)

		if isBody {
			bodyFound = true
			out.Body, out.BodyErr = readText(part, payload, partErr, readErr)
			if out.BodyErr != nil {
				d.logDecodeError(out)
			}
		}
		if isAttachment {
			att := d.attachment(part, payload, len(out.Attachments)+1)
			if readErr != nil && d.logger != nil {
				d.logger.Error("attachment payload truncated", "messageID", out.ID, "filename", att.Filename, "err", readErr)
			}
			out.Attachments = append(out.Attachments, att)
		}
		return nil
	})
	if walkErr != nil && d.logger != nil {
		d.logger.Error("mime structure damaged, remaining parts skipped", "messageID", out.ID, "sender", out.Sender, "subject", out.Subject, "err", walkErr)
	}

	return out
}

func (d *Decoder) subject(value string) string {
	subject := strings.TrimSpace(d.Text(value))
	if subject == "" {
		return model.NoSubject
	}
	return subject
}

// Text decodes RFC 2047 encoded-words. Words in an unknown charset are read
// as UTF-8 with invalid sequences replaced; malformed words stay as they are.
func (d *Decoder) Text(value string) string {
	if !strings.Contains(value, "=?") {
		return value
	}
	decoded, err := d.words.DecodeHeader(value)
	if err != nil {
		return value
	}
	return lossyUTF8([]byte(decoded))
}

// Sender extracts the bare address between the first '<' and the next '>'.
// Without brackets the whole header value is used.
func Sender(from string) string {
	from = strings.TrimSpace(from)
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start+1:], ">"); end >= 0 {
			from = from[start+1 : start+1+end]
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

func (d *Decoder) attachment(part *message.Entity, content []byte, n int) model.Attachment {
	mediaType, typeParams, _ := part.Header.ContentType()
	_, dispParams, _ := part.Header.ContentDisposition()

	filename := dispParams["filename"]
	if filename == "" {
		filename = typeParams["name"]
	}
	filename = strings.TrimSpace(d.Text(filename))
	if filename == "" {
		filename = fallbackFilename(mediaType, n)
	}

	return model.Attachment{
		Filename:    filename,
		ContentType: mediaType,
		Content:     content,
	}
}

func (d *Decoder) logDecodeError(msg model.DecodedMessage) {
	if d.logger == nil {
		return
	}
	d.logger.Error("trouble decoding message body", "messageID", msg.ID, "sender", msg.Sender, "subject", msg.Subject, "err", msg.BodyErr)
}

// walk visits every non-multipart entity depth-first.
func walk(e *message.Entity, entErr error, fn func(*message.Entity, error) error) error {
	mr := e.MultipartReader()
	if mr == nil {
		return fn(e, entErr)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !tolerable(err) {
			return err
		}
		if err := walk(part, err, fn); err != nil {
			return err
		}
	}
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// readText converts a transfer-decoded text payload to UTF-8. go-message
// has no CharsetReader registered, so the payload is still in the part's
// declared charset.
func readText(part *message.Entity, payload []byte, partErr, readErr error) (string, error) {
	_, params, _ := part.Header.ContentType()
	charset := params["charset"]
	if charset == "" {
		charset = defaultCharset
	}

	var err error
	switch {
	case message.IsUnknownEncoding(partErr):
		err = partErr
	case readErr != nil:
		err = fmt.Errorf("read body: %w", readErr)
	}
	if err != nil {
		return annotate(err, lossyDecode(charset, payload)), err
	}

	text, err := strictDecode(charset, payload)
	if err != nil {
		return annotate(err, lossyDecode(charset, payload)), err
	}
	return text, nil
}

func annotate(err error, text string) string {
	return fmt.Sprintf(" # Decode-Error!\n\"%v\".\n%s", err, text)
}

func fallbackFilename(mediaType string, n int) string {
	name := fmt.Sprintf("attachment-%d", n)
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		name += exts[0]
	}
	return name
}

func lossyUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
