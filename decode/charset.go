package decode

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// lookupEncoding resolves a MIME charset label. A nil encoding with a nil
// error means the bytes are already UTF-8 (or a subset of it).
func lookupEncoding(label string) (encoding.Encoding, error) {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), `"`))
	switch label {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return nil, nil
	}
	if enc, err := htmlindex.Get(label); err == nil {
		return enc, nil
	}
	if enc, err := ianaindex.MIME.Encoding(label); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("unknown charset %q", label)
}

// wordCharsetReader serves mime.WordDecoder. Unknown labels pass the bytes
// through, and Decoder.Text replaces what is not valid UTF-8.
func wordCharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := lookupEncoding(label)
	if err != nil || enc == nil {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

func strictDecode(label string, payload []byte) (string, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return "", err
	}
	if enc == nil {
		if !utf8.Valid(payload) {
			return "", fmt.Errorf("invalid %s byte sequence at offset %d", label, invalidOffset(payload))
		}
		return string(payload), nil
	}
	out, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return string(out), nil
}

// lossyDecode never fails; invalid sequences become U+FFFD and unknown
// charsets are read as UTF-8.
func lossyDecode(label string, payload []byte) string {
	enc, err := lookupEncoding(label)
	if err != nil || enc == nil {
		return lossyUTF8(payload)
	}
	out, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return lossyUTF8(payload)
	}
	return lossyUTF8(out)
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
