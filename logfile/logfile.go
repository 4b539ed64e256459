// Package logfile keeps a log file below a fixed size by dropping its oldest
// lines.
package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const DefaultMaxBytes = 5000

// File is an io.Writer safe for concurrent use. Each Write is expected to be
// one or more complete lines, which is how slog handlers write.
type File struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	maxBytes int
	buf      []byte
}

// Open loads the existing log (if any) and trims it to maxBytes. A
// non-positive maxBytes means DefaultMaxBytes.
func Open(fs afero.Fs, path string, maxBytes int) (*File, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	existing, err := afero.ReadFile(fs, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	f := &File{fs: fs, path: path, maxBytes: maxBytes, buf: existing}
	f.trim()
	if err := f.flush(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, p...)
	f.trim()
	if err := f.flush(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// trim drops whole lines from the front until the content fits. A single
// line longer than the limit keeps only its tail.
func (f *File) trim() {
	for len(f.buf) > f.maxBytes {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 || idx == len(f.buf)-1 {
			f.buf = f.buf[len(f.buf)-f.maxBytes:]
			break
		}
		f.buf = f.buf[idx+1:]
	}
	f.buf = append([]byte(nil), f.buf...)
}

func (f *File) flush() error {
	if err := afero.WriteFile(f.fs, f.path, f.buf, 0o644); err != nil {
		return fmt.Errorf("write log file: %w", err)
	}
	return nil
}
