package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileName is the tracker's file inside the state directory.
const FileName = "processed.jsonl"

// FileTracker persists the ids of trashed messages so later runs treat them
// as read.
type FileTracker struct {
	mu        sync.Mutex
	processed map[string]struct{}
	fs        afero.Fs
	path      string
	writer    *bufio.Writer
	file      afero.File
	now       func() time.Time
}

type fileRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	TrashedAt time.Time `json:"trashed_at"`
}

func NewFileTracker(fs afero.Fs, stateDir string) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := fs.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		processed: make(map[string]struct{}),
		fs:        fs,
		path:      filepath.Join(stateDir, FileName),
		now:       time.Now,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	tracker.file = file
	tracker.writer = bufio.NewWriterSize(file, 64*1024) // 64KB buffer

	return tracker, nil
}

// Processed reports whether id was recorded by this or an earlier run.
func (f *FileTracker) Processed(id string) bool {
	if id == "" {
		return false
	}

	f.mu.Lock()
	_, ok := f.processed[id]
	f.mu.Unlock()
	return ok
}

func (f *FileTracker) load() error {
	file, err := f.fs.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.ID == "" {
			continue
		}

		f.processed[record.ID] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

// MarkProcessed records id once; repeated calls are no-ops.
func (f *FileTracker) MarkProcessed(id, subject string) error {
	if id == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.processed[id]; exists {
		return nil
	}
	if f.writer == nil {
		return fmt.Errorf("state file %s is closed", f.path)
	}

	record := fileRecord{ID: id, Subject: subject, TrashedAt: f.now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	f.processed[id] = struct{}{}
	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil
	f.writer = nil

	return firstErr
}
