// Package joplintest provides an in-memory joplin.Store for tests.
package joplintest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dhcgn/mail-to-joplin/joplin"
)

// Store mimics the Joplin CLI: notebooks must exist before importing into
// them, and imported notes are addressed by their file name without extension.
type Store struct {
	mu sync.Mutex

	Notebooks []string
	Notes     map[string]*Note
	Calls     []string

	// ImportReplies, when non-empty, is consumed one entry per Import call
	// instead of simulating the notebook lookup.
	ImportReplies []joplin.ImportResult
	MkBookErr     error
	AttachErr     map[string]error
	SetTitleErr   error
	ListErr       error
	SyncErr       error
}

type Note struct {
	Notebook    string
	File        string
	Title       string
	Attachments []string
}

func New(notebooks ...string) *Store {
	return &Store{Notebooks: notebooks, Notes: make(map[string]*Note)}
}

func (s *Store) Import(_ context.Context, file, notebook string) joplin.ImportResult {
	s.record("import", file, notebook)
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ImportReplies) > 0 {
		res := s.ImportReplies[0]
		s.ImportReplies = s.ImportReplies[1:]
		if res.Status == joplin.ImportOK {
			s.addNote(file, notebook)
		}
		return res
	}
	if !slices.Contains(s.Notebooks, notebook) {
		return joplin.ImportResult{Status: joplin.ImportNotebookMissing, Detail: fmt.Sprintf("Cannot find %q.", notebook)}
	}
	s.addNote(file, notebook)
	return joplin.ImportResult{Status: joplin.ImportOK}
}

func (s *Store) MkBook(_ context.Context, name string) error {
	s.record("mkbook", name)
	if s.MkBookErr != nil {
		return s.MkBookErr
	}
	s.mu.Lock()
	s.Notebooks = append(s.Notebooks, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) Attach(_ context.Context, note, file string) error {
	s.record("attach", note, file)
	if err := s.AttachErr[filepath.Base(file)]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.Notes[note]
	if !ok {
		return joplin.ErrNoteNotFound
	}
	n.Attachments = append(n.Attachments, file)
	return nil
}

func (s *Store) SetTitle(_ context.Context, note, title string) error {
	s.record("set-title", note, title)
	if s.SetTitleErr != nil {
		return s.SetTitleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.Notes[note]
	if !ok {
		return joplin.ErrNoteNotFound
	}
	n.Title = title
	return nil
}

func (s *Store) ListNotebooks(_ context.Context) ([]string, error) {
	s.record("ls")
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Notebooks), nil
}

func (s *Store) RemoveBook(_ context.Context, name string) error {
	s.record("rmbook", name)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.Notebooks, name)
	if idx < 0 {
		return errors.New("notebook not found")
	}
	s.Notebooks = slices.Delete(s.Notebooks, idx, idx+1)
	return nil
}

func (s *Store) Sync(_ context.Context) error {
	s.record("sync")
	return s.SyncErr
}

// Count returns how often the named command was invoked.
func (s *Store) Count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == command || strings.HasPrefix(c, command+" ") {
			n++
		}
	}
	return n
}

func (s *Store) addNote(file, notebook string) {
	base := filepath.Base(file)
	ref := strings.TrimSuffix(base, filepath.Ext(base))
	s.Notes[ref] = &Note{Notebook: notebook, File: file, Title: ref}
}

func (s *Store) record(parts ...string) {
	s.mu.Lock()
	s.Calls = append(s.Calls, strings.Join(parts, " "))
	s.mu.Unlock()
}

var _ joplin.Store = (*Store)(nil)
