package staging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/dhcgn/mail-to-joplin/model"
)

// Area is the on-disk staging directory holding one subdirectory per
// in-flight message.
type Area struct {
	fs   afero.Fs
	root string
}

func New(fs afero.Fs, root string) *Area {
	return &Area{fs: fs, root: filepath.Clean(root)}
}

// Reset clears whatever a previous run left behind and recreates the root.
func (a *Area) Reset() error {
	if err := a.fs.RemoveAll(a.root); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := a.fs.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	return nil
}

func (a *Area) Remove() error {
	if err := a.fs.RemoveAll(a.root); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

// MessageDir returns the directory for id, creating it if absent.
func (a *Area) MessageDir(id string) (string, error) {
	dir := filepath.Join(a.root, safeName(id, "message"))
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create message directory: %w", err)
	}
	return dir, nil
}

// WriteBody stores the note text as <id>.md; the note store derives the
// note title from that file name.
func (a *Area) WriteBody(id, body string) (string, error) {
	dir, err := a.MessageDir(id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, NoteFileName(id))
	if err := afero.WriteFile(a.fs, path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write body: %w", err)
	}
	return path, nil
}

// StageAttachments writes every attachment below the message directory and
// returns copies with Path set.
func (a *Area) StageAttachments(id string, attachments []model.Attachment) ([]model.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	dir, err := a.MessageDir(id)
	if err != nil {
		return nil, err
	}

	staged := make([]model.Attachment, len(attachments))
	used := map[string]int{NoteFileName(id): 1}
	for i, att := range attachments {
		name := uniqueName(safeName(att.Filename, fmt.Sprintf("attachment-%d", i+1)), used)
		path := filepath.Join(dir, name)
		if err := afero.WriteFile(a.fs, path, att.Content, 0o644); err != nil {
			return nil, fmt.Errorf("write attachment %q: %w", att.Filename, err)
		}
		att.Path = path
		staged[i] = att
	}
	return staged, nil
}

// NoteFileName is the staged body file name for a message id.
func NoteFileName(id string) string {
	return safeName(id, "message") + ".md"
}

func safeName(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return fallback
	}
	return name
}

func uniqueName(name string, used map[string]int) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if used[candidate] == 0 {
			used[candidate] = 1
			used[name] = n
			return candidate
		}
	}
}
