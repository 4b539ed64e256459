package joplin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

var ErrNoteNotFound = errors.New("joplin: note not found")

// ImportStatus tags the outcome of an import command.
type ImportStatus int

const (
	ImportOK ImportStatus = iota
	ImportNotebookMissing
	ImportFailed
)

func (s ImportStatus) String() string {
	switch s {
	case ImportOK:
		return "ok"
	case ImportNotebookMissing:
		return "notebook_missing"
	case ImportFailed:
		return "failed"
	default:
		return fmt.Sprintf("ImportStatus(%d)", int(s))
	}
}

type ImportResult struct {
	Status ImportStatus
	Detail string
}

// Store is the command surface of the note store.
type Store interface {
	Import(ctx context.Context, file, notebook string) ImportResult
	MkBook(ctx context.Context, name string) error
	Attach(ctx context.Context, note, file string) error
	SetTitle(ctx context.Context, note, title string) error
	ListNotebooks(ctx context.Context) ([]string, error)
	RemoveBook(ctx context.Context, name string) error
	Sync(ctx context.Context) error
}

type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// CLI drives the Joplin terminal application. Its textual output is the only
// failure signal for missing notebooks and notes, so the literal match lives
// here and nowhere else.
type CLI struct {
	bin     string
	profile string
	logger  *slog.Logger
	run     runFunc
}

func NewCLI(bin, profile string, logger *slog.Logger) *CLI {
	if bin == "" {
		bin = "joplin"
	}
	return &CLI{bin: bin, profile: profile, logger: logger, run: execRun}
}

func (c *CLI) Import(ctx context.Context, file, notebook string) ImportResult {
	out, err := c.exec(ctx, "import", file, notebook)
	if notFound(out, notebook) {
		return ImportResult{Status: ImportNotebookMissing, Detail: strings.TrimSpace(string(out))}
	}
	if err != nil {
		return ImportResult{Status: ImportFailed, Detail: detail(out, err)}
	}
	return ImportResult{Status: ImportOK}
}

func (c *CLI) MkBook(ctx context.Context, name string) error {
	out, err := c.exec(ctx, "mkbook", name)
	if err != nil {
		return fmt.Errorf("mkbook %q: %s", name, detail(out, err))
	}
	return nil
}

func (c *CLI) Attach(ctx context.Context, note, file string) error {
	out, err := c.exec(ctx, "attach", note, file)
	if notFound(out, note) {
		return fmt.Errorf("attach %q: %w", file, ErrNoteNotFound)
	}
	if err != nil {
		return fmt.Errorf("attach %q: %s", file, detail(out, err))
	}
	return nil
}

func (c *CLI) SetTitle(ctx context.Context, note, title string) error {
	out, err := c.exec(ctx, "set", note, "title", title)
	if notFound(out, note) {
		return fmt.Errorf("set title: %w", ErrNoteNotFound)
	}
	if err != nil {
		return fmt.Errorf("set title: %s", detail(out, err))
	}
	return nil
}

func (c *CLI) ListNotebooks(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, "ls", "/")
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %s", detail(out, err))
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, scanner.Err()
}

func (c *CLI) RemoveBook(ctx context.Context, name string) error {
	out, err := c.exec(ctx, "rmbook", name, "--force")
	if err != nil {
		return fmt.Errorf("rmbook %q: %s", name, detail(out, err))
	}
	return nil
}

func (c *CLI) Sync(ctx context.Context) error {
	out, err := c.exec(ctx, "sync")
	if err != nil {
		return fmt.Errorf("sync: %s", detail(out, err))
	}
	return nil
}

func (c *CLI) exec(ctx context.Context, args ...string) ([]byte, error) {
	if c.profile != "" {
		args = append([]string{"--profile", c.profile}, args...)
	}
	out, err := c.run(ctx, c.bin, args...)
	if c.logger != nil {
		c.logger.Debug("joplin command", "args", args, "output", strings.TrimSpace(string(out)), "err", err)
	}
	return out, err
}

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}

// notFound matches Joplin's `Cannot find "<name>".` reply.
func notFound(out []byte, name string) bool {
	want := `Cannot find "` + name + `".`
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func detail(out []byte, err error) string {
	text := strings.TrimSpace(string(out))
	switch {
	case err == nil:
		return text
	case text == "":
		return err.Error()
	default:
		return fmt.Sprintf("%v: %s", err, text)
	}
}
