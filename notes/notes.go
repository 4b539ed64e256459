package notes

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dhcgn/mail-to-joplin/joplin"
	"github.com/dhcgn/mail-to-joplin/model"
)

// BodyWriter persists the note text where the store's import command can read it.
type BodyWriter interface {
	WriteBody(id, body string) (string, error)
}

// Adapter imports decoded messages into one notebook.
type Adapter struct {
	store    joplin.Store
	bodies   BodyWriter
	notebook string
	logger   *slog.Logger
}

func NewAdapter(store joplin.Store, bodies BodyWriter, notebook string, logger *slog.Logger) *Adapter {
	return &Adapter{store: store, bodies: bodies, notebook: notebook, logger: logger}
}

func (a *Adapter) Notebook() string {
	return a.notebook
}

// ImportNote never returns an error: every store failure ends up in the
// outcome and the log. Only the base import decides Success; attachments and
// the title are best effort once the note exists.
func (a *Adapter) ImportNote(ctx context.Context, msg model.DecodedMessage) model.ImportOutcome {
	var outcome model.ImportOutcome
	log := a.log(msg)

	file, err := a.bodies.WriteBody(msg.ID, msg.Body)
	if err != nil {
		log.Error("staging note text failed", "err", err)
		return outcome
	}

	res := a.store.Import(ctx, file, a.notebook)
	if res.Status == joplin.ImportNotebookMissing {
		log.Warn("target notebook missing, creating it; a restart of the Joplin CLI may be required", "notebook", a.notebook)
		if err := a.store.MkBook(ctx, a.notebook); err != nil {
			log.Error("creating notebook failed", "notebook", a.notebook, "err", err)
			return outcome
		}
		outcome.Recovered = true
		res = a.store.Import(ctx, file, a.notebook)
	}
	if res.Status != joplin.ImportOK {
		log.Error("import failed", "notebook", a.notebook, "status", res.Status.String(), "detail", res.Detail)
		return outcome
	}
	outcome.Success = true

	note := noteRef(file)
	for _, att := range msg.Attachments {
		if att.Path == "" {
			log.Error("attachment was never staged", "filename", att.Filename)
			continue
		}
		if err := a.store.Attach(ctx, note, att.Path); err != nil {
			log.Error("attaching file failed", "filename", att.Filename, "err", err)
			continue
		}
		outcome.Attachments++
	}

	if err := a.store.SetTitle(ctx, note, msg.Subject); err != nil {
		log.Error("setting note title failed", "err", err)
	}

	return outcome
}

func (a *Adapter) log(msg model.DecodedMessage) *slog.Logger {
	logger := a.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return logger.With("messageID", msg.ID, "sender", msg.Sender, "subject", msg.Subject)
}

// noteRef is how the store addresses a freshly imported note: its title,
// which the import derives from the file name.
func noteRef(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
