package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dhcgn/mail-to-joplin/filter"
	"github.com/dhcgn/mail-to-joplin/model"
	"github.com/dhcgn/mail-to-joplin/stats"
)

// DebugNotebook receives every import while debug mode is on.
const DebugNotebook = "_debug"

var (
	ErrMessageIDMissing = errors.New("mail source returned an empty message id")
	ErrNotebookMismatch = errors.New("importer does not target the debug notebook")
)

// MailSource is where unread messages come from.
type MailSource interface {
	ListUnread(ctx context.Context) ([]string, error)
	FetchRaw(ctx context.Context, id string) (model.RawMessage, error)
	Trash(ctx context.Context, id string) error
}

type Decoder interface {
	Decode(raw model.RawMessage) model.DecodedMessage
}

type Importer interface {
	Notebook() string
	ImportNote(ctx context.Context, msg model.DecodedMessage) model.ImportOutcome
}

type Staging interface {
	Reset() error
	Remove() error
	StageAttachments(id string, attachments []model.Attachment) ([]model.Attachment, error)
}

// Maintenance is the store-wide part of the note store used after a batch.
type Maintenance interface {
	ListNotebooks(ctx context.Context) ([]string, error)
	RemoveBook(ctx context.Context, name string) error
	Sync(ctx context.Context) error
}

type Options struct {
	Debug bool
}

type Deps struct {
	Source   MailSource
	Decoder  Decoder
	Filter   *filter.Filter
	Staging  Staging
	Importer Importer
	Store    Maintenance
	Sinks    []stats.Sink
}

type Runner struct {
	opts      Options
	deps      Deps
	logger    *slog.Logger
	collector *stats.Collector
}

// TargetNotebook is the notebook a run imports into.
func TargetNotebook(notebook string, debug bool) string {
	if debug {
		return DebugNotebook
	}
	return notebook
}

func New(opts Options, deps Deps, logger *slog.Logger) (*Runner, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("mail source must not be nil")
	case deps.Decoder == nil:
		return nil, fmt.Errorf("decoder must not be nil")
	case deps.Staging == nil:
		return nil, fmt.Errorf("staging area must not be nil")
	case deps.Importer == nil:
		return nil, fmt.Errorf("importer must not be nil")
	case deps.Store == nil:
		return nil, fmt.Errorf("note store must not be nil")
	}
	if opts.Debug && deps.Importer.Notebook() != DebugNotebook {
		return nil, fmt.Errorf("%w: %q", ErrNotebookMismatch, deps.Importer.Notebook())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Runner{
		opts:      opts,
		deps:      deps,
		logger:    logger,
		collector: stats.NewCollector(),
	}
	return r, nil
}

// Run processes every unread message once. Only a failure to list the inbox
// or to prepare the staging directory is returned; everything else is
// counted per message.
func (r *Runner) Run(ctx context.Context) (stats.Summary, error) {
	since := time.Now()
	if r.opts.Debug {
		r.logger.Info("running in debug mode", "notebook", r.deps.Importer.Notebook(), "allowList", r.deps.Filter.Active())
	} else {
		r.logger.Info("running", "notebook", r.deps.Importer.Notebook(), "allowList", r.deps.Filter.Active())
	}

	defer r.emit(stats.Event{Type: stats.EventTypeFinished})

	if err := r.deps.Staging.Reset(); err != nil {
		return r.collector.Snapshot(), err
	}
	defer func() {
		if err := r.deps.Staging.Remove(); err != nil {
			r.logger.Warn("staging directory left behind", "err", err)
		}
	}()

	ids, err := r.deps.Source.ListUnread(ctx)
	if err != nil {
		err = fmt.Errorf("list unread: %w", err)
		r.emit(stats.Event{Type: stats.EventTypeError, Err: err})
		r.logger.Error("failed to retrieve unread mail", "err", err)
		return r.collector.Snapshot(), err
	}
	r.emit(stats.Event{Type: stats.EventTypeListed, Total: len(ids)})
	if len(ids) > 0 {
		r.logger.Info("found unread mail", "count", len(ids))
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("run interrupted", "err", err)
			return r.collector.Snapshot(), err
		}
		r.process(ctx, id)
	}

	if !r.opts.Debug {
		r.pruneDebugNotebook(ctx)
	}

	summary := r.collector.Snapshot()
	if summary.Imported > 0 && !r.opts.Debug {
		if err := r.deps.Store.Sync(ctx); err != nil {
			r.emit(stats.Event{Type: stats.EventTypeError, Err: err})
			r.logger.Error("note store sync failed", "err", err)
		}
		summary = r.collector.Snapshot()
	}

	attrs := append(summary.LogAttrs(), "duration", time.Since(since))
	if len(ids) == 0 {
		r.logger.Info("run finished, no new mail", attrs...)
	} else {
		r.logger.Info("run finished", attrs...)
	}
	return summary, nil
}

func (r *Runner) process(ctx context.Context, id string) {
	log := r.logger.With("messageID", id)
	if id == "" {
		r.fail(id, ErrMessageIDMissing)
		log.Error("skipping message", "err", ErrMessageIDMissing)
		return
	}

	raw, err := r.deps.Source.FetchRaw(ctx, id)
	if err != nil {
		r.fail(id, fmt.Errorf("fetch: %w", err))
		log.Error("fetching message failed, it remains unread", "err", err)
		return
	}
	r.emit(stats.Event{Type: stats.EventTypeFetched, MessageID: id})

	msg := r.deps.Decoder.Decode(raw)
	log = log.With("sender", msg.Sender, "subject", msg.Subject)

	if !r.deps.Filter.Accept(msg.Sender) {
		r.emit(stats.Event{Type: stats.EventTypeRejected, MessageID: id})
		if r.opts.Debug {
			log.Warn("sender not in list of approved senders, message kept (debug mode)")
			return
		}
		if err := r.deps.Source.Trash(ctx, id); err != nil {
			r.emit(stats.Event{Type: stats.EventTypeError, MessageID: id, Err: fmt.Errorf("trash rejected: %w", err)})
			log.Error("sender not in list of approved senders, trashing failed", "err", err)
			return
		}
		r.emit(stats.Event{Type: stats.EventTypeTrashed, MessageID: id})
		log.Warn("sender not in list of approved senders, message trashed")
		return
	}

	staged, err := r.deps.Staging.StageAttachments(msg.ID, msg.Attachments)
	if err != nil {
		r.fail(id, fmt.Errorf("stage attachments: %w", err))
		log.Error("staging attachments failed, message was NOT imported and remains unread", "err", err)
		return
	}
	msg.Attachments = staged

	outcome := r.deps.Importer.ImportNote(ctx, msg)
	if !outcome.Success {
		r.emit(stats.Event{Type: stats.EventTypeFailed, MessageID: id})
		log.Info("message was NOT imported and remains unread")
		return
	}
	r.emit(stats.Event{Type: stats.EventTypeImported, MessageID: id, Detail: fmt.Sprintf("%d attachments", outcome.Attachments)})
	log.Info("IMPORT", "attachments", outcome.Attachments)

	if r.opts.Debug {
		return
	}
	if err := r.deps.Source.Trash(ctx, id); err != nil {
		r.emit(stats.Event{Type: stats.EventTypeError, MessageID: id, Err: fmt.Errorf("trash imported: %w", err)})
		log.Error("trashing imported message failed, it will be imported again next run", "err", err)
		return
	}
	r.emit(stats.Event{Type: stats.EventTypeTrashed, MessageID: id})
}

func (r *Runner) pruneDebugNotebook(ctx context.Context) {
	notebooks, err := r.deps.Store.ListNotebooks(ctx)
	if err != nil {
		r.logger.Warn("listing notebooks failed, debug notebook not pruned", "err", err)
		return
	}
	if !slices.Contains(notebooks, DebugNotebook) {
		return
	}
	if err := r.deps.Store.RemoveBook(ctx, DebugNotebook); err != nil {
		r.logger.Warn("deleting debug notebook failed", "notebook", DebugNotebook, "err", err)
		return
	}
	r.logger.Info("found and deleted debug notebook", "notebook", DebugNotebook)
}

func (r *Runner) fail(id string, err error) {
	r.emit(stats.Event{Type: stats.EventTypeError, MessageID: id, Err: err})
	r.emit(stats.Event{Type: stats.EventTypeFailed, MessageID: id})
}

func (r *Runner) emit(evt stats.Event) {
	r.collector.Handle(evt)
	for _, sink := range r.deps.Sinks {
		sink.Handle(evt)
	}
}
