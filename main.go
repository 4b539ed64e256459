package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-to-joplin/cmd"
	"github.com/dhcgn/mail-to-joplin/config"
	"github.com/dhcgn/mail-to-joplin/credential"
	"github.com/dhcgn/mail-to-joplin/decode"
	"github.com/dhcgn/mail-to-joplin/filter"
	"github.com/dhcgn/mail-to-joplin/gmail"
	"github.com/dhcgn/mail-to-joplin/imap"
	"github.com/dhcgn/mail-to-joplin/joplin"
	"github.com/dhcgn/mail-to-joplin/logfile"
	"github.com/dhcgn/mail-to-joplin/mbox"
	"github.com/dhcgn/mail-to-joplin/notes"
	"github.com/dhcgn/mail-to-joplin/progress"
	"github.com/dhcgn/mail-to-joplin/runner"
	"github.com/dhcgn/mail-to-joplin/staging"
	"github.com/dhcgn/mail-to-joplin/state"
	"github.com/dhcgn/mail-to-joplin/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mail-to-joplin",
		Short:        "Import unread mail into a Joplin notebook",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, credential.LookupFunc(credential.Lookup))
			if err != nil {
				return err
			}

			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			slog.SetDefault(logger)
			logger.Info("starting mail-to-joplin", "source", cfg.Source, "notebook", runner.TargetNotebook(cfg.Notebook, cfg.Debug), "debug", cfg.Debug)

			return run(cmd.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		cmd.NewInspectCmd(),
		cmd.NewNotebooksCmd(openStore),
		cmd.NewSendersCmd(afero.NewOsFs()),
		cmd.NewGmailLoginCmd(),
		cmd.NewIMAPPasswordCmd(credential.Open),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	source, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		switch {
		case errors.Is(err, gmail.ErrMissingCredentials):
			logger.Error("could not find OAuth client credentials", "path", cfg.CredentialsFile, "err", err)
		case errors.Is(err, gmail.ErrMissingToken):
			logger.Error("could not find OAuth token", "path", cfg.TokenFile, "err", err)
		default:
			logger.Error("opening mail source failed", "source", cfg.Source, "err", err)
		}
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			logger.Warn("closing mail source failed", "err", err)
		}
	}()

	store := joplin.NewCLI(cfg.JoplinBin, cfg.JoplinProfile, logger)
	area := staging.New(afero.NewOsFs(), cfg.StagingDir)
	notebook := runner.TargetNotebook(cfg.Notebook, cfg.Debug)

	r, err := runner.New(runner.Options{Debug: cfg.Debug}, runner.Deps{
		Source:   source,
		Decoder:  decode.New(logger),
		Filter:   filter.New(filter.Options{ApprovedSenders: cfg.ApprovedSenders}),
		Staging:  area,
		Importer: notes.NewAdapter(store, area, notebook, logger),
		Store:    store,
		Sinks:    []stats.Sink{progress.New(cfg.Progress)},
	}, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	_, err = r.Run(ctx)
	return err
}

func openStore(cfg config.Config) joplin.Store {
	return joplin.NewCLI(cfg.JoplinBin, cfg.JoplinProfile, slog.Default())
}

// openSource builds the configured mail source. Credential problems surface
// here, before anything is fetched.
func openSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (runner.MailSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case config.SourceGmail:
		oauthCfg, err := gmail.OAuthConfig(cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		httpClient, err := gmail.HTTPClient(ctx, oauthCfg, cfg.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		src, err := gmail.NewSource(ctx, httpClient, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, noop, nil

	case config.SourceIMAP:
		src, err := imap.NewSource(imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.IMAPMailbox,
			TrashMailbox:       cfg.IMAPTrash,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil

	case config.SourceMbox:
		fs := afero.NewOsFs()
		tracker, err := state.NewFileTracker(fs, cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		src, err := mbox.NewSource(fs, mbox.Options{Path: cfg.MboxPath}, tracker, logger)
		if err != nil {
			_ = tracker.Close()
			return nil, nil, err
		}
		return src, tracker.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func setupLogger(cfg config.Config) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		file, err := logfile.Open(afero.NewOsFs(), cfg.LogFile, cfg.LogSize)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler).With("run", uuid.NewString()), nil
}
