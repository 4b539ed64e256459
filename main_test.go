package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-to-joplin/config"
	"github.com/dhcgn/mail-to-joplin/gmail"
	"github.com/dhcgn/mail-to-joplin/mbox"
)

func TestOpenSource_Mbox(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Source:   config.SourceMbox,
		MboxPath: filepath.Join(dir, "inbox.mbox"),
		StateDir: filepath.Join(dir, "state"),
	}

	src, closeSource, err := openSource(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeSource()

	assert.IsType(t, &mbox.Source{}, src)
}

func TestOpenSource_GmailWithoutCredentials(t *testing.T) {
	cfg := config.Config{
		Source:          config.SourceGmail,
		CredentialsFile: filepath.Join(t.TempDir(), "credentials.json"),
	}

	_, _, err := openSource(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, gmail.ErrMissingCredentials)
}

func TestRun_LogsMissingCredentialFiles(t *testing.T) {
	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials.json")
	token := filepath.Join(dir, "token.json")
	cfg := config.Config{Source: config.SourceGmail, CredentialsFile: credentials, TokenFile: token}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	err := run(context.Background(), cfg, logger)
	assert.ErrorIs(t, err, gmail.ErrMissingCredentials)
	assert.Contains(t, logs.String(), "could not find OAuth client credentials")

	require.NoError(t, os.WriteFile(credentials, []byte(`{"installed":{"client_id":"id.apps.googleusercontent.com",`+
		`"client_secret":"secret","redirect_uris":["http://localhost"],`+
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`), 0o600))
	logs.Reset()

	err = run(context.Background(), cfg, logger)
	assert.ErrorIs(t, err, gmail.ErrMissingToken)
	assert.Contains(t, logs.String(), "could not find OAuth token")
	assert.Contains(t, logs.String(), "level=ERROR")
}

func TestOpenSource_Unknown(t *testing.T) {
	_, _, err := openSource(context.Background(), config.Config{Source: "pop3"}, nil)
	assert.Error(t, err)
}

func TestSetupLogger_WritesBoundedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	logger, err := setupLogger(config.Config{LogLevel: "warn", LogFile: path, LogSize: 200})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("sender not in list of approved senders")

	data, err := readFile(path)
	require.NoError(t, err)
	assert.NotContains(t, data, "hidden")
	assert.Contains(t, data, "level=WARN")
	assert.Contains(t, data, "run=")
	assert.LessOrEqual(t, len(data), 200)
	assert.Equal(t, 1, strings.Count(data, "\n"))
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
