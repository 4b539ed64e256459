package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-to-joplin/config"
	"github.com/dhcgn/mail-to-joplin/credential"
	"github.com/dhcgn/mail-to-joplin/gmail"
	"github.com/dhcgn/mail-to-joplin/joplin"
	"github.com/dhcgn/mail-to-joplin/joplin/joplintest"
)

func execute(t *testing.T, sub *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "mail-to-joplin", SilenceUsage: true, SilenceErrors: true}
	require.NoError(t, config.RegisterFlags(root))
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.eml")
	message := "From: Shop <Orders@Shop.example>\r\n" +
		"Subject: =?UTF-8?Q?Your_receipt_=E2=82=AC?=\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Total: 12 EUR\r\n"
	require.NoError(t, os.WriteFile(path, []byte(message), 0o600))

	out, err := execute(t, NewInspectCmd(), "", "inspect", path, "--approved-sender", "orders@shop.example")
	require.NoError(t, err)

	assert.Contains(t, out, "Your receipt €")
	assert.Contains(t, out, "orders@shop.example")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "Total: 12 EUR")
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := execute(t, NewInspectCmd(), "", "inspect", filepath.Join(t.TempDir(), "nope.eml"))
	assert.Error(t, err)
}

func TestNotebooks(t *testing.T) {
	store := joplintest.New("Work", "_inbox")
	open := func(config.Config) joplin.Store { return store }

	out, err := execute(t, NewNotebooksCmd(open), "", "notebooks")
	require.NoError(t, err)
	assert.Equal(t, "  Work\n* _inbox\n", out)

	out, err = execute(t, NewNotebooksCmd(open), "", "notebooks", "--notebook", "Receipts")
	require.NoError(t, err)
	assert.Contains(t, out, `target notebook "Receipts" does not exist yet`)
}

func TestNotebooks_StoreFailure(t *testing.T) {
	store := joplintest.New()
	store.ListErr = assert.AnError
	open := func(config.Config) joplin.Store { return store }

	_, err := execute(t, NewNotebooksCmd(open), "", "notebooks")
	assert.ErrorIs(t, err, assert.AnError)
}

const sendersArchive = "From x Mon Jan  1 00:00:00 2024\n" +
	"From: Alice <alice@x.com>\n" +
	"Subject: one\n" +
	"\n" +
	"1\n" +
	"\n" +
	"From x Mon Jan  1 00:00:00 2024\n" +
	"From: ALICE@x.com\n" +
	"Subject: two\n" +
	"\n" +
	"2\n" +
	"\n" +
	"From x Mon Jan  1 00:00:00 2024\n" +
	"From: spam@y.com\n" +
	"Subject: three\n" +
	"\n" +
	"3\n" +
	"\n"

func TestSenders(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mail/archive.mbox", []byte(sendersArchive), 0o644))

	out, err := execute(t, NewSendersCmd(fs), "", "senders", "/mail/archive.mbox", "--approved-sender", "alice@x.com", "-o", "/reports")
	require.NoError(t, err)

	assert.Contains(t, out, "Analyzed 3 messages from 2 senders, 2 would be imported")
	assert.Contains(t, out, "spam@y.com")

	report, err := afero.ReadFile(fs, "/reports/report_senders.csv")
	require.NoError(t, err)
	assert.Equal(t, "Sender,Count,Approved\nalice@x.com,2,true\nspam@y.com,1,false\n", string(report))
}

func TestSenders_MissingArchive(t *testing.T) {
	_, err := execute(t, NewSendersCmd(afero.NewMemMapFs()), "", "senders", "/nope.mbox")
	assert.Error(t, err)
}

func TestIMAPPassword(t *testing.T) {
	store := credential.New(keyring.NewArrayKeyring(nil))
	open := func() (*credential.Store, error) { return store, nil }

	_, err := execute(t, NewIMAPPasswordCmd(open), "s3cret\n", "imap-password", "--imap-host", "mail.example.com", "--imap-user", "me")
	require.NoError(t, err)

	got, err := store.Get(credential.IMAPKey("me", "mail.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestIMAPPassword_Validation(t *testing.T) {
	open := func() (*credential.Store, error) { return credential.New(keyring.NewArrayKeyring(nil)), nil }

	_, err := execute(t, NewIMAPPasswordCmd(open), "s3cret\n", "imap-password")
	assert.Error(t, err)

	_, err = execute(t, NewIMAPPasswordCmd(open), "\n", "imap-password", "--imap-host", "h", "--imap-user", "u")
	assert.Error(t, err)
}

func TestGmailLogin_MissingCredentials(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, NewGmailLoginCmd(), "", "gmail-login", "--credentials", filepath.Join(dir, "credentials.json"), "--token", filepath.Join(dir, "token.json"))
	assert.ErrorIs(t, err, gmail.ErrMissingCredentials)
}
