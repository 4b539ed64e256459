package notes

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-to-joplin/joplin"
	"github.com/dhcgn/mail-to-joplin/joplin/joplintest"
	"github.com/dhcgn/mail-to-joplin/model"
	"github.com/dhcgn/mail-to-joplin/staging"
)

func newAdapter(t *testing.T, store joplin.Store) (*Adapter, *staging.Area, *bytes.Buffer) {
	t.Helper()
	area := staging.New(afero.NewMemMapFs(), "/stage")
	require.NoError(t, area.Reset())
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAdapter(store, area, "_inbox", logger), area, &logs
}

func message(id string) model.DecodedMessage {
	return model.DecodedMessage{ID: id, Subject: "Receipt", Sender: "a@x.com", Body: "hello"}
}

func TestImportNote_Success(t *testing.T) {
	store := joplintest.New("_inbox")
	adapter, area, _ := newAdapter(t, store)

	msg := message("m1")
	staged, err := area.StageAttachments(msg.ID, []model.Attachment{{Filename: "a.pdf", Content: []byte("%PDF")}})
	require.NoError(t, err)
	msg.Attachments = staged

	outcome := adapter.ImportNote(context.Background(), msg)

	assert.True(t, outcome.Success)
	assert.False(t, outcome.Recovered)
	assert.Equal(t, 1, outcome.Attachments)

	note := store.Notes["m1"]
	require.NotNil(t, note)
	assert.Equal(t, "_inbox", note.Notebook)
	assert.Equal(t, "Receipt", note.Title)
	assert.Equal(t, []string{"/stage/m1/a.pdf"}, note.Attachments)
	assert.Equal(t, 0, store.Count("mkbook"))
}

func TestImportNote_CreatesMissingNotebookOnce(t *testing.T) {
	store := joplintest.New()
	adapter, _, logs := newAdapter(t, store)

	outcome := adapter.ImportNote(context.Background(), message("m1"))

	assert.True(t, outcome.Success)
	assert.True(t, outcome.Recovered)
	assert.Equal(t, 1, store.Count("mkbook"))
	assert.Equal(t, 2, store.Count("import"))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, store.Notebooks, "_inbox")
}

func TestImportNote_SecondNotebookMissingIsTerminal(t *testing.T) {
	store := joplintest.New()
	missing := joplin.ImportResult{Status: joplin.ImportNotebookMissing}
	store.ImportReplies = []joplin.ImportResult{missing, missing, missing}
	adapter, _, _ := newAdapter(t, store)

	outcome := adapter.ImportNote(context.Background(), message("m1"))

	assert.False(t, outcome.Success)
	assert.Equal(t, 1, store.Count("mkbook"))
	assert.Equal(t, 2, store.Count("import"))
	assert.Equal(t, 0, store.Count("attach"))
	assert.Equal(t, 0, store.Count("set-title"))
}

func TestImportNote_OtherFailureIsNotRetried(t *testing.T) {
	store := joplintest.New("_inbox")
	store.ImportReplies = []joplin.ImportResult{{Status: joplin.ImportFailed, Detail: "database locked"}}
	adapter, _, logs := newAdapter(t, store)

	outcome := adapter.ImportNote(context.Background(), message("m1"))

	assert.False(t, outcome.Success)
	assert.Equal(t, 1, store.Count("import"))
	assert.Equal(t, 0, store.Count("mkbook"))
	assert.Contains(t, logs.String(), "database locked")
}

func TestImportNote_MkBookFailure(t *testing.T) {
	store := joplintest.New()
	store.MkBookErr = errors.New("read-only profile")
	adapter, _, _ := newAdapter(t, store)

	outcome := adapter.ImportNote(context.Background(), message("m1"))

	assert.False(t, outcome.Success)
	assert.Equal(t, 1, store.Count("import"))
}

func TestImportNote_AttachmentAndTitleFailuresAreBestEffort(t *testing.T) {
	store := joplintest.New("_inbox")
	store.AttachErr = map[string]error{"bad.bin": errors.New("too large")}
	store.SetTitleErr = joplin.ErrNoteNotFound
	adapter, area, logs := newAdapter(t, store)

	msg := message("m1")
	staged, err := area.StageAttachments(msg.ID, []model.Attachment{
		{Filename: "bad.bin", Content: []byte{1}},
		{Filename: "good.bin", Content: []byte{2}},
	})
	require.NoError(t, err)
	msg.Attachments = append(staged, model.Attachment{Filename: "unstaged.bin"})

	outcome := adapter.ImportNote(context.Background(), msg)

	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.Attachments)
	assert.Equal(t, 2, store.Count("attach"))
	assert.Contains(t, logs.String(), "too large")
	assert.Contains(t, logs.String(), "setting note title failed")
	assert.Contains(t, logs.String(), "attachment was never staged")
}

func TestImportNote_StagingFailure(t *testing.T) {
	store := joplintest.New("_inbox")
	area := staging.New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/stage")
	adapter := NewAdapter(store, area, "_inbox", nil)

	outcome := adapter.ImportNote(context.Background(), message("m1"))

	assert.False(t, outcome.Success)
	assert.Equal(t, 0, store.Count("import"))
}
