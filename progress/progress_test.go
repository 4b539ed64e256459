package progress

import (
	"errors"
	"testing"

	"github.com/dhcgn/mail-to-joplin/stats"
)

func TestBar_DisabledIgnoresEvents(t *testing.T) {
	b := New(false)
	b.Handle(stats.Event{Type: stats.EventTypeListed, Total: 2})
	b.Handle(stats.Event{Type: stats.EventTypeImported})
	b.Handle(stats.Event{Type: stats.EventTypeFinished})

	if b.pb != nil || b.done != 0 {
		t.Fatalf("disabled bar should not track progress, got done=%d", b.done)
	}
}

func TestBar_TracksTerminalEvents(t *testing.T) {
	b := New(true)
	b.Handle(stats.Event{Type: stats.EventTypeListed, Total: 3})
	if b.pb == nil {
		t.Fatal("expected progress bar to start")
	}

	b.Handle(stats.Event{Type: stats.EventTypeFetched, MessageID: "a"})
	b.Handle(stats.Event{Type: stats.EventTypeImported, MessageID: "a"})
	b.Handle(stats.Event{Type: stats.EventTypeRejected, MessageID: "b"})
	b.Handle(stats.Event{Type: stats.EventTypeError, MessageID: "c", Err: errors.New("fetch failed")})
	b.Handle(stats.Event{Type: stats.EventTypeFailed, MessageID: "c"})

	if b.done != 3 {
		t.Errorf("done = %d, want 3", b.done)
	}

	b.Handle(stats.Event{Type: stats.EventTypeFinished})
	if b.pb != nil {
		t.Error("expected bar to be stopped after finished event")
	}
}

func TestBar_NoMail(t *testing.T) {
	b := New(true)
	b.Handle(stats.Event{Type: stats.EventTypeListed, Total: 0})
	b.Handle(stats.Event{Type: stats.EventTypeFinished})

	if b.pb != nil {
		t.Error("expected no progress bar for an empty inbox")
	}
}
