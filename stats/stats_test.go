package stats

import (
	"errors"
	"testing"
)

func TestCollector_Handle(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	events := []Event{
		{Type: EventTypeListed, Total: 3},
		{Type: EventTypeFetched, MessageID: "a"},
		{Type: EventTypeImported, MessageID: "a"},
		{Type: EventTypeTrashed, MessageID: "a"},
		{Type: EventTypeFetched, MessageID: "b"},
		{Type: EventTypeRejected, MessageID: "b"},
		{Type: EventTypeError, MessageID: "c", Err: boom},
		{Type: EventTypeFailed, MessageID: "c"},
		{Type: EventTypeFinished},
	}
	for _, evt := range events {
		c.Handle(evt)
	}

	got := c.Snapshot()
	want := Summary{Total: 3, Fetched: 2, Imported: 1, Rejected: 1, Failed: 1, Trashed: 1, Errors: 1, LastError: boom}
	if got != want {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestSummary_LogAttrs(t *testing.T) {
	attrs := Summary{Imported: 2, Total: 5}.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs() returned odd number of elements: %d", len(attrs))
	}
	if attrs[0] != "imported" || attrs[1] != 2 || attrs[2] != "total" || attrs[3] != 5 {
		t.Errorf("LogAttrs() = %v, want imported and total first", attrs)
	}

	withErr := Summary{LastError: errors.New("x")}.LogAttrs()
	if withErr[len(withErr)-2] != "lastError" || withErr[len(withErr)-1] != "x" {
		t.Errorf("LogAttrs() missing lastError: %v", withErr)
	}
}
