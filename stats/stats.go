package stats

import (
	"sync"
)

type EventType string

const (
	EventTypeListed   EventType = "listed"
	EventTypeFetched  EventType = "fetched"
	EventTypeRejected EventType = "rejected"
	EventTypeImported EventType = "imported"
	EventTypeFailed   EventType = "failed"
	EventTypeTrashed  EventType = "trashed"
	EventTypeError    EventType = "error"
	EventTypeFinished EventType = "finished"
)

type Event struct {
	Type      EventType
	MessageID string
	Total     int
	Err       error
	Detail    string
}

// Sink receives events synchronously from the runner.
type Sink interface {
	Handle(Event)
}

type Summary struct {
	Total     int
	Fetched   int
	Imported  int
	Rejected  int
	Failed    int
	Trashed   int
	Errors    int
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"imported", s.Imported,
		"total", s.Total,
		"fetched", s.Fetched,
		"rejected", s.Rejected,
		"failed", s.Failed,
		"trashed", s.Trashed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Handle(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeListed:
		c.summary.Total = evt.Total
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeRejected:
		c.summary.Rejected++
	case EventTypeImported:
		c.summary.Imported++
	case EventTypeFailed:
		c.summary.Failed++
	case EventTypeTrashed:
		c.summary.Trashed++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}
