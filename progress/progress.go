package progress

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mail-to-joplin/stats"
)

// Bar shows import progress on the console. It is a stats.Sink.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	enabled bool
	done    int
	mu      sync.Mutex
}

// New creates a progress bar; a disabled bar ignores every event.
func New(enabled bool) *Bar {
	return &Bar{enabled: enabled}
}

func (b *Bar) Handle(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeListed:
		pterm.Info.Printf("%d unread mail(s)\n", evt.Total)
		if evt.Total == 0 {
			return
		}
		pb, err := pterm.DefaultProgressbar.
			WithTotal(evt.Total).
			WithTitle("Importing").
			Start()
		if err != nil {
			return
		}
		b.pb = pb
	case stats.EventTypeImported, stats.EventTypeRejected, stats.EventTypeFailed:
		if b.pb == nil {
			return
		}
		b.done++
		b.pb.UpdateTitle(pterm.Sprintf("Importing %d of %d", b.done, b.pb.Total))
		b.pb.Increment()
	case stats.EventTypeError:
		// Show error messages above the progress bar
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", evt.MessageID, evt.Err)
		}
	case stats.EventTypeFinished:
		b.stop()
	}
}

func (b *Bar) stop() {
	if b.pb == nil {
		return
	}
	// Ensure we reach 100%
	if b.pb.Current < b.pb.Total {
		b.pb.Current = b.pb.Total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
	pterm.Success.Println("Finished")
}
