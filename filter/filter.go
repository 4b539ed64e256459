package filter

import (
	"strings"
)

// Options captures the filtering configuration.
type Options struct {
	ApprovedSenders []string
}

// Filter decides which senders are imported.
type Filter struct {
	approved map[string]struct{}
}

// New normalises the allow-list once so lookups are case-insensitive.
func New(opts Options) *Filter {
	return &Filter{approved: NormalizeSenders(opts.ApprovedSenders)}
}

// Accept returns true if the sender passes the allow-list.
func (f *Filter) Accept(sender string) bool {
	if f == nil {
		return true
	}
	return Accept(sender, f.approved)
}

// Active reports whether an allow-list is configured.
func (f *Filter) Active() bool {
	return f != nil && len(f.approved) > 0
}

// Accept reports whether sender is in approved. An empty set accepts everyone.
func Accept(sender string, approved map[string]struct{}) bool {
	if len(approved) == 0 {
		return true
	}
	_, ok := approved[normalize(sender)]
	return ok
}

// NormalizeSenders builds a lower-cased lookup set, skipping blank entries.
func NormalizeSenders(senders []string) map[string]struct{} {
	set := make(map[string]struct{}, len(senders))
	for _, s := range senders {
		s = normalize(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
