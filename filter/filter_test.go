package filter

import (
	"strings"
	"testing"
)

func TestFilter_Accept_NoAllowList(t *testing.T) {
	f := New(Options{})

	if !f.Accept("anyone@example.com") {
		t.Error("Expected sender to be accepted when no allow-list is configured")
	}
	if f.Active() {
		t.Error("Expected filter to be inactive")
	}
}

func TestFilter_Accept_AllowList(t *testing.T) {
	f := New(Options{ApprovedSenders: []string{"B@Y.com", " friend@example.org "}})

	if !f.Active() {
		t.Fatal("Expected filter to be active")
	}
	if !f.Accept("b@y.com") {
		t.Error("Expected b@y.com to be accepted")
	}
	if !f.Accept("friend@example.org") {
		t.Error("Expected friend@example.org to be accepted")
	}
	if f.Accept("a@x.com") {
		t.Error("Expected a@x.com to be rejected")
	}
}

func TestFilter_BlankEntriesIgnored(t *testing.T) {
	f := New(Options{ApprovedSenders: []string{"", "   "}})

	if f.Active() {
		t.Error("Expected blank allow-list entries to leave the filter inactive")
	}
	if !f.Accept("a@x.com") {
		t.Error("Expected sender to be accepted")
	}
}

func TestAccept_CaseInsensitive(t *testing.T) {
	senders := []string{"a@x.com", "Mixed.Case@Example.ORG", "UPPER@HOST.NET"}
	candidates := []string{"a@x.com", "mixed.case@example.org", "upper@host.net", "other@host.net"}

	variants := func(s string) []string {
		return []string{s, strings.ToLower(s), strings.ToUpper(s)}
	}

	for _, candidate := range candidates {
		base := Accept(candidate, NormalizeSenders(senders))
		for _, c := range variants(candidate) {
			for _, list := range [][]string{senders, upperAll(senders), lowerAll(senders)} {
				if got := Accept(c, NormalizeSenders(list)); got != base {
					t.Errorf("Accept(%q, %v) = %v, want %v", c, list, got, base)
				}
			}
		}
	}
}

func TestAccept_RejectsDifferentAddress(t *testing.T) {
	approved := NormalizeSenders([]string{"b@y.com"})

	if Accept("A@X.com", approved) {
		t.Error("Expected A@X.com to be rejected")
	}
}

func TestNilFilterAcceptsEverything(t *testing.T) {
	var f *Filter
	if !f.Accept("a@x.com") {
		t.Error("Expected nil filter to accept")
	}
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
