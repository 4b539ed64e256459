package filter

import (
	"fmt"
	"testing"
)

// BenchmarkFilter_Accept_NoFilters benchmarks the filter when no allow-list is active
func BenchmarkFilter_Accept_NoFilters(b *testing.B) {
	f := New(Options{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Accept("test@example.com")
	}
}

// BenchmarkFilter_Accept_LargeAllowList benchmarks lookups against many approved senders
func BenchmarkFilter_Accept_LargeAllowList(b *testing.B) {
	senders := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		senders = append(senders, fmt.Sprintf("User%d@Example.com", i))
	}
	f := New(Options{ApprovedSenders: senders})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Accept("user999@example.com")
	}
}
