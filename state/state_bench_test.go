package state

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
)

// BenchmarkFileTracker_MarkProcessed benchmarks the state tracker write performance
func BenchmarkFileTracker_MarkProcessed(b *testing.B) {
	tracker, err := NewFileTracker(afero.NewOsFs(), b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tracker.MarkProcessed(fmt.Sprintf("id-%d", i), "subject"); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	if err := tracker.Close(); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkFileTracker_Processed benchmarks lookup performance
func BenchmarkFileTracker_Processed(b *testing.B) {
	tracker, err := NewFileTracker(afero.NewMemMapFs(), "/state")
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	for i := 0; i < 1000; i++ {
		if err := tracker.MarkProcessed(fmt.Sprintf("id-%d", i), ""); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.Processed(fmt.Sprintf("id-%d", i%1000))
	}
}
