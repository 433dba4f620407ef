package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var bg = context.Background()

// fixedNow is the wall clock used by createTestStore.
var fixedNow = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store under t.TempDir with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
