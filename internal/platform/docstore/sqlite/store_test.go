package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"ttrpg-tracker/internal/platform/docstore"
	"ttrpg-tracker/internal/platform/docstore/docstoretest"
)

func TestSQLiteStore(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, now func() time.Time) docstore.Store {
		s, err := Open(filepath.Join(t.TempDir(), "docs.db"), WithClock(now))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
