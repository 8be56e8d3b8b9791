package docstore_test

import (
	"testing"
	"time"

	"ttrpg-tracker/internal/platform/docstore"
	"ttrpg-tracker/internal/platform/docstore/docstoretest"
)

func TestMemoryStore(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, now func() time.Time) docstore.Store {
		return docstore.NewMemory(now)
	})
}

func TestInstrumentedStore(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, now func() time.Time) docstore.Store {
		return docstore.Instrument(docstore.NewMemory(now))
	})
}
