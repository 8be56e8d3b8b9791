package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueryCacheTTL != time.Minute {
		t.Fatalf("expected 60s query cache ttl, got %s", cfg.QueryCacheTTL)
	}
	if cfg.CascadeDeleteItems {
		t.Fatal("cascade delete must be off by default")
	}
	if cfg.DocstoreDriver != DocstorePostgres || cfg.CacheDriver != CacheMemory {
		t.Fatalf("unexpected drivers %q/%q", cfg.DocstoreDriver, cfg.CacheDriver)
	}
	if cfg.PostgresMaxConns != 16 {
		t.Fatalf("expected 16 postgres conns, got %d", cfg.PostgresMaxConns)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCSTORE_DRIVER", "SQLite")
	t.Setenv("USER_STORE", "memory")
	t.Setenv("CASCADE_DELETE_ITEMS", "true")
	t.Setenv("QUERY_CACHE_TTL", "5s")
	t.Setenv("CACHE_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DocstoreDriver != DocstoreSQLite {
		t.Fatalf("expected sqlite, got %q", cfg.DocstoreDriver)
	}
	if cfg.NeedsPostgres() {
		t.Fatal("sqlite documents with memory users must not need postgres")
	}
	if !cfg.CascadeDeleteItems || cfg.QueryCacheTTL != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CacheSize != 1024 {
		t.Fatalf("bad int should fall back to default, got %d", cfg.CacheSize)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCSTORE_DRIVER", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown docstore driver")
	}
}

func TestLoadClient(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRACKER_API_URL", "http://tracker.local:9000/")
	cfg := LoadClient()
	if cfg.APIURL != "http://tracker.local:9000" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.APIURL)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Timeout)
	}
}
