package tally

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ryhazerus/tally/store"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("backend = %q, want %q", cfg.Backend, BackendMemory)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Cache {
		t.Error("cache enabled by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TALLY_BACKEND", "sqlite")
	t.Setenv("TALLY_DSN", "/tmp/x.db")
	t.Setenv("TALLY_CACHE", "true")
	t.Setenv("TALLY_MAX_ATTEMPTS", "9")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := Config{Backend: "sqlite", DSN: "/tmp/x.db", Cache: true, MaxAttempts: 9}
	if cfg != want {
		t.Errorf("config = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("TALLY_MAX_ATTEMPTS", "lots")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfigOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"memory", Config{Backend: "memory"}, "*store.MemoryStore"},
		{"empty backend", Config{}, "*store.MemoryStore"},
		{"sqlite", Config{Backend: "sqlite", DSN: ":memory:"}, "*store.SQLiteStore"},
		{"bolt", Config{Backend: "BOLT", DSN: filepath.Join(dir, "t.bolt")}, "*store.BoltStore"},
		{"cached", Config{Backend: "sqlite", DSN: ":memory:", Cache: true}, "*store.CachedStore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.cfg.OpenStore()
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if got := typeName(s); got != tt.want {
				t.Errorf("store = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConfigOpenStoreUnknownBackend(t *testing.T) {
	if _, err := (Config{Backend: "dynamo"}).OpenStore(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpen(t *testing.T) {
	r, err := Open(Config{Backend: "sqlite", DSN: ":memory:", MaxAttempts: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.maxAttempts != 2 {
		t.Errorf("max attempts = %d, want 2", r.maxAttempts)
	}
	if res := r.RecordOnce(context.Background(), "u1", "k"); !res.Recorded() {
		t.Errorf("outcome = %v (%v), want Recorded", res.Outcome, res.Err)
	}
}

func typeName(s store.Store) string {
	switch s.(type) {
	case *store.MemoryStore:
		return "*store.MemoryStore"
	case *store.SQLiteStore:
		return "*store.SQLiteStore"
	case *store.BoltStore:
		return "*store.BoltStore"
	case *store.CachedStore:
		return "*store.CachedStore"
	default:
		return "unknown"
	}
}
