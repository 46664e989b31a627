package cache

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	backends := map[string]Cache{
		"sqlite": openTestStore(t),
		"memory": NewMemory(),
	}

	for name, c := range backends {
		t.Run(name, func(t *testing.T) {
			type profile struct {
				Digest string `json:"digest"`
				Score  int    `json:"score"`
			}
			in := profile{Digest: "abc123", Score: 42}
			if err := c.Save("k", in); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			var out profile
			found, err := c.Load("k", time.Hour, &out)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !found {
				t.Fatal("expected entry to be found")
			}
			if out != in {
				t.Errorf("round trip mismatch: got %+v want %+v", out, in)
			}
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Save("k", "first"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save("k", "second"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var out string
	found, err := s.Load("k", time.Hour, &out)
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if out != "second" {
		t.Errorf("got %q, want %q", out, "second")
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)

	var out string
	found, err := s.Load("absent", time.Hour, &out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("expected a miss for absent key")
	}
}

func TestExpiredEntryDeletedOnRead(t *testing.T) {
	s := openTestStore(t)

	if err := s.Save("k", "value"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	var out string
	found, err := s.Load("k", 10*time.Millisecond, &out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Fatal("expected expired entry to read as a miss")
	}

	// The entry must be gone, not merely skipped: a later read with a
	// generous validity still misses.
	found, err = s.Load("k", time.Hour, &out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("expired entry was not deleted")
	}
}

func TestCorruptPayloadIsMiss(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.db.Exec(
		`INSERT INTO entries (key, payload, saved_at) VALUES (?, ?, 0)`,
		"bad", []byte("{not json"),
	); err != nil {
		t.Fatalf("inject corrupt payload: %v", err)
	}

	var out string
	found, err := s.Load("bad", time.Hour, &out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Error("corrupt payload must read as a miss")
	}
}

func TestClosedStore(t *testing.T) {
	m := NewMemory()
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Save("k", "v"); err != ErrClosed {
		t.Errorf("Save after close: got %v, want ErrClosed", err)
	}
}

func TestKeyDeterminism(t *testing.T) {
	a := Key("https://example.com", "fingerprint")
	b := Key("https://example.com", "fingerprint")
	if a != b {
		t.Errorf("same origin produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "fingerprint-") {
		t.Errorf("key %q does not carry its prefix", a)
	}
}

func TestKeyOriginIsolation(t *testing.T) {
	a := Key("https://example.com", "fingerprint")
	b := Key("https://example.org", "fingerprint")
	if a == b {
		t.Error("different origins collided under the same prefix")
	}
}
