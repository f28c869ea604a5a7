package hsts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreEntryAndMatchCongruent(t *testing.T) {
	s := New()
	s.StoreEntry(true, "example.com", 443, 443, 3600, false)

	result := s.Match("example.com", 80, 80)
	if !result.Changed || result.NewPort != 443 {
		t.Fatalf("Match() = %+v, want upgrade to 443", result)
	}
}

func TestStoreEntryIgnoresInsecureSchemeAndIPLiterals(t *testing.T) {
	s := New()
	s.StoreEntry(false, "example.com", 443, 443, 3600, false)
	if result := s.Match("example.com", 80, 80); result.Changed {
		t.Error("a Strict-Transport-Security header seen over plain HTTP must not be stored")
	}

	s.StoreEntry(true, "192.0.2.10", 443, 443, 3600, false)
	if result := s.Match("192.0.2.10", 80, 80); result.Changed {
		t.Error("IP-literal hosts must never get HSTS policy")
	}
}

func TestSuperdomainMatchRequiresIncludeSubDomains(t *testing.T) {
	s := New()
	s.StoreEntry(true, "example.com", 443, 443, 3600, false)

	if result := s.Match("sub.example.com", 80, 80); result.Changed {
		t.Error("superdomain match without IncludeSubDomains must not upgrade")
	}

	s2 := New()
	s2.StoreEntry(true, "example.com", 443, 443, 3600, true)
	if result := s2.Match("deep.sub.example.com", 80, 80); !result.Changed {
		t.Error("superdomain match with IncludeSubDomains should upgrade a deeper subdomain")
	}
}

func TestMaxAgeZeroRemovesEntry(t *testing.T) {
	s := New()
	s.StoreEntry(true, "example.com", 443, 443, 3600, false)
	s.StoreEntry(true, "example.com", 443, 443, 0, false)

	if result := s.Match("example.com", 80, 80); result.Changed {
		t.Error("max-age=0 should remove the entry")
	}
}

func TestExpiredEntryIsNotMatched(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.entries[Key{Host: "example.com", Port: 0}] = Entry{Created: time.Now().Add(-2 * time.Hour).Unix(), MaxAge: 60}
	s.mu.Unlock()

	if result := s.Match("example.com", 80, 80); result.Changed {
		t.Error("expired entry should not upgrade the connection")
	}
}

func TestExpiredSuperdomainEntryIsActuallyRemoved(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.entries[Key{Host: "example.com", Port: 0}] = Entry{
		Created: time.Now().Add(-2 * time.Hour).Unix(), MaxAge: 60, IncludeSubDomains: true,
	}
	s.mu.Unlock()

	if result := s.Match("sub.example.com", 80, 80); result.Changed {
		t.Error("expired superdomain entry should not upgrade the connection")
	}

	s.mu.Lock()
	_, stillPresent := s.entries[Key{Host: "example.com", Port: 0}]
	s.mu.Unlock()
	if stillPresent {
		t.Error("Match should delete the expired entry under the host it was actually stored under, not the queried subdomain")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsts.db")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load(missing file) error: %v", err)
	}
	s.StoreEntry(true, "example.com", 443, 443, 3600, true)
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(existing file) error: %v", err)
	}
	result := reloaded.Match("anything.example.com", 80, 80)
	if !result.Changed {
		t.Error("reloaded store should still upgrade a subdomain after round-tripping through disk")
	}
}

func TestSaveIsNoopWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsts.db")
	s, _ := Load(path)
	if err := s.Save(); err != nil {
		t.Fatalf("Save() on untouched store error: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("Save() on an unmodified store should not create a file")
	}
}
