package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arourke/httpdl/pkg/httperr"
)

func TestOpenTruncateCreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, ModeTruncate)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()
	if _, err := s.Write([]byte("fresh")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	s.Close()

	got, _ := os.ReadFile(path)
	if string(got) != "fresh" {
		t.Errorf("file content = %q, want %q", got, "fresh")
	}
}

func TestOpenAppendExtendsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("hell"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, ModeAppend)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := s.Write([]byte("o")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	s.Close()

	got, _ := os.ReadFile(path)
	if string(got) != "hello" {
		t.Errorf("file content = %q, want %q", got, "hello")
	}
}

func TestOpenExclusiveFailsWhenFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, ModeExclusive)
	if err == nil {
		t.Fatal("expected an error opening an existing file exclusively")
	}
	code, ok := httperr.CodeOf(err)
	if !ok || code != httperr.FopenExclErr {
		t.Errorf("error code = %v, %v; want FopenExclErr", code, ok)
	}
}

func TestOpenFailureOnMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing-dir", "out.txt"), ModeTruncate)
	if err == nil {
		t.Fatal("expected an error opening a file under a missing directory")
	}
	code, ok := httperr.CodeOf(err)
	if !ok || code != httperr.FopenErr {
		t.Errorf("error code = %v, %v; want FopenErr", code, ok)
	}
}

func TestExistsAndSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if Exists(path) {
		t.Error("Exists() on a missing file should be false")
	}
	if Size(path) != 0 {
		t.Error("Size() on a missing file should be 0")
	}
	os.WriteFile(path, []byte("12345"), 0644)
	if !Exists(path) {
		t.Error("Exists() on a present file should be true")
	}
	if Size(path) != 5 {
		t.Errorf("Size() = %d, want 5", Size(path))
	}
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "file.html")
	if got := UniqueName(base); got != base {
		t.Errorf("UniqueName() on a fresh path = %q, want %q", got, base)
	}

	os.WriteFile(base, []byte("x"), 0644)
	first := filepath.Join(dir, "file.1.html")
	if got := UniqueName(base); got != first {
		t.Errorf("UniqueName() = %q, want %q", got, first)
	}

	os.WriteFile(first, []byte("x"), 0644)
	second := filepath.Join(dir, "file.2.html")
	if got := UniqueName(base); got != second {
		t.Errorf("UniqueName() = %q, want %q", got, second)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !LooksLikeHTML("/tmp/index.html") || !LooksLikeHTML("/tmp/INDEX.HTM") {
		t.Error("html/htm suffixes should be recognized case-insensitively")
	}
	if LooksLikeHTML("/tmp/data.json") {
		t.Error("non-html suffix should not be recognized")
	}
}

func TestTouchSetsModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	os.WriteFile(path, []byte("x"), 0644)

	if err := Touch(path, 1700000000); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime().Unix() != 1700000000 {
		t.Errorf("mtime = %d, want 1700000000", info.ModTime().Unix())
	}
}
