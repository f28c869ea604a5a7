package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/httperr"
)

// Mode selects one of the four file-open disciplines spec §5 requires.
type Mode int

const (
	// ModeTruncate opens for writing, creating or truncating.
	ModeTruncate Mode = iota
	// ModeAppend opens for writing at EOF, for resuming a partial download.
	ModeAppend
	// ModeExclusive fails if the file already exists (no-clobber).
	ModeExclusive
	// ModeTemp opens a fresh O_CREAT|O_TRUNC handle, for temporary/staging
	// files (e.g. pre-rename download-in-progress files).
	ModeTemp
)

// Sink is an open output file plus the bookkeeping the transaction engine
// needs to decide success/failure and final placement.
type Sink struct {
	File *os.File
	Path string
	Mode Mode
}

// Open opens path per mode. ModeExclusive returns httperr.FopenExclErr
// when the file exists; any other open failure returns httperr.FopenErr.
func Open(path string, mode Mode) (*Sink, error) {
	var flags int
	switch mode {
	case ModeTruncate, ModeTemp:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ModeAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case ModeExclusive:
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	default:
		return nil, httperr.New(httperr.FileBadFile, "sink.open", "unknown mode", nil)
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if mode == ModeExclusive && os.IsExist(err) {
			return nil, httperr.New(httperr.FopenExclErr, "sink.open", path, err)
		}
		return nil, httperr.New(httperr.FopenErr, "sink.open", path, err)
	}
	return &Sink{File: f, Path: path, Mode: mode}, nil
}

// Write writes p, translating a failure into httperr.FwriteErr.
func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.File.Write(p)
	if err != nil {
		return n, httperr.New(httperr.FwriteErr, "sink.write", s.Path, err)
	}
	return n, nil
}

// Close closes the underlying handle. It is safe to call on every exit
// path of the transaction engine, including error paths; callers should
// defer it immediately after Open succeeds.
func (s *Sink) Close() error {
	return s.File.Close()
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size in bytes of an existing file, or 0 if absent.
func Size(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}

// UniqueName appends ".1", ".2", ... to base until an unused path is
// found, the no-clobber "auto-unique" naming behavior.
func UniqueName(base string) string {
	if !Exists(base) {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, i, ext)
		if !Exists(candidate) {
			return candidate
		}
	}
}

// LooksLikeHTML applies the suffix heuristic used to decide whether a
// no-clobber "already exists" short-circuit should be reported as an HTML
// document (affects downstream link-following decisions in a full
// downloader; here it's surfaced for callers that need it).
func LooksLikeHTML(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// Touch sets path's mtime to t, used after a successful download when
// server timestamps are honored.
func Touch(path string, mtime int64) error {
	t := time.Unix(mtime, 0)
	return os.Chtimes(path, t, t)
}
