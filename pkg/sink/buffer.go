// Package sink implements the local file destination for a downloaded
// payload: the four file-open modes (truncate, append/continue,
// exclusive/no-clobber, temp) and a memory-then-disk spill buffer.
package sink

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/arourke/httpdl/pkg/httperr"
)

// DefaultMemoryLimit is the in-memory threshold before a Buffer spills to a
// temp file, adapted from the teacher's buffer.Buffer.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Buffer accumulates written bytes in memory up to limit, then spools the
// remainder to a temp file. Sink and the transaction engine do not use it;
// response bodies are written straight to the target file.
type Buffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// NewBuffer creates a Buffer with the given memory limit; limit <= 0 uses
// DefaultMemoryLimit.
func NewBuffer(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, httperr.New(httperr.FwriteErr, "buffer.write", "buffer is closed", nil)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "httpdl-buffer-*.tmp")
		if err != nil {
			return 0, httperr.New(httperr.FopenErr, "buffer.write", "creating spill file", err)
		}
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.Close()
				return 0, httperr.New(httperr.FwriteErr, "buffer.write", "spilling buffered data", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, httperr.New(httperr.FwriteErr, "buffer.write", "writing to spill file", err)
	}
	return n, nil
}

// Bytes returns the in-memory payload; nil once spilled to disk.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Path returns the backing spill file path, empty if never spilled.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Size returns the total bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled reports whether the buffer has spooled to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader returns a fresh reader over the stored payload.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, httperr.New(httperr.FopenErr, "buffer.reader", "buffer is closed", nil)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, httperr.New(httperr.FwriteErr, "buffer.reader", "syncing spill file", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, httperr.New(httperr.FopenErr, "buffer.reader", "reopening spill file", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close releases the spill file, if any. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return httperr.New(httperr.FwriteErr, "buffer.close", "closing spill file", err)
		}
	}
	return nil
}
