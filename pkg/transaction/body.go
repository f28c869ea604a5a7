package transaction

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/arourke/httpdl/pkg/httperr"
	"github.com/klauspost/compress/gzip"
)

// readHead reads from r until a blank line (the end of a response head),
// bounded by MaxHeadSize. It returns HeadEOF if the connection produced no
// bytes at all, and HeadErr for a read failure or an oversized head.
func readHead(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	sawAny := false
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			sawAny = true
			buf.WriteString(line)
		}
		if err != nil {
			if err == io.EOF {
				if !sawAny {
					return nil, httperr.New(httperr.HeadEOF, "transaction.read_head", "connection closed before any data", nil)
				}
				break
			}
			return nil, httperr.New(httperr.HeadErr, "transaction.read_head", "", err)
		}
		if buf.Len() > MaxHeadSize {
			return nil, httperr.New(httperr.HeadErr, "transaction.read_head", "response head exceeds 64KiB", nil)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	return buf.Bytes(), nil
}

// readChunked decodes an RFC 7230 §4.1 chunked body from r, writing
// decoded bytes to w. It stops at the zero-size terminal chunk, consuming
// any trailer headers and the final CRLF.
func readChunked(r *bufio.Reader, w io.Writer) (int64, error) {
	var total int64
	for {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return total, httperr.New(httperr.ReadErr, "transaction.chunked", "read chunk size", err)
		}
		sizeLine = strings.TrimRight(sizeLine, "\r\n")
		if semi := strings.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi] // discard chunk-extension
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return total, httperr.New(httperr.ReadErr, "transaction.chunked", "malformed chunk size", err)
		}
		if size == 0 {
			for {
				trailer, err := r.ReadString('\n')
				if err != nil {
					return total, httperr.New(httperr.ReadErr, "transaction.chunked", "read trailer", err)
				}
				if strings.TrimRight(trailer, "\r\n") == "" {
					break
				}
			}
			return total, nil
		}

		n, err := io.CopyN(w, r, size)
		total += n
		if err != nil {
			return total, httperr.New(httperr.ReadErr, "transaction.chunked", "read chunk data", err)
		}
		if _, err := io.CopyN(io.Discard, r, 2); err != nil { // trailing CRLF
			return total, httperr.New(httperr.ReadErr, "transaction.chunked", "read chunk terminator", err)
		}
	}
}

// skipWriter discards the first n bytes written to it (RestVal's
// skip-unsupported-Range fallback), then forwards the remainder to w.
type skipWriter struct {
	remaining int64
	w         io.Writer
}

func (s *skipWriter) Write(p []byte) (int, error) {
	if s.remaining > 0 {
		if int64(len(p)) <= s.remaining {
			s.remaining -= int64(len(p))
			return len(p), nil
		}
		skip := s.remaining
		s.remaining = 0
		n, err := s.w.Write(p[skip:])
		return n + int(skip), err
	}
	return s.w.Write(p)
}

// bodyParams bundles the EXTRACT-state facts the body reader needs.
type bodyParams struct {
	ContentLength int64 // -1 if unknown
	Chunked       bool
	RestVal       int64
	RangeHonored  bool // Content-Range was present in the response
	Gunzip        bool
}

// readResponseBody implements spec §4.10's body reader: chunked when the
// response says so, else exact Content-Length, else EOF; RestVal bytes are skipped from
// the decoded entity stream when the server didn't honor the Range
// request; gzip is inlined when EXTRACT determined it should be. Writes
// fan out to sink and, when non-nil, mirror.
func readResponseBody(r *bufio.Reader, p bodyParams, out io.Writer, mirror io.Writer) (int64, error) {
	var dest io.Writer = out
	if mirror != nil {
		dest = io.MultiWriter(out, mirror)
	}
	if p.RestVal > 0 && !p.RangeHonored {
		dest = &skipWriter{remaining: p.RestVal, w: dest}
	}

	if p.Gunzip {
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		go func() {
			n, err := readRawBody(r, p, pw)
			pw.CloseWithError(err)
			done <- errOrNil(n, err)
		}()
		gz, err := gzip.NewReader(pr)
		if err != nil {
			// The producer goroutine may still be blocked inside pw.Write
			// with more raw bytes to deliver (io.Pipe has no internal
			// buffer); closing the read side unblocks it with
			// io.ErrClosedPipe instead of leaving it stuck forever on a
			// malformed or mislabeled gzip body.
			pr.CloseWithError(err)
			<-done
			return 0, httperr.New(httperr.ReadErr, "transaction.gunzip", "", err)
		}
		n, copyErr := io.Copy(dest, gz)
		gz.Close()
		if copyErr != nil {
			// Same reasoning: a corrupt gzip stream can stop the consumer
			// (gz, reading from pr) before the producer has written
			// everything it intends to, so unblock it the same way.
			pr.CloseWithError(copyErr)
		}
		if rawErr := <-done; rawErr != nil && copyErr == nil {
			copyErr = rawErr
		}
		if copyErr != nil {
			return n, httperr.New(httperr.ReadErr, "transaction.gunzip", "", copyErr)
		}
		return n, nil
	}

	return readRawBody(r, p, dest)
}

func errOrNil(n int64, err error) error { _ = n; return err }

func readRawBody(r *bufio.Reader, p bodyParams, dest io.Writer) (int64, error) {
	switch {
	case p.Chunked:
		return readChunked(r, dest)
	case p.ContentLength >= 0:
		n, err := io.CopyN(dest, r, p.ContentLength)
		if err != nil && err != io.EOF {
			return n, httperr.New(httperr.ReadErr, "transaction.body", "", err)
		}
		return n, nil
	default:
		n, err := io.Copy(dest, r)
		if err != nil {
			return n, httperr.New(httperr.ReadErr, "transaction.body", "", err)
		}
		return n, nil
	}
}

// drainShort discards up to ShortBodyThreshold bytes of an unwanted body
// (e.g. a 401 challenge's body) without writing them anywhere.
func drainShort(r *bufio.Reader, contentLength int64) {
	limit := int64(ShortBodyThreshold)
	if contentLength >= 0 && contentLength < limit {
		limit = contentLength
	}
	io.CopyN(io.Discard, r, limit)
}
