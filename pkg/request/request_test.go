package request

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetReplacesExistingHeaderInPlace(t *testing.T) {
	r := New("GET", "/")
	r.Set("Host", "first.example")
	r.Set("Accept", "*/*")
	r.Set("Host", "second.example")

	if got, ok := r.Get("host"); !ok || got != "second.example" {
		t.Errorf("Get(host) = %q, %v", got, ok)
	}
	if len(r.headers) != 2 {
		t.Errorf("Set on an existing header should not append a duplicate, got %d headers", len(r.headers))
	}
}

func TestSetRawSplitsOnFirstColon(t *testing.T) {
	r := New("GET", "/")
	if ok := r.SetRaw("X-Custom: a:b:c"); !ok {
		t.Fatal("SetRaw should accept a well-formed header line")
	}
	if got, _ := r.Get("X-Custom"); got != "a:b:c" {
		t.Errorf("Get(X-Custom) = %q, want %q", got, "a:b:c")
	}
	if ok := r.SetRaw("no-colon-here"); ok {
		t.Error("SetRaw should reject a line with no colon")
	}
}

func TestRemoveDeletesHeader(t *testing.T) {
	r := New("GET", "/")
	r.Set("X-A", "1")
	r.Set("X-B", "2")
	r.Remove("x-a")
	if _, ok := r.Get("X-A"); ok {
		t.Error("X-A should be removed")
	}
	if got, ok := r.Get("X-B"); !ok || got != "2" {
		t.Errorf("X-B should survive a removal of a different header, got %q, %v", got, ok)
	}
}

func TestFormatRendersRequestLineAndHeaders(t *testing.T) {
	r := New("GET", "/index.html")
	r.Set("Host", "example.com")
	r.Set("User-Agent", "httpdl/1.0")

	got := r.format()
	if !strings.HasPrefix(got, "GET /index.html HTTP/1.1\r\n") {
		t.Errorf("format() request line wrong: %q", got)
	}
	if !strings.Contains(got, "Host: example.com\r\n") {
		t.Errorf("format() missing Host header: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n") {
		t.Errorf("format() should end with a blank line: %q", got)
	}
}

func TestSendWritesHeadAndBodyToSink(t *testing.T) {
	r := New("POST", "/submit")
	r.Set("Content-Length", "5")
	r.SetBody(strings.NewReader("hello"), 5)

	var sink bytes.Buffer
	outcome, err := r.Send(&sink, nil)
	if err != nil || outcome != WriteOK {
		t.Fatalf("Send() = %v, %v", outcome, err)
	}
	if !strings.HasSuffix(sink.String(), "\r\n\r\nhello") {
		t.Errorf("sink = %q, want head followed by the body", sink.String())
	}
}

func TestSendMirrorsHeadOnly(t *testing.T) {
	r := New("GET", "/")
	r.Set("Host", "example.com")

	var sink, mirror bytes.Buffer
	outcome, err := r.Send(&sink, &mirror)
	if err != nil || outcome != WriteOK {
		t.Fatalf("Send() = %v, %v", outcome, err)
	}
	if mirror.String() != sink.String() {
		t.Errorf("mirror = %q, want it to match the head written to sink (%q)", mirror.String(), sink.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errWriteFailed }

var errWriteFailed = &writeError{"boom"}

type writeError struct{ msg string }

func (e *writeError) Error() string { return e.msg }

func TestSendReportsSinkFailureBeforeMirror(t *testing.T) {
	r := New("GET", "/")
	outcome, err := r.Send(failingWriter{}, failingWriter{})
	if err == nil || outcome != WriteSinkFailed {
		t.Errorf("Send() = %v, %v; want WriteSinkFailed", outcome, err)
	}
}

func TestSendReportsMirrorFailureWhenSinkSucceeds(t *testing.T) {
	r := New("GET", "/")
	var sink bytes.Buffer
	outcome, err := r.Send(&sink, failingWriter{})
	if err == nil || outcome != WriteMirrorFailed {
		t.Errorf("Send() = %v, %v; want WriteMirrorFailed", outcome, err)
	}
}
