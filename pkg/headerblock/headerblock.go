// Package headerblock parses a raw HTTP response head into indexed header
// lines, supporting case-insensitive lookup, multi-valued iteration and
// line folding, the way the transaction engine's READ_HEAD/EXTRACT states
// consume it.
package headerblock

import (
	"strconv"
	"strings"
)

// Line is one logical header line (folded continuations already joined).
type Line struct {
	Name  string
	Value string
}

// Block is a parsed response head: a status line plus an ordered list of
// header lines, preserving duplicate-name ordering for Set-Cookie and
// WWW-Authenticate.
type Block struct {
	StatusCode int
	StatusMsg  string
	// HTTP09 is true when the head was empty and a synthetic 200 status was
	// assigned, per the status-line parsing rule for pre-HTTP/1.0 servers.
	HTTP09 bool
	Lines  []Line
}

// Parse splits raw (the full head, CRLF or LF terminated, without the
// trailing blank line) into a status line and folded header lines.
//
// An empty raw buffer is treated as an HTTP/0.9 response: status 200 with a
// synthetic reason phrase and no headers.
func Parse(raw []byte) (*Block, error) {
	text := unfold(string(raw))
	rawLines := splitLines(text)

	if len(rawLines) == 0 || strings.TrimSpace(rawLines[0]) == "" {
		return &Block{StatusCode: 200, StatusMsg: "Assumed OK", HTTP09: true}, nil
	}

	code, msg, ok := parseStatusLine(rawLines[0])
	if !ok {
		return nil, errMalformedStatus
	}

	b := &Block{StatusCode: code, StatusMsg: msg}
	for _, l := range rawLines[1:] {
		if l == "" {
			continue
		}
		name, value, ok := splitHeaderLine(l)
		if !ok {
			continue
		}
		b.Lines = append(b.Lines, Line{Name: name, Value: value})
	}
	return b, nil
}

type malformedError string

func (e malformedError) Error() string { return string(e) }

const errMalformedStatus = malformedError("malformed status line")

// unfold rewrites CRLF/LF followed by a space or tab (a folded continuation)
// into a single space, joining the continuation onto the previous line, per
// RFC 7230's obsolete line-folding rule.
func unfold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '\n' || c == '\r') {
			// Peek past any run of CR/LF to see if a fold follows.
			j := i
			for j < len(s) && (s[j] == '\r' || s[j] == '\n') {
				j++
			}
			if j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				b.WriteByte(' ')
				i = j
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// parseStatusLine validates the line starts with HTTP, skips an optional
// /MAJOR.MINOR, and parses a three-digit status code.
func parseStatusLine(line string) (code int, msg string, ok bool) {
	if !strings.HasPrefix(line, "HTTP") {
		return 0, "", false
	}
	rest := line[4:]
	if strings.HasPrefix(rest, "/") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return 0, "", false
		}
		rest = rest[sp+1:]
	} else {
		rest = strings.TrimPrefix(rest, " ")
	}

	if len(rest) < 3 {
		return 0, "", false
	}
	digits := rest[:3]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", false
	}
	msg = strings.TrimSpace(strings.TrimPrefix(rest[3:], " "))
	return n, msg, true
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:colon])
	if name == "" {
		return "", "", false
	}
	value = strings.TrimSpace(line[colon+1:])
	return name, value, true
}

// Locate returns the value of the first header named name at or after
// index start, and the index it was found at (pass index+1 as the next
// start to iterate multi-valued headers). ok is false if absent.
func (b *Block) Locate(name string, start int) (value string, index int, ok bool) {
	for i := start; i < len(b.Lines); i++ {
		if strings.EqualFold(b.Lines[i].Name, name) {
			return b.Lines[i].Value, i, true
		}
	}
	return "", -1, false
}

// Get returns the first value for name, or "" with ok=false if absent.
func (b *Block) Get(name string) (string, bool) {
	v, _, ok := b.Locate(name, 0)
	return v, ok
}

// Values returns every value for name in arrival order.
func (b *Block) Values(name string) []string {
	var out []string
	idx := 0
	for {
		v, i, ok := b.Locate(name, idx)
		if !ok {
			break
		}
		out = append(out, v)
		idx = i + 1
	}
	return out
}

// Iter calls fn for every header line in arrival order.
func (b *Block) Iter(fn func(name, value string)) {
	for _, l := range b.Lines {
		fn(l.Name, l.Value)
	}
}
