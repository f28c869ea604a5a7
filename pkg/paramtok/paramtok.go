// Package paramtok tokenizes semicolon- or comma-delimited parameter lists
// found in header values (Content-Disposition, Strict-Transport-Security,
// WWW-Authenticate), including the RFC 2231/6266 extended-parameter forms
// used for internationalized filenames.
package paramtok

import "strings"

// Param is one name=value pair extracted from a header value.
type Param struct {
	Name string
	// Value holds the raw (still percent-encoded, if IsURLEncoded) value
	// span; quotes have already been stripped.
	Value string
	// Segment is the N in a segmented name*N or name*N* parameter, or -1
	// when the parameter is not segmented.
	Segment int
	// IsURLEncoded reports that Value is charset'lang'percent-encoded-bytes
	// (name*) or raw percent-encoded bytes of one segment (name*N*).
	IsURLEncoded bool
}

// Tokenizer walks a header value, yielding one Param per call to Next.
type Tokenizer struct {
	s   string
	pos int
	sep byte
}

// New creates a Tokenizer over s, splitting parameters on sep (typically
// ';' for Content-Disposition/STS, ',' for WWW-Authenticate scheme lists).
func New(s string, sep byte) *Tokenizer {
	return &Tokenizer{s: s, sep: sep}
}

func (t *Tokenizer) skipSpace() {
	for t.pos < len(t.s) && (t.s[t.pos] == ' ' || t.s[t.pos] == '\t') {
		t.pos++
	}
}

func (t *Tokenizer) skipSeparator() {
	t.skipSpace()
	if t.pos < len(t.s) && t.s[t.pos] == t.sep {
		t.pos++
	}
	t.skipSpace()
}

// Done reports whether the cursor has reached the end of input.
func (t *Tokenizer) Done() bool {
	t.skipSpace()
	return t.pos >= len(t.s)
}

// Next advances past one parameter, returning it and true, or false at end
// of input. A parameter with no '=' yields an empty Value.
func (t *Tokenizer) Next() (Param, bool) {
	t.skipSpace()
	if t.pos >= len(t.s) {
		return Param{}, false
	}

	nameStart := t.pos
	for t.pos < len(t.s) && t.s[t.pos] != '=' && t.s[t.pos] != t.sep {
		t.pos++
	}
	rawName := strings.TrimSpace(t.s[nameStart:t.pos])

	var value string
	if t.pos < len(t.s) && t.s[t.pos] == '=' {
		t.pos++
		t.skipSpace()
		value = t.readValue()
	}

	t.skipSeparator()

	name, segment, encoded := splitExtended(rawName)
	return Param{Name: name, Value: value, Segment: segment, IsURLEncoded: encoded}, true
}

// readValue consumes either a "quoted" string or a bare token up to the
// separator, leaving t.pos positioned at the separator or end of input.
func (t *Tokenizer) readValue() string {
	if t.pos < len(t.s) && t.s[t.pos] == '"' {
		t.pos++
		start := t.pos
		var b strings.Builder
		for t.pos < len(t.s) && t.s[t.pos] != '"' {
			if t.s[t.pos] == '\\' && t.pos+1 < len(t.s) {
				b.WriteByte(t.s[t.pos+1])
				t.pos += 2
				continue
			}
			b.WriteByte(t.s[t.pos])
			t.pos++
		}
		_ = start
		if t.pos < len(t.s) {
			t.pos++ // closing quote
		}
		return b.String()
	}

	start := t.pos
	for t.pos < len(t.s) && t.s[t.pos] != t.sep {
		t.pos++
	}
	return strings.TrimSpace(t.s[start:t.pos])
}

// splitExtended recognizes the RFC 2231 forms name*, name*N, name*N* and
// strips the suffix, reporting the segment number (-1 if not segmented) and
// whether the value is percent-encoded.
func splitExtended(name string) (base string, segment int, encoded bool) {
	segment = -1
	star := strings.IndexByte(name, '*')
	if star < 0 {
		return name, segment, false
	}

	base = name[:star]
	rest := name[star+1:]

	if rest == "" {
		// name*
		return base, -1, true
	}

	if rest[len(rest)-1] == '*' {
		rest = rest[:len(rest)-1]
		encoded = true
	}

	if rest == "" {
		return base, -1, encoded
	}

	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			// Not actually a segment number; treat the whole thing as part
			// of the name rather than guessing.
			return name, -1, false
		}
		n = n*10 + int(c-'0')
	}
	return base, n, encoded
}
