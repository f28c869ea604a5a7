// Package headerval interprets specific response header values the
// transaction engine's EXTRACT state needs beyond simple string lookup:
// Content-Disposition filenames, Strict-Transport-Security directives and
// Content-Range spans.
package headerval

import (
	"net/url"
	"strings"

	"github.com/arourke/httpdl/pkg/paramtok"
	"golang.org/x/text/encoding/ianaindex"
)

// Filename extracts the suggested basename from a Content-Disposition
// header value, preferring the encoded filename* form over the bare
// filename when both are present, and concatenating segmented filename*N
// parts in order of appearance.
func Filename(headerValue string) (string, bool) {
	var (
		plain        string
		havePlain    bool
		encodedWon   bool
		encodedVal   string
		segments     = map[int]string{}
		haveSegments bool
		charset      string
	)

	tok := paramtok.New(headerValue, ';')
	for !tok.Done() {
		p, ok := tok.Next()
		if !ok {
			break
		}
		name := strings.ToLower(p.Name)
		switch {
		case name == "filename" && p.Segment < 0 && !p.IsURLEncoded:
			plain = p.Value
			havePlain = true
		case name == "filename" && p.IsURLEncoded && p.Segment < 0:
			cs, _, decoded := decodeExtValue(p.Value)
			charset = cs
			encodedVal = decoded
			encodedWon = true
		case name == "filename" && p.Segment >= 0:
			if p.Segment == 0 && p.IsURLEncoded {
				cs, enc := splitCharsetLang(p.Value)
				charset = cs
				segments[0] = percentDecode(enc)
			} else if p.IsURLEncoded {
				segments[p.Segment] = percentDecode(p.Value)
			} else {
				segments[p.Segment] = p.Value
			}
			haveSegments = true
		}
	}

	var selected string
	switch {
	case encodedWon:
		selected = encodedVal
	case haveSegments:
		selected = decodeCharset(joinSegments(segments), charset)
	case havePlain:
		selected = plain
	default:
		return "", false
	}

	base := basename(selected)
	if base == "" {
		return "", false
	}
	return base, true
}

func joinSegments(segs map[int]string) string {
	var b strings.Builder
	for i := 0; ; i++ {
		v, ok := segs[i]
		if !ok {
			break
		}
		b.WriteString(v)
	}
	return b.String()
}

// decodeExtValue parses charset'lang'percent-encoded-bytes and decodes it
// using the named charset, falling back to the raw percent-decoded bytes
// when the charset is unrecognized.
func decodeExtValue(raw string) (charset, lang, value string) {
	cs, enc := splitCharsetLang(raw)
	return cs, "", decodeCharset(percentDecode(enc), cs)
}

// splitCharsetLang splits the charset'lang'percent-encoded-bytes form of an
// RFC 2231 extended value. Only segment 0 of a segmented filename*N*
// parameter carries this prefix; later segments are bare percent-encoded
// bytes continuing the same charset.
func splitCharsetLang(raw string) (charset, encoded string) {
	parts := strings.SplitN(raw, "'", 3)
	if len(parts) != 3 {
		return "", raw
	}
	return parts[0], parts[2]
}

// percentDecode unescapes a percent-encoded span, returning it unchanged if
// it is malformed rather than discarding the bytes.
func percentDecode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// decodeCharset converts raw bytes from charset to UTF-8, leaving them
// untouched when charset is empty, already UTF-8, or unrecognized.
func decodeCharset(raw, charset string) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return raw
	}
	e, err := ianaindex.IANA.Encoding(charset)
	if err != nil || e == nil {
		return raw
	}
	if u, err := e.NewDecoder().String(raw); err == nil {
		return u
	}
	return raw
}

// basename strips any directory components, tolerating both separators
// since the source URL or header may use either.
func basename(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "/\\"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
