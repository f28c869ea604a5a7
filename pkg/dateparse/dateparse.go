// Package dateparse parses the handful of HTTP date formats the engine
// accepts for Last-Modified, If-Modified-Since and Set-Cookie Expires
// values, trying each in turn the way the teacher's helpers try candidate
// formats before giving up.
package dateparse

import "time"

// Unknown is the sentinel returned when no layout matches, mirroring the
// transaction engine's -1 "could not convert" outcome.
const Unknown = -1

// layouts are tried in order; Go's reference-time layouts are locale
// independent (month/day names are matched literally against the English
// abbreviations), so there is no analogue to the C-locale save/restore the
// original implementation needed around strptime.
var layouts = []string{
	time.RFC1123,             // "Mon, 02 Jan 2006 15:04:05 MST"
	"Monday, 02-Jan-06 15:04:05 MST", // RFC 850
	"Mon Jan  2 15:04:05 2006",       // asctime
	"Mon, 02-Jan-2006 15:04:05 MST",  // Set-Cookie style
}

// Parse tries each known layout and returns the first successful match as a
// Unix timestamp, or Unknown if none apply.
func Parse(s string) int64 {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return Unknown
}

// ParseTime is like Parse but returns the parsed time.Time in UTC and a bool
// indicating success, for callers that want the full value rather than just
// the epoch seconds.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatRFC1123 renders t the way the engine emits If-Modified-Since and
// other outbound date headers.
func FormatRFC1123(t time.Time) string {
	return t.UTC().Format(time.RFC1123)
}
