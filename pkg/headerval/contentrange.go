package headerval

import (
	"strconv"
	"strings"
)

// ContentRange is a parsed Content-Range response header.
// Total is -1 when the server sent "*" (unknown total size).
type ContentRange struct {
	First, Last, Total int64
}

// ParseContentRange parses "bytes FIRST-LAST/TOTAL", tolerating an optional
// leading "bytes" token, an optional ':' after it, and "*" for an unknown
// total. It rejects last < first and, when total is known, total <= last.
func ParseContentRange(v string) (ContentRange, bool) {
	v = strings.TrimSpace(v)
	if rest, ok := cutPrefixFold(v, "bytes"); ok {
		v = strings.TrimSpace(rest)
		v = strings.TrimPrefix(v, ":")
		v = strings.TrimSpace(v)
	}

	slash := strings.IndexByte(v, '/')
	if slash < 0 {
		return ContentRange{}, false
	}
	span, totalStr := v[:slash], v[slash+1:]

	dash := strings.IndexByte(span, '-')
	if dash < 0 {
		return ContentRange{}, false
	}
	first, err := strconv.ParseInt(strings.TrimSpace(span[:dash]), 10, 64)
	if err != nil {
		return ContentRange{}, false
	}
	last, err := strconv.ParseInt(strings.TrimSpace(span[dash+1:]), 10, 64)
	if err != nil {
		return ContentRange{}, false
	}
	if last < first {
		return ContentRange{}, false
	}

	var total int64 = -1
	totalStr = strings.TrimSpace(totalStr)
	if totalStr != "*" {
		total, err = strconv.ParseInt(totalStr, 10, 64)
		if err != nil {
			return ContentRange{}, false
		}
		if total <= last {
			return ContentRange{}, false
		}
	}

	return ContentRange{First: first, Last: last, Total: total}, true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
