package headerval

import (
	"strconv"
	"strings"

	"github.com/arourke/httpdl/pkg/paramtok"
)

// STS is a parsed Strict-Transport-Security header.
type STS struct {
	MaxAge            int64
	IncludeSubDomains bool
}

// ParseSTS parses a Strict-Transport-Security header value. max-age is
// required; its absence is a parse failure.
func ParseSTS(headerValue string) (STS, bool) {
	var out STS
	haveMaxAge := false

	tok := paramtok.New(headerValue, ';')
	for !tok.Done() {
		p, ok := tok.Next()
		if !ok {
			break
		}
		switch strings.ToLower(p.Name) {
		case "max-age":
			n, err := strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64)
			if err != nil {
				return STS{}, false
			}
			out.MaxAge = n
			haveMaxAge = true
		case "includesubdomains":
			out.IncludeSubDomains = true
		}
	}

	if !haveMaxAge {
		return STS{}, false
	}
	return out, true
}
