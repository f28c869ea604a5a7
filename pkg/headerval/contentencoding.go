package headerval

import "strings"

// ShouldInlineGunzip reports whether the transaction engine should decode
// the body inline for the given Content-Encoding, URL path and Content-Type.
// gzip is decoded inline when compression was requested and the resource
// doesn't already look like a gzip archive by extension or declared type.
func ShouldInlineGunzip(contentEncoding, urlPath, contentType string, compressionEnabled bool) bool {
	if !compressionEnabled {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(contentEncoding), "gzip") {
		return false
	}
	lower := strings.ToLower(urlPath)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
		return false
	}
	if strings.Contains(strings.ToLower(contentType), "gzip") {
		return false
	}
	return true
}

// IsRecognizedButUndecoded reports whether encoding is one the engine
// recognizes but leaves untouched (the extension is preserved downstream).
func IsRecognizedButUndecoded(encoding string) bool {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "deflate", "br", "compress":
		return true
	}
	return false
}
