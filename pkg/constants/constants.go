// Package constants holds the magic numbers shared across the engine's
// connection, transport and body-reading layers.
package constants

import "time"

// Connection timeouts.
const (
	DefaultConnTimeout = 10 * time.Second
	DefaultReadTimeout = 30 * time.Second
)

// MaxContentLength rejects an implausible declared Content-Length before
// it is ever used to size a read or a retry's restval math.
const MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
