// Package engine defines the collaborator interfaces the transaction
// engine and retry loop depend on, and ClientContext, the single explicit
// structure that replaces the teacher's (and the original's) global
// mutable state: the persistent-connection cache, the HSTS store, the
// cookie jar, the preemptive-Basic host set and the WARC mirror are all
// fields here instead of package-level variables.
package engine

import (
	"context"
	"net"
	"time"

	"github.com/arourke/httpdl/pkg/auth"
	"github.com/arourke/httpdl/pkg/hsts"
	"github.com/arourke/httpdl/pkg/netrc"
	"github.com/arourke/httpdl/pkg/pconn"
	"github.com/arourke/httpdl/pkg/timing"
	"github.com/arourke/httpdl/pkg/warc"
	"go.uber.org/zap"
)

// Transport is the collaborator the transaction engine uses to open and
// probe connections; pconn.DefaultTransport is the concrete
// implementation, but tests substitute fakes. timer is nil-safe to pass
// through: a nil timer simply means the caller isn't collecting
// per-phase metrics for this attempt.
type Transport interface {
	Connect(ctx context.Context, host string, port int, tls bool, timer *timing.Timer) (net.Conn, error)
	Resolve(ctx context.Context, host string) ([]net.IP, error)
	ProbeOpen(conn net.Conn) bool
}

// URL is the external URL-parser collaborator. Per spec.md's explicit
// scope exclusion, this package ships the interface only; callers supply
// their own implementation (net/url-based or otherwise).
type URL interface {
	Scheme() string
	Host() string
	Port() int
	User() string
	Passwd() string
	Path() string
	Query() string
	Raw() string
	FullPath() string
	SchemeDefaultPort() int
	IsValidIPAddress() bool
}

// CookieJar is the narrow view of pkg/cookiejar.Jar the engine depends on.
type CookieJar interface {
	CookieHeader(scheme, host string, port int, path string) string
	HandleSetCookie(scheme, host string, port int, path, raw string)
}

// ClientContext unifies the process-wide collaborators passed to every
// transaction-engine and retry-loop call. Fields a single fetch mutates
// concurrently with another in-flight fetch (HSTS store, pool, preemptive
// set) are themselves internally synchronized; ClientContext carries no
// lock of its own because spec §5 guarantees at most one in-flight
// transaction per ClientContext.
type ClientContext struct {
	Transport  Transport
	Pool       *pconn.Cache
	HSTS       *hsts.Store
	Cookies    CookieJar
	Warc       warc.Writer
	Preemptive *auth.PreemptiveSet
	Netrc      *netrc.File
	Log        *zap.Logger

	UserAgent            string
	CompressionEnabled   bool
	AuthWithoutChallenge bool
	InhibitKeepAlive     bool
	RetryHostErr         bool
	ReadTimeout          time.Duration // 0 uses constants.DefaultReadTimeout
}

// New builds a ClientContext with the defaults a standalone client needs:
// an empty pool, an unbacked HSTS store, a nop WARC mirror, an empty
// preemptive set and no netrc. Callers replace any field before first use.
func New(transport Transport, cookies CookieJar) *ClientContext {
	return &ClientContext{
		Transport:  transport,
		Pool:       pconn.New(),
		HSTS:       hsts.New(),
		Cookies:    cookies,
		Warc:       warc.NopWriter{},
		Preemptive: auth.NewPreemptiveSet(),
		Log:        zap.NewNop(),
		UserAgent:  "httpdl/1.0",
	}
}
