package pconn

import (
	"context"
	"net"

	"github.com/arourke/httpdl/pkg/timing"
)

// DefaultTransport adapts Connect (dial.go) and probeAlive to the narrow
// Transport shape the transaction engine depends on. Registration into a
// Cache is the engine's job, not the transport's: Connect only opens a
// socket, it does not know which cache (if any) should own the result.
type DefaultTransport struct {
	Options DialOptions
}

// NewDefaultTransport builds a transport that dials with a copy of base
// for every call, with Host/Port/Scheme overridden per connect.
func NewDefaultTransport(base DialOptions) *DefaultTransport {
	return &DefaultTransport{Options: base}
}

func (t *DefaultTransport) Connect(ctx context.Context, host string, port int, tlsConn bool, timer *timing.Timer) (net.Conn, error) {
	opts := t.Options
	opts.Host = host
	opts.Port = port
	if tlsConn {
		opts.Scheme = "https"
	} else {
		opts.Scheme = "http"
	}
	return Connect(ctx, opts, timer)
}

// Resolve looks up host's addresses, used by Cache.AvailableFor's
// virtual-host fallback match: a pooled connection is reusable for a new
// host if that host resolves to the same peer the pool already holds.
func (t *DefaultTransport) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// ProbeOpen exposes the Cache's liveness probe for callers that hold a raw
// conn outside a Cache (e.g. before the first Register).
func (t *DefaultTransport) ProbeOpen(conn net.Conn) bool {
	return probeAlive(conn)
}
