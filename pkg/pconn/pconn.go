// Package pconn implements the persistent-connection cache: spec §4.7's
// single active record (not a generic pool), a non-blocking liveness
// probe, and the Finish/Invalidate release discipline the transaction
// engine uses instead of always closing.
//
// Adapted from the teacher's pkg/transport.Transport, which ran a
// per-host LIFO idle pool with a background reaper goroutine; this engine
// is single-threaded with exactly one in-flight transaction (spec §5), so
// the pool collapses to one record, register/invalidate replace
// checkout/release, and the reaper goroutine is dropped entirely.
package pconn

import (
	"net"
	"strings"
	"sync"
	"time"
)

// Record is the single cached connection, plus the bookkeeping the
// transaction engine needs to decide whether it can be reused.
type Record struct {
	Conn       net.Conn
	Host       string
	Port       int
	TLS        bool
	Active     bool
	Authorized bool // true once NTLM has authenticated this connection
}

// Cache holds at most one persistent connection record, matching the
// spec's "holds a single record" contract.
type Cache struct {
	mu  sync.Mutex
	rec *Record
}

// New creates an empty cache.
func New() *Cache { return &Cache{} }

// Register closes any prior different record, stores the new one as
// active, and clears the authorized flag (a fresh connection starts
// unauthorized even to the same host).
func (c *Cache) Register(host string, port int, conn net.Conn, tlsConn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil && c.rec.Conn != conn {
		c.rec.Conn.Close()
	}
	c.rec = &Record{Host: host, Port: port, Conn: conn, TLS: tlsConn, Active: true}
}

// AvailableFor reports whether the cached connection can serve a request
// to host:port: it must be active, on the same port, and either
// same-host (case-insensitive) or the cached peer IP resolves to one of
// host's addresses (the virtual-host fallback). A failed liveness probe
// invalidates the record and returns false.
func (c *Cache) AvailableFor(host string, port int, resolvedIPs []net.IP) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil || !c.rec.Active || c.rec.Port != port {
		return nil, false
	}

	sameHost := strings.EqualFold(c.rec.Host, host)
	sameAddr := false
	if !sameHost {
		if peerHost, _, err := net.SplitHostPort(c.rec.Conn.RemoteAddr().String()); err == nil {
			peerIP := net.ParseIP(peerHost)
			for _, ip := range resolvedIPs {
				if peerIP != nil && ip.Equal(peerIP) {
					sameAddr = true
					break
				}
			}
		}
	}
	if !sameHost && !sameAddr {
		return nil, false
	}

	if !probeAlive(c.rec.Conn) {
		c.invalidateLocked()
		return nil, false
	}

	return c.rec, true
}

// probeAlive performs a non-blocking liveness check: a read that times
// out immediately means the connection is idle and alive; any other
// outcome (data arriving unexpectedly, or a hard error) is treated as
// dead, since HTTP/1.1 keep-alive connections should be silent between
// requests.
func probeAlive(conn net.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer conn.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	_, err := conn.Read(one)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// Finish leaves the connection cached and active for reuse if keep-alive
// is desired; if keepAlive is false it closes and invalidates, matching
// CLOSE_FINISH.
func (c *Cache) Finish(conn net.Conn, keepAlive bool) {
	if keepAlive {
		return
	}
	c.Invalidate(conn)
}

// Invalidate closes conn and clears the cached record if it matches,
// matching CLOSE_INVALIDATE.
func (c *Cache) Invalidate(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil && c.rec.Conn == conn {
		c.invalidateLocked()
	} else {
		conn.Close()
	}
}

func (c *Cache) invalidateLocked() {
	if c.rec == nil {
		return
	}
	c.rec.Conn.Close()
	c.rec = nil
}

// MarkAuthorized sets the NTLM-authorized flag on the current record, if
// conn is still the cached connection.
func (c *Cache) MarkAuthorized(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil && c.rec.Conn == conn {
		c.rec.Authorized = true
	}
}

// IsAuthorized reports the current record's NTLM-authorized flag.
func (c *Cache) IsAuthorized(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil && c.rec.Conn == conn && c.rec.Authorized
}
