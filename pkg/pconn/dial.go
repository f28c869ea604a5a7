package pconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/constants"
	"github.com/arourke/httpdl/pkg/httperr"
	"github.com/arourke/httpdl/pkg/timing"
	"github.com/arourke/httpdl/pkg/tlsconfig"
	"go.uber.org/zap"
	netproxy "golang.org/x/net/proxy"
)

// ProxyKind identifies the upstream proxy protocol, the supplemented
// feature noted in SPEC_FULL.md §12 (the distilled spec dropped proxy
// support; original_source/code_without_proxy.c's filename is itself the
// grounding evidence that the original had a proxy-aware sibling).
type ProxyKind string

const (
	ProxyNone   ProxyKind = ""
	ProxyHTTP   ProxyKind = "http"
	ProxyHTTPS  ProxyKind = "https"
	ProxySOCKS4 ProxyKind = "socks4"
	ProxySOCKS5 ProxyKind = "socks5"
)

// Proxy configures an upstream proxy hop.
type Proxy struct {
	Kind     ProxyKind
	Host     string
	Port     int
	Username string
	Password string
	TLS      *tls.Config
}

// DialOptions configures one Connect call.
type DialOptions struct {
	Scheme      string // "http" or "https"
	Host        string
	Port        int
	SNI         string
	DisableSNI  bool
	InsecureTLS bool
	ConnTimeout time.Duration
	Proxy       *Proxy
	ClientCert  *tls.Certificate

	// TLSProfile selects the allowed version range and cipher suites via
	// pkg/tlsconfig. The zero value falls back to ProfileSecure (TLS
	// 1.2-1.3, ECDHE+AEAD only).
	TLSProfile tlsconfig.VersionProfile

	// Log, when non-nil, receives a debug line naming the negotiated TLS
	// version and cipher suite after a successful handshake.
	Log *zap.Logger
}

// Connect dials host:port, optionally through an upstream proxy, and
// upgrades to TLS when Scheme is "https". Connect failures are mapped to
// the closed outcome codes the transaction engine's CONNECT state
// expects: unresolvable host -> HostErr, any other dial failure ->
// ConnErr, TLS failure -> ConnSSLErr. timer may be nil; when non-nil its
// DNS/TCP/TLS phase markers are set around the matching step (proxy hops
// are not broken out and are charged to the TCP phase).
func Connect(ctx context.Context, opts DialOptions, timer *timing.Timer) (net.Conn, error) {
	timeout := opts.ConnTimeout
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}

	targetAddr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	var conn net.Conn
	var err error
	if opts.Proxy != nil && opts.Proxy.Kind != ProxyNone {
		if timer != nil {
			timer.StartTCP()
		}
		conn, err = dialViaProxy(ctx, opts.Proxy, targetAddr, opts, timeout)
		if timer != nil {
			timer.EndTCP()
		}
	} else {
		if timer != nil {
			timer.StartDNS()
		}
		_, lookupErr := net.DefaultResolver.LookupIPAddr(ctx, opts.Host)
		if timer != nil {
			timer.EndDNS()
		}
		if lookupErr != nil {
			return nil, httperr.New(httperr.HostErr, "pconn.connect", opts.Host, lookupErr).WithAddr(opts.Host, opts.Port)
		}
		dialer := &net.Dialer{Timeout: timeout}
		if timer != nil {
			timer.StartTCP()
		}
		conn, err = dialer.DialContext(ctx, "tcp", targetAddr)
		if timer != nil {
			timer.EndTCP()
		}
	}
	if err != nil {
		return nil, httperr.New(httperr.ConnErr, "pconn.connect", targetAddr, err).WithAddr(opts.Host, opts.Port)
	}

	if strings.EqualFold(opts.Scheme, "https") {
		tlsConn, err := upgradeTLS(ctx, conn, opts, timeout, timer)
		if err != nil {
			conn.Close()
			return nil, httperr.New(httperr.ConnSSLErr, "pconn.connect", targetAddr, err).WithAddr(opts.Host, opts.Port)
		}
		return tlsConn, nil
	}
	return conn, nil
}

func upgradeTLS(ctx context.Context, conn net.Conn, opts DialOptions, timeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	tlsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	profile := opts.TLSProfile
	if profile.Min == 0 {
		profile = tlsconfig.ProfileSecure
	}
	cfg := &tls.Config{
		InsecureSkipVerify: opts.InsecureTLS,
		NextProtos:         []string{"http/1.1"},
	}
	tlsconfig.ApplyVersionProfile(cfg, profile)
	tlsconfig.ApplyCipherSuites(cfg, profile.Min)
	configureSNI(cfg, opts.SNI, opts.DisableSNI, opts.Host)
	if opts.ClientCert != nil {
		cfg.Certificates = append(cfg.Certificates, *opts.ClientCert)
	}

	if timer != nil {
		timer.StartTLS()
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		return nil, err
	}
	if timer != nil {
		timer.EndTLS()
	}
	if opts.Log != nil {
		state := tlsConn.ConnectionState()
		opts.Log.Debug("tls handshake complete",
			zap.String("host", opts.Host),
			zap.String("version", tlsconfig.GetVersionName(state.Version)),
			zap.String("cipher_suite", tlsconfig.GetCipherSuiteName(state.CipherSuite)),
		)
	}
	return tlsConn, nil
}

// configureSNI mirrors the teacher's ConfigureSNI helper: an explicit
// ServerName wins, then DisableSNI, then a custom SNI override, else the
// target host.
func configureSNI(cfg *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if cfg.ServerName != "" || disableSNI {
		return
	}
	if customSNI != "" {
		cfg.ServerName = customSNI
	} else {
		cfg.ServerName = fallbackHost
	}
}

func dialViaProxy(ctx context.Context, p *Proxy, targetAddr string, opts DialOptions, timeout time.Duration) (net.Conn, error) {
	proxyAddr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))

	switch p.Kind {
	case ProxyHTTP, ProxyHTTPS:
		return dialHTTPConnect(ctx, p, proxyAddr, targetAddr, opts, timeout)
	case ProxySOCKS4:
		return dialSOCKS4(ctx, p, proxyAddr, targetAddr, timeout)
	case ProxySOCKS5:
		return dialSOCKS5(ctx, p, proxyAddr, targetAddr, timeout)
	default:
		return nil, fmt.Errorf("unsupported proxy kind: %s", p.Kind)
	}
}

// dialHTTPConnect tunnels through an HTTP(S) CONNECT proxy, ported from
// the teacher's connectViaHTTPProxy.
func dialHTTPConnect(ctx context.Context, p *Proxy, proxyAddr, targetAddr string, opts DialOptions, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to proxy: %w", err)
	}

	if p.Kind == ProxyHTTPS {
		cfg := p.TLS
		if cfg == nil {
			cfg = &tls.Config{ServerName: p.Host, InsecureSkipVerify: opts.InsecureTLS}
		} else {
			cfg = cfg.Clone()
			if opts.InsecureTLS {
				cfg.InsecureSkipVerify = true
			}
			if cfg.ServerName == "" {
				cfg.ServerName = p.Host
			}
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake to proxy: %w", err)
		}
		conn = tlsConn
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\nConnection: keep-alive\r\n", targetAddr, opts.Host)
	if p.Username != "" && p.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(p.Username + ":" + p.Password))
		req += "Proxy-Authorization: Basic " + creds + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if !strings.Contains(statusLine, " 200") {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", strings.TrimSpace(statusLine))
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read CONNECT headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return conn, nil
}

// dialSOCKS4 is ported from the teacher's connectViaSOCKS4Proxy.
func dialSOCKS4(ctx context.Context, p *Proxy, proxyAddr, targetAddr string, timeout time.Duration) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid target address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed for %s: %w", host, err)
	}
	var targetIP net.IP
	for _, ip := range ips {
		if ip4 := ip.IP.To4(); ip4 != nil {
			targetIP = ip4
			break
		}
	}
	if targetIP == nil {
		return nil, fmt.Errorf("no IPv4 address for %s (SOCKS4 requires IPv4)", host)
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to SOCKS4 proxy: %w", err)
	}

	req := []byte{0x04, 0x01, byte(port >> 8), byte(port & 0xFF)}
	req = append(req, targetIP...)
	if p.Username != "" {
		req = append(req, []byte(p.Username)...)
	}
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send SOCKS4 request: %w", err)
	}
	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read SOCKS4 response: %w", err)
	}
	if resp[1] != 0x5A {
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request failed: status 0x%02X", resp[1])
	}
	return conn, nil
}

// dialSOCKS5 is ported from the teacher's connectViaSOCKS5Proxy, using
// golang.org/x/net/proxy for the handshake.
func dialSOCKS5(ctx context.Context, p *Proxy, proxyAddr, targetAddr string, timeout time.Duration) (net.Conn, error) {
	var auth *netproxy.Auth
	if p.Username != "" {
		auth = &netproxy.Auth{User: p.Username, Password: p.Password}
	}
	dialer, err := netproxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	conn, err := dialer.Dial("tcp", targetAddr)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 connection failed: %w", err)
	}
	return conn, nil
}
