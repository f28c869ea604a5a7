// Package httpdl is a Wget-style HTTP/1.1 client engine: persistent
// connections, HSTS, cookie jars, Basic/Digest/NTLM auth, chunked and
// gzip body decoding, and a retry/redirect/timestamp loop modeled on
// GNU Wget's gethttp/http_loop internals.
package httpdl

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/auth"
	"github.com/arourke/httpdl/pkg/cookiejar"
	"github.com/arourke/httpdl/pkg/engine"
	"github.com/arourke/httpdl/pkg/hsts"
	"github.com/arourke/httpdl/pkg/loop"
	"github.com/arourke/httpdl/pkg/netrc"
	"github.com/arourke/httpdl/pkg/pconn"
	"github.com/arourke/httpdl/pkg/sink"
	"github.com/arourke/httpdl/pkg/tlsconfig"
	"github.com/arourke/httpdl/pkg/transaction"
	"github.com/arourke/httpdl/pkg/warc"
	"go.uber.org/zap"
)

// Version identifies this build of the engine, sent as the default
// User-Agent suffix.
const Version = "1.0.0"

// Result mirrors pkg/loop.Result; re-exported so callers never import
// pkg/loop directly.
type Result = loop.Result

// FetchOptions configures one Fetch call. Zero value fetches the whole
// resource to a name derived from the URL.
type FetchOptions struct {
	Method         string
	OutputDocument string
	Referer        string
	User, Password string

	ContentDisposition  bool
	NoClobber           bool
	Timestamping        bool
	UseServerTimestamps bool
	Spider              bool
	Resume              bool // -c
	StartPos            int64

	UseProxy          bool
	CachingDisallowed bool
	NTry              int // 0 = retry forever
	RetryHostErr      bool

	Body        []byte // non-nil sends a request body, e.g. for POST/PUT
	ContentType string
	Headers     []Header
}

// Header is one caller-supplied extra request header, e.g. a bearer token
// or a custom X- header.
type Header struct{ Name, Value string }

// Client is a configured engine instance: connection pool, HSTS store,
// cookie jar and credentials all live here so repeated Fetch calls reuse
// persistent connections and accumulated policy state, matching spec
// §5's single-owner resource model.
type Client struct {
	cc *engine.ClientContext
}

// Config configures a new Client's collaborators. Every field is
// optional; New fills in the stdlib/retrieval-pack defaults described in
// DESIGN.md when left zero.
type Config struct {
	UserAgent          string
	CompressionEnabled bool
	InhibitKeepAlive   bool
	RetryHostErr       bool
	ReadTimeout        time.Duration // 0 uses the engine default

	CookieJarPath string // "" is an in-memory-only jar
	HSTSFilePath  string // "" disables on-disk HSTS persistence
	NetrcPath     string // "" disables netrc credential lookup
	WARCPath      string // "" disables WARC mirroring

	Proxy       *pconn.Proxy
	InsecureTLS bool
	SNI         string
	DisableSNI  bool
	ClientCert  *tls.Certificate
	TLSProfile  tlsconfig.VersionProfile // zero value uses tlsconfig.ProfileSecure

	Logger *zap.Logger
}

// New builds a Client from cfg, wiring the default Transport
// (pkg/pconn.DefaultTransport), cookie jar, HSTS store, netrc lookup, and
// WARC mirror (or pkg/warc.NopWriter when WARCPath is empty).
func New(cfg Config) (*Client, error) {
	jar, err := cookiejar.Open(cfg.CookieJarPath)
	if err != nil {
		return nil, fmt.Errorf("httpdl: open cookie jar: %w", err)
	}

	transport := pconn.NewDefaultTransport(pconn.DialOptions{
		Proxy:       cfg.Proxy,
		InsecureTLS: cfg.InsecureTLS,
		SNI:         cfg.SNI,
		DisableSNI:  cfg.DisableSNI,
		ClientCert:  cfg.ClientCert,
		TLSProfile:  cfg.TLSProfile,
		Log:         cfg.Logger,
	})

	cc := engine.New(transport, jar)
	cc.CompressionEnabled = cfg.CompressionEnabled
	cc.InhibitKeepAlive = cfg.InhibitKeepAlive
	cc.RetryHostErr = cfg.RetryHostErr
	cc.ReadTimeout = cfg.ReadTimeout

	if cfg.UserAgent != "" {
		cc.UserAgent = cfg.UserAgent
	} else {
		cc.UserAgent = "httpdl/" + Version
	}
	if cfg.Logger != nil {
		cc.Log = cfg.Logger
	}

	if cfg.HSTSFilePath != "" {
		store, err := hsts.Load(cfg.HSTSFilePath)
		if err != nil {
			return nil, fmt.Errorf("httpdl: load HSTS store: %w", err)
		}
		cc.HSTS = store
	}

	if cfg.NetrcPath != "" {
		nf, err := netrc.Load(cfg.NetrcPath)
		if err != nil {
			return nil, fmt.Errorf("httpdl: load netrc: %w", err)
		}
		cc.Netrc = nf
	}

	if cfg.WARCPath != "" {
		w, err := warc.Create(cfg.WARCPath)
		if err != nil {
			return nil, fmt.Errorf("httpdl: create WARC file: %w", err)
		}
		cc.Warc = w
	}

	return &Client{cc: cc}, nil
}

// Close persists the cookie jar and HSTS store (if file-backed) and
// closes the WARC writer (if one is open).
func (c *Client) Close() error {
	if j, ok := c.cc.Cookies.(*cookiejar.Jar); ok {
		if err := j.Save(); err != nil {
			return err
		}
	}
	if err := c.cc.HSTS.Save(); err != nil {
		return err
	}
	if w, ok := c.cc.Warc.(*warc.Default); ok {
		return w.Close()
	}
	return nil
}

// Fetch retrieves rawURL into a file per opt, retrying and following
// redirects until the resource is retrieved, the server reports it's
// unneeded, or the try limit is reached.
func (c *Client) Fetch(ctx context.Context, rawURL string, opt FetchOptions) (*Result, error) {
	const maxRedirects = 20

	for i := 0; i < maxRedirects; i++ {
		u, err := parseURL(rawURL)
		if err != nil {
			return nil, err
		}

		lopt := loop.Options{
			URL:                 u,
			Method:              opt.Method,
			OutputDocument:      opt.OutputDocument,
			Referer:             opt.Referer,
			User:                opt.User,
			Password:            opt.Password,
			ContentDisposition:  opt.ContentDisposition,
			NoClobber:           opt.NoClobber,
			Timestamping:        opt.Timestamping,
			UseServerTimestamps: opt.UseServerTimestamps,
			Spider:              opt.Spider,
			ResumePartial:       opt.Resume,
			StartPos:            opt.StartPos,
			UseProxy:            opt.UseProxy,
			CachingDisallowed:   opt.CachingDisallowed,
			NTry:                opt.NTry,
			RetryHostErr:        opt.RetryHostErr || c.cc.RetryHostErr,
			Body:                opt.Body,
			ContentType:         opt.ContentType,
			Headers:             toTransactionHeaders(opt.Headers),
		}

		result, err := loop.Run(ctx, c.cc, lopt)
		if err != nil {
			return nil, err
		}
		if result.NewLocation == "" {
			return result, nil
		}
		rawURL = resolveLocation(rawURL, result.NewLocation)
		opt.Method = redirectMethod(opt.Method)
	}
	return nil, fmt.Errorf("httpdl: exceeded %d redirects fetching %s", maxRedirects, rawURL)
}

func toTransactionHeaders(hs []Header) []transaction.HeaderField {
	if hs == nil {
		return nil
	}
	out := make([]transaction.HeaderField, len(hs))
	for i, h := range hs {
		out[i] = transaction.HeaderField{Name: h.Name, Value: h.Value}
	}
	return out
}

func redirectMethod(method string) string {
	if method == "" {
		return "GET"
	}
	return method
}

func resolveLocation(base, location string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return baseURL.ResolveReference(ref).String()
}

// stdURL adapts net/url.URL to engine.URL, the default implementation of
// the URL-parser collaborator spec.md leaves external.
type stdURL struct {
	u      *url.URL
	user   string
	passwd string
}

func parseURL(raw string) (*stdURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("httpdl: parse URL %q: %w", raw, err)
	}
	s := &stdURL{u: u}
	if u.User != nil {
		s.user = u.User.Username()
		s.passwd, _ = u.User.Password()
	}
	return s, nil
}

func (s *stdURL) Scheme() string { return s.u.Scheme }
func (s *stdURL) Host() string   { return s.u.Hostname() }

func (s *stdURL) Port() int {
	p := s.u.Port()
	if p == "" {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}

func (s *stdURL) User() string   { return s.user }
func (s *stdURL) Passwd() string { return s.passwd }
func (s *stdURL) Path() string   { return s.u.Path }
func (s *stdURL) Query() string  { return s.u.RawQuery }
func (s *stdURL) Raw() string    { return s.u.String() }

func (s *stdURL) FullPath() string {
	p := s.u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if s.u.RawQuery != "" {
		p += "?" + s.u.RawQuery
	}
	return p
}

func (s *stdURL) SchemeDefaultPort() int {
	if strings.EqualFold(s.u.Scheme, "https") {
		return 443
	}
	return 80
}

func (s *stdURL) IsValidIPAddress() bool {
	return net.ParseIP(s.u.Hostname()) != nil
}

// Basic re-exports auth.Basic for callers that want to set a header
// manually rather than letting Fetch negotiate a challenge.
func Basic(user, password string) string { return auth.Basic(user, password) }

// SinkMode re-exports sink.Mode for callers assembling FetchOptions
// around an existing file-open discipline.
type SinkMode = sink.Mode
