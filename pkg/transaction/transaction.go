// Package transaction implements gethttp, the single-request state
// machine: INIT, CONNECT, SEND, READ_HEAD, PARSE_STATUS, DRAIN_1XX,
// EXTRACT, DISPATCH, and the body reader they hand off to. pkg/loop calls
// Execute once per retry/redirect attempt.
package transaction

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/auth"
	"github.com/arourke/httpdl/pkg/dateparse"
	"github.com/arourke/httpdl/pkg/engine"
	"github.com/arourke/httpdl/pkg/httperr"
	"github.com/arourke/httpdl/pkg/request"
	"github.com/arourke/httpdl/pkg/sink"
	"github.com/arourke/httpdl/pkg/timing"
)

// MaxHeadSize bounds READ_HEAD against adversarial servers (spec §5).
const MaxHeadSize = 64 * 1024

// ShortBodyThreshold is the skip-short-body drain threshold (spec §4.10).
const ShortBodyThreshold = 4 * 1024

// maxAuthAttempts bounds the INIT->401->INIT retry to two tries total: if
// the second attempt also 401s, the engine surfaces AuthFailed rather than
// looping forever against a server that rejects valid-looking credentials.
const maxAuthAttempts = 2

// Options configures one gethttp attempt. pkg/loop builds a fresh Options
// per retry, recomputing RestVal and HeadOnly as its own state dictates.
type Options struct {
	Method string // GET, HEAD, POST, PUT, PATCH
	URL    engine.URL

	Body        io.Reader
	BodyLen     int64 // -1 if unknown
	ContentType string
	Headers     []HeaderField
	Referer     string

	RestVal         int64 // resume offset; sent as Range: bytes=RestVal- when > 0
	IfModifiedSince int64 // unix seconds; 0 means unset
	HeadOnly        bool
	NoCache         bool

	User, Password string // explicit override; falls back to URL then netrc

	OutputPath              string
	SinkMode                sink.Mode
	HonorContentDisposition bool

	UseProxy bool

	// Timer, when set by the caller, collects per-phase connect/TTFB
	// metrics for this attempt. Nil is safe: every phase marker call
	// below nil-checks before touching it.
	Timer *timing.Timer
}

// HeaderField is one caller-supplied extra request header.
type HeaderField struct{ Name, Value string }

// Result is everything pkg/loop needs to decide retry/redirect/success.
type Result struct {
	Code       httperr.Code
	StatusCode int
	StatusMsg  string

	ContentLength int64 // -1 unknown
	Len           int64 // entity bytes read, including a RestVal prefix skipped when Range was not honored
	RangeHonored  bool

	NewLocation  string
	LastModified int64 // unix seconds, 0 if absent
	Filename     string

	KeepAliveUsed bool
	OutputOpened  bool
}

// Execute runs gethttp: one connect+send+receive attempt, transparently
// retried in place (without consulting pkg/loop) only for the 401
// challenge/response round trip, since that round trip is intrinsic to a
// single logical request rather than a retry of a failed one. Every other
// outcome — including errors — is returned for pkg/loop to interpret.
func Execute(ctx context.Context, cc *engine.ClientContext, opt Options) (*Result, error) {
	host := opt.URL.Host()
	port := opt.URL.Port()
	if port == 0 {
		port = opt.URL.SchemeDefaultPort()
	}
	scheme := opt.URL.Scheme()

	if strings.EqualFold(scheme, "http") {
		if m := cc.HSTS.Match(host, port, 80); m.Changed {
			scheme = "https"
			port = m.NewPort
		}
	}
	useTLS := strings.EqualFold(scheme, "https")
	user, pass := resolveCredentials(cc, opt, host)

	var authHeader string
	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		conn, pooled, err := connect(ctx, cc, host, port, useTLS, opt.Timer)
		if err != nil {
			return nil, err
		}

		req := buildRequest(cc, opt, host, port, scheme, user, pass, authHeader)
		if pooled && cc.Pool.IsAuthorized(conn) {
			req.Remove("Authorization")
		}

		result, nextAuthHeader, retry, err := sendAndReceive(ctx, cc, conn, req, opt, host, port, scheme, user, pass)
		if err != nil {
			cc.Pool.Invalidate(conn)
			return nil, err
		}
		if !retry {
			return result, nil
		}
		authHeader = nextAuthHeader
	}
	return &Result{Code: httperr.AuthFailed, StatusCode: 401}, nil
}

func connect(ctx context.Context, cc *engine.ClientContext, host string, port int, useTLS bool, timer *timing.Timer) (net.Conn, bool, error) {
	ips, _ := cc.Transport.Resolve(ctx, host)
	if rec, ok := cc.Pool.AvailableFor(host, port, ips); ok {
		return rec.Conn, true, nil
	}
	conn, err := cc.Transport.Connect(ctx, host, port, useTLS, timer)
	if err != nil {
		return nil, false, err
	}
	cc.Pool.Register(host, port, conn, useTLS)
	return conn, false, nil
}

func buildRequest(cc *engine.ClientContext, opt Options, host string, port int, scheme, user, pass, authHeader string) *request.Request {
	target := opt.URL.FullPath()
	if opt.UseProxy {
		target = opt.URL.Raw()
	}
	r := request.New(opt.Method, target)

	hostHeader := host
	if port != opt.URL.SchemeDefaultPort() {
		hostHeader = fmt.Sprintf("%s:%d", host, port)
	}
	r.Set("Host", hostHeader)
	r.Set("User-Agent", cc.UserAgent)
	r.Set("Accept", "*/*")
	if cc.CompressionEnabled {
		r.Set("Accept-Encoding", "gzip")
	} else {
		r.Set("Accept-Encoding", "identity")
	}
	if cc.InhibitKeepAlive {
		r.Set("Connection", "close")
	} else {
		r.Set("Connection", "Keep-Alive")
	}
	if opt.Referer != "" {
		r.Set("Referer", opt.Referer)
	}
	if opt.RestVal > 0 {
		r.Set("Range", fmt.Sprintf("bytes=%d-", opt.RestVal))
	}
	if opt.IfModifiedSince > 0 {
		r.Set("If-Modified-Since", dateparse.FormatRFC1123(time.Unix(opt.IfModifiedSince, 0)))
	}
	if opt.NoCache {
		r.Set("Cache-Control", "no-cache")
		r.Set("Pragma", "no-cache")
	}
	if opt.Body != nil {
		if opt.ContentType != "" {
			r.Set("Content-Type", opt.ContentType)
		}
		if opt.BodyLen >= 0 {
			r.Set("Content-Length", strconv.FormatInt(opt.BodyLen, 10))
		}
		r.SetBody(opt.Body, opt.BodyLen)
	}
	for _, h := range opt.Headers {
		r.Set(h.Name, h.Value)
	}

	if cookie := cc.Cookies.CookieHeader(scheme, host, port, opt.URL.Path()); cookie != "" {
		r.Set("Cookie", cookie)
	}

	switch {
	case authHeader != "":
		r.Set("Authorization", authHeader)
	case user != "" && (cc.Preemptive.Contains(host) || cc.AuthWithoutChallenge):
		r.Set("Authorization", auth.Basic(user, pass))
	}

	return r
}

func resolveCredentials(cc *engine.ClientContext, opt Options, host string) (string, string) {
	if opt.User != "" {
		return opt.User, opt.Password
	}
	if opt.URL.User() != "" {
		return opt.URL.User(), opt.URL.Passwd()
	}
	if cc.Netrc != nil {
		if e, ok := cc.Netrc.Lookup(host); ok {
			return e.Login, e.Password
		}
	}
	return "", ""
}

