package transaction

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arourke/httpdl/pkg/auth"
	"github.com/arourke/httpdl/pkg/constants"
	"github.com/arourke/httpdl/pkg/dateparse"
	"github.com/arourke/httpdl/pkg/engine"
	"github.com/arourke/httpdl/pkg/headerblock"
	"github.com/arourke/httpdl/pkg/headerval"
	"github.com/arourke/httpdl/pkg/httperr"
	"github.com/arourke/httpdl/pkg/request"
	"github.com/arourke/httpdl/pkg/sink"
	"github.com/arourke/httpdl/pkg/warc"
)

// warcMirror is the shape both warc.NewRequestMirror and
// warc.NewResponseMirror return (an unexported concrete type with these
// two exported methods); naming it locally lets the engine hold one
// without depending on warc's internals.
type warcMirror interface {
	io.Writer
	Finish() bool
}

// warcEnabled reports whether w is a real mirror rather than the no-op
// implementation, so the engine can skip buffering response bodies in
// memory when WARC mirroring is off.
func warcEnabled(w warc.Writer) bool {
	_, nop := w.(warc.NopWriter)
	return !nop
}

// sendAndReceive performs SEND through DISPATCH for one connection attempt.
// retry is true only for the 401-with-a-usable-challenge case, in which
// case authHeader is the Authorization value Execute should retry with.
func sendAndReceive(ctx context.Context, cc *engine.ClientContext, conn net.Conn, req *request.Request, opt Options, host string, port int, scheme, user, pass string) (result *Result, authHeader string, retry bool, err error) {
	targetURI := opt.URL.Raw()

	var sendMirror io.Writer
	var reqMirror warcMirror
	if warcEnabled(cc.Warc) {
		reqMirror = warc.NewRequestMirror(cc.Warc, targetURI)
		sendMirror = reqMirror
	}
	outcome, sendErr := req.Send(conn, sendMirror)
	if reqMirror != nil {
		reqMirror.Finish()
	}
	if sendErr != nil {
		if outcome == request.WriteMirrorFailed {
			return nil, "", false, httperr.New(httperr.WarcTmpFwriteErr, "transaction.send", targetURI, sendErr).WithAddr(host, port)
		}
		return nil, "", false, httperr.New(httperr.WriteFailed, "transaction.send", targetURI, sendErr).WithAddr(host, port)
	}

	readTimeout := cc.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = constants.DefaultReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	defer conn.SetReadDeadline(time.Time{})

	reader := bufio.NewReader(conn)

	if opt.Timer != nil {
		opt.Timer.StartTTFB()
	}
	var block *headerblock.Block
	for first := true; ; first = false {
		raw, headErr := readHead(reader)
		if first && opt.Timer != nil {
			opt.Timer.EndTTFB()
		}
		if headErr != nil {
			return nil, "", false, headErr
		}
		b, parseErr := headerblock.Parse(raw)
		if parseErr != nil {
			return nil, "", false, httperr.New(httperr.HeadErr, "transaction.parse_status", targetURI, parseErr).WithAddr(host, port)
		}
		if b.StatusCode >= 100 && b.StatusCode <= 199 {
			continue // DRAIN_1XX: discard and read another head on the same connection
		}
		block = b
		break
	}

	facts := extract(cc, block, host, port, scheme, opt.URL.Path())

	keepAlive := !cc.InhibitKeepAlive && !facts.connectionClose

	switch {
	case block.StatusCode == 401:
		drainShort(reader, facts.contentLength)
		cc.Pool.Finish(conn, keepAlive)

		if user == "" {
			return &Result{Code: httperr.AuthFailed, StatusCode: 401}, "", false, nil
		}
		header, authErr := nextAuthValue(cc, block, host, user, pass, req.Method, opt.URL.Path())
		if authErr != nil {
			return &Result{Code: httperr.AuthFailed, StatusCode: 401}, "", false, nil
		}
		return nil, header, true, nil

	case block.StatusCode == 204:
		cc.Pool.Finish(conn, keepAlive)
		return &Result{Code: httperr.RetrFinished, StatusCode: 204, StatusMsg: block.StatusMsg, ContentLength: 0, KeepAliveUsed: keepAlive}, "", false, nil

	case isRedirectWithLocation(block.StatusCode, facts.location):
		drainShort(reader, facts.contentLength)
		cc.Pool.Finish(conn, keepAlive)
		code := redirectCode(block.StatusCode, req.Method)
		return &Result{Code: code, StatusCode: block.StatusCode, StatusMsg: block.StatusMsg, NewLocation: facts.location, KeepAliveUsed: keepAlive}, "", false, nil

	case block.StatusCode == 304:
		cc.Pool.Finish(conn, keepAlive)
		return &Result{Code: httperr.RetrUnneeded, StatusCode: 304, StatusMsg: block.StatusMsg, KeepAliveUsed: keepAlive}, "", false, nil

	case block.StatusCode == 416 || (block.StatusCode == 200 && opt.RestVal > 0 && facts.contentLength >= 0 && facts.contentLength <= opt.RestVal):
		cc.Pool.Finish(conn, keepAlive)
		return &Result{Code: httperr.RetrUnneeded, StatusCode: block.StatusCode, StatusMsg: block.StatusMsg, KeepAliveUsed: keepAlive}, "", false, nil

	case opt.HeadOnly:
		cc.Pool.Finish(conn, keepAlive)
		return &Result{
			Code: httperr.RetrFinished, StatusCode: block.StatusCode, StatusMsg: block.StatusMsg,
			ContentLength: facts.contentLength, LastModified: facts.lastModified, KeepAliveUsed: keepAlive,
		}, "", false, nil

	case block.StatusCode >= 200 && block.StatusCode < 300:
		return receiveBody(cc, reader, conn, block, facts, opt, keepAlive)

	default: // other 4xx/5xx
		drainShort(reader, facts.contentLength)
		cc.Pool.Finish(conn, keepAlive)
		return &Result{Code: httperr.RetrFinished, StatusCode: block.StatusCode, StatusMsg: block.StatusMsg, KeepAliveUsed: keepAlive}, "", false, nil
	}
}

type extractedFacts struct {
	contentLength    int64
	chunked          bool
	contentRange     headerval.ContentRange
	hasContentRange  bool
	connectionClose  bool
	contentEncoding  string
	contentType      string
	lastModified     int64
	location         string
	filename         string
}

// extract implements the EXTRACT state: it pulls every header the engine
// cares about and applies the two with side effects (Strict-Transport-
// Security and Set-Cookie) immediately, as spec §5 requires ("strictly
// after parsing and strictly before any body write").
func extract(cc *engine.ClientContext, block *headerblock.Block, host string, port int, scheme, path string) extractedFacts {
	var f extractedFacts
	f.contentLength = -1

	if v, ok := block.Get("Content-Length"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n >= 0 && n <= constants.MaxContentLength {
			f.contentLength = n
		}
	}
	if v, ok := block.Get("Transfer-Encoding"); ok {
		f.chunked = strings.Contains(strings.ToLower(v), "chunked")
	}
	if v, ok := block.Get("Content-Range"); ok {
		if cr, ok2 := headerval.ParseContentRange(v); ok2 {
			f.contentRange = cr
			f.hasContentRange = true
		}
	}
	if v, ok := block.Get("Connection"); ok {
		f.connectionClose = strings.EqualFold(strings.TrimSpace(v), "close")
	}
	f.contentEncoding, _ = block.Get("Content-Encoding")
	f.contentType, _ = block.Get("Content-Type")

	lm, ok := block.Get("Last-Modified")
	if !ok {
		lm, ok = block.Get("X-Archive-Orig-last-modified")
	}
	if ok {
		if v := dateparse.Parse(lm); v != dateparse.Unknown {
			f.lastModified = v
		}
	}

	f.location, _ = block.Get("Location")

	if v, ok := block.Get("Strict-Transport-Security"); ok {
		if sts, ok2 := headerval.ParseSTS(v); ok2 {
			cc.HSTS.StoreEntry(strings.EqualFold(scheme, "https"), host, port, 443, sts.MaxAge, sts.IncludeSubDomains)
		}
	}

	for _, raw := range block.Values("Set-Cookie") {
		cc.Cookies.HandleSetCookie(scheme, host, port, path, raw)
	}

	if cd, ok := block.Get("Content-Disposition"); ok {
		if name, ok2 := headerval.Filename(cd); ok2 {
			f.filename = name
		}
	}

	return f
}

func nextAuthValue(cc *engine.ClientContext, block *headerblock.Block, host, user, pass, method, path string) (string, error) {
	values := block.Values("WWW-Authenticate")
	challenges := auth.ParseChallenges(values)

	ch, ok := auth.Select(challenges)
	if !ok {
		return "", httperr.New(httperr.AuthFailed, "transaction.auth", "no recognized scheme", nil)
	}
	switch ch.Scheme {
	case auth.SchemeBasic:
		cc.Preemptive.Mark(host)
		return auth.Basic(user, pass), nil
	case auth.SchemeDigest:
		p, err := auth.ParseDigestChallenge(ch)
		if err != nil {
			return "", httperr.New(httperr.AttrMissing, "transaction.auth", "digest challenge", err)
		}
		return auth.Digest(p, user, pass, method, path), nil
	case auth.SchemeNTLM:
		if _, hasBlob := auth.ExtractNTLMBlob(values); !hasBlob {
			return auth.Type1(), nil
		}
		for _, v := range values {
			t := strings.TrimSpace(v)
			if len(t) >= 4 && strings.EqualFold(t[:4], "NTLM") {
				c2, ok2 := auth.ParseType2(t)
				if !ok2 {
					return "", httperr.New(httperr.AttrMissing, "transaction.auth", "malformed NTLM challenge", nil)
				}
				return auth.Type3(user, "", pass, c2), nil
			}
		}
		return "", httperr.New(httperr.AttrMissing, "transaction.auth", "missing NTLM challenge", nil)
	}
	return "", httperr.New(httperr.AuthFailed, "transaction.auth", "unsupported scheme", nil)
}

func isRedirectWithLocation(status int, location string) bool {
	if location == "" {
		return false
	}
	if status == 300 {
		return true
	}
	return status >= 301 && status <= 308 && status != 304
}

// redirectCode applies spec §4.10's method-preservation rule: 307/308
// always keep the method; 303 always becomes NEW_LOCATION (method may
// change to GET); 301/302 keep the method only when it was POST.
func redirectCode(status int, method string) httperr.Code {
	switch status {
	case 307, 308:
		return httperr.NewLocationKeepPost
	case 303:
		return httperr.NewLocation
	case 301, 302:
		if strings.EqualFold(method, "POST") {
			return httperr.NewLocationKeepPost
		}
		return httperr.NewLocation
	}
	return httperr.NewLocation
}

func receiveBody(cc *engine.ClientContext, reader *bufio.Reader, conn net.Conn, block *headerblock.Block, facts extractedFacts, opt Options, keepAlive bool) (*Result, string, bool, error) {
	mode := opt.SinkMode
	path := opt.OutputPath
	if opt.HonorContentDisposition && facts.filename != "" {
		path = facts.filename
	}

	out, openErr := sink.Open(path, mode)
	if openErr != nil {
		cc.Pool.Invalidate(conn)
		return nil, "", false, openErr
	}
	defer out.Close()

	var mirror warcMirror
	var mirrorW io.Writer
	if warcEnabled(cc.Warc) {
		mirror = warc.NewResponseMirror(cc.Warc, opt.URL.Raw())
		mirrorW = mirror
	}

	gunzip := headerval.ShouldInlineGunzip(facts.contentEncoding, opt.URL.Path(), facts.contentType, cc.CompressionEnabled)

	params := bodyParams{
		ContentLength: facts.contentLength,
		Chunked:       facts.chunked,
		RestVal:       opt.RestVal,
		RangeHonored:  facts.hasContentRange,
		Gunzip:        gunzip,
	}

	n, readErr := readResponseBody(reader, params, out, mirrorW)
	if mirror != nil {
		mirror.Finish()
	}

	if readErr != nil {
		cc.Pool.Invalidate(conn)
		return nil, "", false, readErr
	}

	// Skip-short-body: an early close on a keep-alive-desired connection is
	// tolerated (and the connection reused) only for small declared bodies.
	if facts.contentLength >= 0 && n < facts.contentLength {
		if keepAlive && facts.contentLength <= ShortBodyThreshold {
			cc.Pool.Finish(conn, true)
		} else {
			cc.Pool.Invalidate(conn)
		}
	} else {
		cc.Pool.Finish(conn, keepAlive)
	}

	return &Result{
		Code:          httperr.RetrFinished,
		StatusCode:    block.StatusCode,
		StatusMsg:     block.StatusMsg,
		ContentLength: facts.contentLength,
		Len:           n,
		RangeHonored:  facts.hasContentRange,
		LastModified:  facts.lastModified,
		Filename:      facts.filename,
		KeepAliveUsed: keepAlive,
		OutputOpened:  true,
	}, "", false, nil
}
