// Package cookiejar adapts a persistent, public-suffix-aware cookie jar
// to the narrow interface the transaction engine needs: a Cookie header
// for an outbound request, and ingestion of an inbound Set-Cookie line.
package cookiejar

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	persistcj "github.com/juju/persistent-cookiejar"
)

// Jar is the engine-facing cookie store, backed by
// github.com/juju/persistent-cookiejar so jars survive across process
// runs the way a downloader's cookie file is expected to.
type Jar struct {
	inner *persistcj.Jar
}

// Open loads (or creates) a persistent cookie jar backed by path. An empty
// path yields an in-memory-only jar.
func Open(path string) (*Jar, error) {
	opts := &persistcj.Options{}
	if path == "" {
		opts.NoPersist = true
	} else {
		opts.Filename = path
	}
	inner, err := persistcj.New(opts)
	if err != nil {
		return nil, err
	}
	return &Jar{inner: inner}, nil
}

// CookieHeader returns the Cookie header value to send for a request to
// scheme://host:port/path, or "" if there are no matching cookies.
func (j *Jar) CookieHeader(scheme, host string, port int, path string) string {
	u := requestURL(scheme, host, port, path)
	cookies := j.inner.Cookies(u)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// HandleSetCookie ingests one raw Set-Cookie header value received from
// host/port/path.
func (j *Jar) HandleSetCookie(scheme, host string, port int, path, raw string) {
	header := http.Header{"Set-Cookie": []string{raw}}
	resp := &http.Response{Header: header}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	u := requestURL(scheme, host, port, path)
	j.inner.SetCookies(u, cookies)
}

// Save flushes the jar to its backing file, if any.
func (j *Jar) Save() error {
	return j.inner.Save()
}

func requestURL(scheme, host string, port int, path string) *url.URL {
	hostport := host
	if (scheme == "http" && port != 80 && port != 0) || (scheme == "https" && port != 443 && port != 0) {
		hostport = host + ":" + strconv.Itoa(port)
	}
	return &url.URL{Scheme: scheme, Host: hostport, Path: path}
}
