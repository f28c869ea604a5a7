// Package auth implements the HTTP authentication engine: scheme
// selection from WWW-Authenticate challenges (NTLM > Digest > Basic),
// Basic and Digest credential computation, the NTLM Type1/2/3 handshake,
// and the preemptive-Basic host set.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/arourke/httpdl/pkg/paramtok"
)

// Scheme identifies a recognized authentication scheme.
type Scheme string

const (
	SchemeNone   Scheme = ""
	SchemeBasic  Scheme = "Basic"
	SchemeDigest Scheme = "Digest"
	SchemeNTLM   Scheme = "NTLM"
)

// Challenge is one parsed WWW-Authenticate entry.
type Challenge struct {
	Scheme Scheme
	Params map[string]string
}

// ParseChallenges lexes every WWW-Authenticate header value into its
// scheme token and parameter list, keeping only the first occurrence of
// each recognized scheme, matching the spec's "collect the first
// occurrence of each recognized scheme" rule.
func ParseChallenges(headerValues []string) map[Scheme]Challenge {
	out := make(map[Scheme]Challenge)
	for _, v := range headerValues {
		scheme, rest := splitSchemeToken(v)
		s := Scheme(scheme)
		switch s {
		case SchemeBasic, SchemeDigest, SchemeNTLM:
		default:
			continue
		}
		if _, exists := out[s]; exists {
			continue
		}
		params := make(map[string]string)
		tok := paramtok.New(rest, ',')
		for !tok.Done() {
			p, ok := tok.Next()
			if !ok {
				break
			}
			if p.Name != "" {
				params[strings.ToLower(p.Name)] = p.Value
			}
		}
		out[s] = Challenge{Scheme: s, Params: params}
	}
	return out
}

// ExtractNTLMBlob scans raw WWW-Authenticate header values for the NTLM
// challenge and returns its base64 payload. NTLM's second round carries
// that payload as a bare token rather than name=value parameters (and the
// token's base64 padding can itself contain '='), so this bypasses the
// generic paramtok parser Basic/Digest use.
func ExtractNTLMBlob(headerValues []string) (string, bool) {
	for _, v := range headerValues {
		v = strings.TrimSpace(v)
		if len(v) < 4 || !strings.EqualFold(v[:4], "NTLM") {
			continue
		}
		rest := strings.TrimSpace(v[4:])
		if rest == "" {
			return "", false // round 1: bare "NTLM" challenge, no blob yet
		}
		return rest, true
	}
	return "", false
}

func splitSchemeToken(v string) (scheme, rest string) {
	v = strings.TrimSpace(v)
	sp := strings.IndexAny(v, " \t")
	if sp < 0 {
		return v, ""
	}
	return v[:sp], strings.TrimSpace(v[sp+1:])
}

// Select picks a scheme to respond with, in NTLM > Digest > Basic
// priority order.
func Select(challenges map[Scheme]Challenge) (Challenge, bool) {
	for _, s := range []Scheme{SchemeNTLM, SchemeDigest, SchemeBasic} {
		if c, ok := challenges[s]; ok {
			return c, true
		}
	}
	return Challenge{}, false
}

// Basic renders the Basic Authorization header value.
func Basic(user, password string) string {
	raw := user + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// DigestParams are the fields extracted from a Digest challenge needed to
// compute a response.
type DigestParams struct {
	Realm     string
	Nonce     string
	Opaque    string
	Qop       string // "" means RFC 2069 (no qop)
	Algorithm string // "" or "MD5" or "MD5-sess"
}

// ErrUnsupportedDigest is returned when the challenge names a qop or
// algorithm this engine doesn't implement (only "auth" qop and
// MD5/MD5-sess are supported).
type ErrUnsupportedDigest struct{ Reason string }

func (e *ErrUnsupportedDigest) Error() string { return "unsupported digest challenge: " + e.Reason }

// ParseDigestChallenge extracts DigestParams from a Challenge's params,
// rejecting qop values other than "auth" and algorithms other than
// MD5/MD5-sess.
func ParseDigestChallenge(c Challenge) (DigestParams, error) {
	p := DigestParams{
		Realm:     c.Params["realm"],
		Nonce:     c.Params["nonce"],
		Opaque:    c.Params["opaque"],
		Qop:       c.Params["qop"],
		Algorithm: c.Params["algorithm"],
	}
	if p.Qop != "" && !strings.EqualFold(p.Qop, "auth") {
		return p, &ErrUnsupportedDigest{Reason: "qop=" + p.Qop}
	}
	if p.Algorithm != "" && !strings.EqualFold(p.Algorithm, "MD5") && !strings.EqualFold(p.Algorithm, "MD5-sess") {
		return p, &ErrUnsupportedDigest{Reason: "algorithm=" + p.Algorithm}
	}
	if p.Nonce == "" || p.Realm == "" {
		return p, &ErrUnsupportedDigest{Reason: "missing realm or nonce"}
	}
	return p, nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Digest computes the Authorization header value for a Digest challenge,
// per RFC 2069/2617: A1 = H(user:realm:password) (or, for MD5-sess,
// H(H(user:realm:password):nonce:cnonce)); A2 = H(method:path); response =
// H(A1:nonce:A2) with no qop, else H(A1:nonce:nc:cnonce:qop:A2).
func Digest(p DigestParams, user, password, method, path string) string {
	cnonce := newCnonce()
	const nc = "00000001"

	a1 := md5hex(fmt.Sprintf("%s:%s:%s", user, p.Realm, password))
	if strings.EqualFold(p.Algorithm, "MD5-sess") {
		a1 = md5hex(fmt.Sprintf("%s:%s:%s", a1, p.Nonce, cnonce))
	}
	a2 := md5hex(fmt.Sprintf("%s:%s", method, path))

	var response string
	if p.Qop == "" {
		response = md5hex(fmt.Sprintf("%s:%s:%s", a1, p.Nonce, a2))
	} else {
		response = md5hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", a1, p.Nonce, nc, cnonce, p.Qop, a2))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		user, p.Realm, p.Nonce, path, response)
	if p.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, p.Opaque)
	}
	if p.Qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, p.Qop, nc, cnonce)
	}
	if p.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, p.Algorithm)
	}
	return b.String()
}

func newCnonce() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// PreemptiveSet is the process-wide, grow-only set of hosts that have
// accepted Basic credentials, so subsequent requests to the same host send
// Basic without waiting for a 401 challenge.
type PreemptiveSet struct {
	mu    sync.Mutex
	hosts map[string]struct{}
}

// NewPreemptiveSet creates an empty set.
func NewPreemptiveSet() *PreemptiveSet {
	return &PreemptiveSet{hosts: make(map[string]struct{})}
}

// Mark records host as having accepted Basic auth.
func (s *PreemptiveSet) Mark(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[strings.ToLower(host)] = struct{}{}
}

// Contains reports whether host has previously accepted Basic auth.
func (s *PreemptiveSet) Contains(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosts[strings.ToLower(host)]
	return ok
}
