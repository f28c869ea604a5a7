package auth

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseChallengesKeepsFirstOccurrencePerScheme(t *testing.T) {
	challenges := ParseChallenges([]string{
		`Digest realm="first", nonce="abc"`,
		`Digest realm="second", nonce="xyz"`,
		`Basic realm="files"`,
		`Unsupported realm="ignored"`,
	})

	if len(challenges) != 2 {
		t.Fatalf("got %d challenges, want 2: %+v", len(challenges), challenges)
	}
	if got := challenges[SchemeDigest].Params["realm"]; got != "first" {
		t.Errorf("realm = %q, want %q (first occurrence should win)", got, "first")
	}
	if _, ok := challenges[SchemeBasic]; !ok {
		t.Error("missing Basic challenge")
	}
}

func TestSelectPrefersNTLMOverDigestOverBasic(t *testing.T) {
	all := map[Scheme]Challenge{
		SchemeBasic:  {Scheme: SchemeBasic},
		SchemeDigest: {Scheme: SchemeDigest},
		SchemeNTLM:   {Scheme: SchemeNTLM},
	}
	c, ok := Select(all)
	if !ok || c.Scheme != SchemeNTLM {
		t.Fatalf("Select(all three) = %v, %v; want NTLM", c, ok)
	}

	digestOnly := map[Scheme]Challenge{SchemeDigest: {Scheme: SchemeDigest}, SchemeBasic: {Scheme: SchemeBasic}}
	c, ok = Select(digestOnly)
	if !ok || c.Scheme != SchemeDigest {
		t.Fatalf("Select(digest+basic) = %v, %v; want Digest", c, ok)
	}

	_, ok = Select(nil)
	if ok {
		t.Fatal("Select(nil) should report no usable challenge")
	}
}

func TestExtractNTLMBlob(t *testing.T) {
	if _, ok := ExtractNTLMBlob([]string{"NTLM"}); ok {
		t.Error("bare NTLM challenge (round 1) should not yield a blob")
	}
	blob, ok := ExtractNTLMBlob([]string{"Basic realm=x", "NTLM TlRMTVNTUAACAAAA"})
	if !ok || blob != "TlRMTVNTUAACAAAA" {
		t.Errorf("ExtractNTLMBlob = %q, %v", blob, ok)
	}
}

func TestBasic(t *testing.T) {
	got := Basic("alice", "s3cret")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	if got != want {
		t.Errorf("Basic() = %q, want %q", got, want)
	}
}

func TestParseDigestChallengeRejectsUnsupportedQop(t *testing.T) {
	c := Challenge{Params: map[string]string{"realm": "r", "nonce": "n", "qop": "auth-int"}}
	if _, err := ParseDigestChallenge(c); err == nil {
		t.Fatal("expected error for qop=auth-int")
	}
}

func TestParseDigestChallengeRejectsMissingNonce(t *testing.T) {
	c := Challenge{Params: map[string]string{"realm": "r"}}
	if _, err := ParseDigestChallenge(c); err == nil {
		t.Fatal("expected error for missing nonce")
	}
}

func TestDigestResponseIncludesCredentialFields(t *testing.T) {
	p := DigestParams{Realm: "test", Nonce: "abc123", Qop: "auth"}
	header := Digest(p, "alice", "s3cret", "GET", "/secure")

	if !strings.Contains(header, `username="alice"`) {
		t.Errorf("header missing username: %s", header)
	}
	if !strings.Contains(header, `realm="test"`) {
		t.Errorf("header missing realm: %s", header)
	}
	if !strings.Contains(header, "qop=auth") {
		t.Errorf("header missing qop: %s", header)
	}
}

func TestDigestNoQopOmitsQopFields(t *testing.T) {
	p := DigestParams{Realm: "test", Nonce: "abc123"}
	header := Digest(p, "alice", "s3cret", "GET", "/secure")
	if strings.Contains(header, "qop=") {
		t.Errorf("RFC 2069 response should not include qop: %s", header)
	}
}

func TestPreemptiveSet(t *testing.T) {
	s := NewPreemptiveSet()
	if s.Contains("example.com") {
		t.Fatal("new set should not contain any host")
	}
	s.Mark("Example.com")
	if !s.Contains("example.com") {
		t.Error("Contains should be case-insensitive")
	}
}
