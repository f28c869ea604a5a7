package cookiejar

import "testing"

func TestRoundTripSetCookieThenCookieHeader(t *testing.T) {
	jar, err := Open("")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	jar.HandleSetCookie("https", "example.com", 443, "/", "session=abc123; Path=/")
	got := jar.CookieHeader("https", "example.com", 443, "/")
	if got != "session=abc123" {
		t.Errorf("CookieHeader() = %q, want %q", got, "session=abc123")
	}
}

func TestCookieHeaderEmptyWhenNoCookiesStored(t *testing.T) {
	jar, err := Open("")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got := jar.CookieHeader("https", "nowhere.example", 443, "/"); got != "" {
		t.Errorf("CookieHeader() = %q, want empty", got)
	}
}

func TestCookieScopedToPathIsNotSentElsewhere(t *testing.T) {
	jar, err := Open("")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	jar.HandleSetCookie("https", "example.com", 443, "/account", "secret=xyz; Path=/account")
	if got := jar.CookieHeader("https", "example.com", 443, "/public"); got != "" {
		t.Errorf("CookieHeader(/public) = %q, want empty (cookie scoped to /account)", got)
	}
	if got := jar.CookieHeader("https", "example.com", 443, "/account"); got != "secret=xyz" {
		t.Errorf("CookieHeader(/account) = %q, want %q", got, "secret=xyz")
	}
}

func TestSaveOnInMemoryJarIsNoop(t *testing.T) {
	jar, err := Open("")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := jar.Save(); err != nil {
		t.Errorf("Save() on an in-memory jar should not error: %v", err)
	}
}
