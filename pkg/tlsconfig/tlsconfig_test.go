package tlsconfig

import (
	"crypto/tls"
	"testing"
)

func TestGetVersionName(t *testing.T) {
	cases := map[uint16]string{
		VersionSSL30: "SSL 3.0",
		VersionTLS12: "TLS 1.2",
		VersionTLS13: "TLS 1.3",
		0x9999:       "Unknown",
	}
	for version, want := range cases {
		if got := GetVersionName(version); got != want {
			t.Errorf("GetVersionName(%#x) = %q, want %q", version, got, want)
		}
	}
}

func TestIsVersionDeprecated(t *testing.T) {
	if !IsVersionDeprecated(VersionTLS11) {
		t.Error("TLS 1.1 should be deprecated")
	}
	if IsVersionDeprecated(VersionTLS12) {
		t.Error("TLS 1.2 should not be deprecated")
	}
	if IsVersionDeprecated(VersionTLS13) {
		t.Error("TLS 1.3 should not be deprecated")
	}
}

func TestApplyVersionProfile(t *testing.T) {
	cfg := &tls.Config{}
	ApplyVersionProfile(cfg, ProfileSecure)
	if cfg.MinVersion != VersionTLS12 || cfg.MaxVersion != VersionTLS13 {
		t.Errorf("cfg = %+v, want Min=TLS12 Max=TLS13", cfg)
	}
}

func TestApplyCipherSuitesPicksByMinVersion(t *testing.T) {
	cfg := &tls.Config{}
	ApplyCipherSuites(cfg, VersionTLS13)
	if cfg.CipherSuites != nil {
		t.Error("TLS 1.3 should leave CipherSuites nil (negotiated automatically)")
	}

	ApplyCipherSuites(cfg, VersionTLS12)
	if len(cfg.CipherSuites) != len(CipherSuitesTLS12Secure) {
		t.Error("TLS 1.2 minimum should select the secure ECDHE suite list")
	}

	ApplyCipherSuites(cfg, VersionTLS10)
	if len(cfg.CipherSuites) != len(CipherSuitesTLS12Compatible) {
		t.Error("TLS 1.0 minimum should select the CBC-compatible suite list")
	}

	ApplyCipherSuites(cfg, VersionSSL30)
	if len(cfg.CipherSuites) != len(CipherSuitesLegacy) {
		t.Error("SSL 3.0 minimum should select the legacy suite list")
	}
}

func TestGetCipherSuiteName(t *testing.T) {
	if got := GetCipherSuiteName(tls.TLS_AES_128_GCM_SHA256); got != "TLS_AES_128_GCM_SHA256" {
		t.Errorf("GetCipherSuiteName() = %q", got)
	}
	if got := GetCipherSuiteName(0); got != "Unknown" {
		t.Errorf("GetCipherSuiteName(0) = %q, want Unknown", got)
	}
}
