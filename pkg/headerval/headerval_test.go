package headerval

import "testing"

func TestFilenamePrefersEncodedOverPlain(t *testing.T) {
	name, ok := Filename(`attachment; filename="fallback.txt"; filename*=UTF-8''r%C3%A9sum%C3%A9.txt`)
	if !ok {
		t.Fatal("expected a filename")
	}
	if name != "résumé.txt" {
		t.Errorf("Filename() = %q, want %q", name, "résumé.txt")
	}
}

func TestFilenameJoinsMultipleEncodedSegments(t *testing.T) {
	name, ok := Filename(`attachment; filename*0*=UTF-8''%e2%82%ac%20; filename*1*=rates`)
	if !ok {
		t.Fatal("expected a filename")
	}
	if want := "€ rates"; name != want {
		t.Errorf("Filename() = %q, want %q", name, want)
	}
}

func TestFilenameFallsBackToPlain(t *testing.T) {
	name, ok := Filename(`attachment; filename="report.pdf"`)
	if !ok || name != "report.pdf" {
		t.Errorf("Filename() = %q, %v", name, ok)
	}
}

func TestFilenameStripsDirectoryComponents(t *testing.T) {
	name, ok := Filename(`attachment; filename="../../etc/passwd"`)
	if !ok || name != "passwd" {
		t.Errorf("Filename() = %q, %v, want basename only", name, ok)
	}
}

func TestFilenameAbsentReturnsFalse(t *testing.T) {
	if _, ok := Filename("inline"); ok {
		t.Error("Filename() should report false when no filename parameter is present")
	}
}

func TestShouldInlineGunzip(t *testing.T) {
	if !ShouldInlineGunzip("gzip", "/archive.json", "application/json", true) {
		t.Error("plain .json with Content-Encoding: gzip should be inlined")
	}
	if ShouldInlineGunzip("gzip", "/archive.json", "application/json", false) {
		t.Error("compression disabled should never inline")
	}
	if ShouldInlineGunzip("", "/archive.json", "application/json", true) {
		t.Error("no Content-Encoding should not inline")
	}
	if ShouldInlineGunzip("gzip", "/archive.tar.gz", "application/octet-stream", true) {
		t.Error(".gz extension should not be inlined")
	}
	if ShouldInlineGunzip("gzip", "/data", "application/gzip", true) {
		t.Error("gzip Content-Type should not be inlined")
	}
}

func TestIsRecognizedButUndecoded(t *testing.T) {
	for _, enc := range []string{"deflate", "br", "compress", "Deflate"} {
		if !IsRecognizedButUndecoded(enc) {
			t.Errorf("IsRecognizedButUndecoded(%q) = false, want true", enc)
		}
	}
	if IsRecognizedButUndecoded("gzip") {
		t.Error("gzip is decoded inline, not left undecoded")
	}
	if IsRecognizedButUndecoded("identity") {
		t.Error("identity is not a recognized-but-undecoded encoding")
	}
}

func TestParseContentRange(t *testing.T) {
	cr, ok := ParseContentRange("bytes 5-10/11")
	if !ok || cr.First != 5 || cr.Last != 10 || cr.Total != 11 {
		t.Errorf("ParseContentRange(normal) = %+v, %v", cr, ok)
	}

	cr, ok = ParseContentRange("bytes */*")
	if ok {
		t.Error("a range with no span should not parse")
	}

	cr, ok = ParseContentRange("bytes 5-10/*")
	if !ok || cr.Total != -1 {
		t.Errorf("ParseContentRange(unknown total) = %+v, %v, want Total=-1", cr, ok)
	}

	if _, ok = ParseContentRange("bytes 10-5/20"); ok {
		t.Error("last < first should be rejected")
	}
	if _, ok = ParseContentRange("bytes 5-10/10"); ok {
		t.Error("total <= last should be rejected")
	}
	if _, ok = ParseContentRange("garbage"); ok {
		t.Error("unparseable input should be rejected")
	}
}

func TestParseSTS(t *testing.T) {
	sts, ok := ParseSTS("max-age=31536000; includeSubDomains")
	if !ok || sts.MaxAge != 31536000 || !sts.IncludeSubDomains {
		t.Errorf("ParseSTS() = %+v, %v", sts, ok)
	}

	sts, ok = ParseSTS("max-age=0")
	if !ok || sts.MaxAge != 0 || sts.IncludeSubDomains {
		t.Errorf("ParseSTS(max-age=0) = %+v, %v", sts, ok)
	}

	if _, ok = ParseSTS("includeSubDomains"); ok {
		t.Error("a header with no max-age should fail to parse")
	}
	if _, ok = ParseSTS("max-age=notanumber"); ok {
		t.Error("a non-numeric max-age should fail to parse")
	}
}
