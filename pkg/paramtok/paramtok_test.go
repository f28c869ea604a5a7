package paramtok

import "testing"

func TestNextSplitsOnSeparator(t *testing.T) {
	tok := New(`form-data; name="file"; filename="a.txt"`, ';')

	var got []Param
	for !tok.Done() {
		p, ok := tok.Next()
		if !ok {
			break
		}
		got = append(got, p)
	}
	if len(got) != 3 {
		t.Fatalf("got %d params, want 3: %+v", len(got), got)
	}
	if got[0].Name != "form-data" || got[0].Value != "" {
		t.Errorf("params[0] = %+v", got[0])
	}
	if got[1].Name != "name" || got[1].Value != "file" {
		t.Errorf("params[1] = %+v", got[1])
	}
	if got[2].Name != "filename" || got[2].Value != "a.txt" {
		t.Errorf("params[2] = %+v", got[2])
	}
}

func TestNextUnescapesQuotedBackslash(t *testing.T) {
	tok := New(`name="a \"quoted\" value"`, ';')
	p, ok := tok.Next()
	if !ok {
		t.Fatal("expected a parameter")
	}
	if want := `a "quoted" value`; p.Value != want {
		t.Errorf("Value = %q, want %q", p.Value, want)
	}
}

func TestNextOnCommaSeparatedSchemeList(t *testing.T) {
	tok := New("NTLM, Negotiate, Basic realm=x", ',')
	var names []string
	for !tok.Done() {
		p, ok := tok.Next()
		if !ok {
			break
		}
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "NTLM" || names[2] != "Basic realm" {
		t.Errorf("names = %v", names)
	}
}

func TestSplitExtendedRecognizesSegmentedForms(t *testing.T) {
	cases := []struct {
		raw          string
		wantBase     string
		wantSegment  int
		wantEncoded  bool
	}{
		{"filename", "filename", -1, false},
		{"filename*", "filename", -1, true},
		{"filename*0", "filename", 0, false},
		{"filename*0*", "filename", 0, true},
		{"filename*1*", "filename", 1, true},
	}
	for _, c := range cases {
		base, seg, enc := splitExtended(c.raw)
		if base != c.wantBase || seg != c.wantSegment || enc != c.wantEncoded {
			t.Errorf("splitExtended(%q) = (%q, %d, %v), want (%q, %d, %v)",
				c.raw, base, seg, enc, c.wantBase, c.wantSegment, c.wantEncoded)
		}
	}
}

func TestDoneOnEmptyInput(t *testing.T) {
	tok := New("", ';')
	if !tok.Done() {
		t.Error("Done() on empty input should be true")
	}
	if _, ok := tok.Next(); ok {
		t.Error("Next() on empty input should report false")
	}
}
