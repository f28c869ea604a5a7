// Package netrc looks up default credentials from a .netrc file, the
// supplemented feature noted in SPEC_FULL.md: the transaction engine's
// INIT state resolves user/password from explicit options, then the URL,
// then netrc, in that order of preference.
package netrc

import (
	"bufio"
	"os"
	"strings"
)

// Entry is one machine's stored credentials.
type Entry struct {
	Login    string
	Password string
}

// File is a parsed .netrc, keyed by machine hostname (case-sensitive, as
// the format itself is).
type File struct {
	machines map[string]Entry
	def      *Entry
}

// Load parses the .netrc file at path. A missing file is not an error: it
// yields an empty File so callers can unconditionally call Lookup.
func Load(path string) (*File, error) {
	f := &File{machines: make(map[string]Entry)}

	data, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}
	defer data.Close()

	var (
		tokens []string
	)
	sc := bufio.NewScanner(data)
	for sc.Scan() {
		tokens = append(tokens, strings.Fields(sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var (
		machine string
		entry   Entry
		inMach  bool
		isDef   bool
	)
	flush := func() {
		if isDef {
			e := entry
			f.def = &e
		} else if inMach {
			f.machines[machine] = entry
		}
	}

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch tok {
		case "machine":
			flush()
			inMach, isDef = true, false
			entry = Entry{}
			if i+1 < len(tokens) {
				machine = tokens[i+1]
				i++
			}
		case "default":
			flush()
			inMach, isDef = false, true
			entry = Entry{}
		case "login":
			if i+1 < len(tokens) {
				entry.Login = tokens[i+1]
				i++
			}
		case "password":
			if i+1 < len(tokens) {
				entry.Password = tokens[i+1]
				i++
			}
		}
		i++
	}
	flush()

	return f, nil
}

// Lookup returns credentials for host, falling back to the "default"
// machine entry if present.
func (f *File) Lookup(host string) (Entry, bool) {
	if e, ok := f.machines[host]; ok {
		return e, true
	}
	if f.def != nil {
		return *f.def, true
	}
	return Entry{}, false
}
