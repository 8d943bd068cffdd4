// Package txtarfixture loads golden wire-message fixtures from
// golang.org/x/tools/txtar archives, used by the jsonrpc codec's
// round-trip tests instead of inlining JSON literals in Go source.
package txtarfixture

import (
	"fmt"

	"golang.org/x/tools/txtar"
)

// Archive is a parsed fixture file: a name-addressable set of byte blobs.
type Archive struct {
	files map[string][]byte
}

// Load parses the txtar file at path.
func Load(path string) (*Archive, error) {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("txtarfixture: parsing %s: %w", path, err)
	}
	files := make(map[string][]byte, len(ar.Files))
	for _, f := range ar.Files {
		files[f.Name] = f.Data
	}
	return &Archive{files: files}, nil
}

// Bytes returns the named section's raw bytes, with a trailing newline
// trimmed (txtar always terminates a section with one).
func (a *Archive) Bytes(name string) ([]byte, error) {
	data, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("txtarfixture: no section %q", name)
	}
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	return data, nil
}

// Names returns every section name in the archive, in file order is not
// preserved (map iteration); callers needing order should name sections
// accordingly (e.g. "01-request.json").
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	return names
}
