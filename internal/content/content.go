// Package content provides the static content source for canned bot replies.
// Fragments are Messenger Send API body fragments (the part after the
// recipient envelope) embedded at build time. The core never interprets
// fragment contents; handlers read them by name and hand them to the sender.
package content

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed fragments
var fragmentFS embed.FS

// Store reads canned reply fragments by name.
type Store struct {
	dir string
}

// NewStore creates a store backed by the embedded fragment files.
func NewStore() *Store {
	return &Store{dir: "fragments"}
}

// Read returns the fragment with the given name.
func (s *Store) Read(name string) (string, error) {
	data, err := fragmentFS.ReadFile(s.dir + "/" + name)
	if err != nil {
		return "", fmt.Errorf("read fragment %s: %w", name, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// ReadWith returns the fragment with every {{KEY}} token replaced by the
// corresponding value. Unknown tokens are left untouched.
func (s *Store) ReadWith(name string, replacements map[string]string) (string, error) {
	fragment, err := s.Read(name)
	if err != nil {
		return "", err
	}
	for key, value := range replacements {
		fragment = strings.ReplaceAll(fragment, "{{"+key+"}}", value)
	}
	return fragment, nil
}
