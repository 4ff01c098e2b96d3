package model

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AccessToken is the identity/scope record returned by the token
// authority. Immutable once constructed.
type AccessToken struct {
	Me       string
	ClientID string
	Scopes   []string
	Claims   map[string]string
}

// HasScope reports whether the authority granted the named scope.
func (t AccessToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Encode serializes the raw claim map for the stored audit field.
func (t AccessToken) Encode() (string, error) {
	out, err := yaml.Marshal(t.Claims)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Entry is a created post. Fields holds the normalized storage fields,
// every value a scalar string.
type Entry struct {
	Slug      string
	Kind      string
	Fields    map[string]string
	CreatedAt time.Time
}

// File is an uploaded file attached to an entry.
type File struct {
	Slug        string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}
