package micropub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/seblog/micropub/internal/model"
)

// TimeLayout is the sortable format stamped on published/updated.
const TimeLayout = "2006-01-02 15:04:05"

// Fetcher dereferences a URL-valued field. A nil map means the URL is a
// plain reference and the field keeps its original value.
type Fetcher interface {
	Fetch(ctx context.Context, rawurl string) (map[string]string, error)
}

// Normalizer transforms a decoded payload into storage-ready fields.
type Normalizer struct {
	fetcher Fetcher
	now     func() time.Time
}

func NewNormalizer(fetcher Fetcher) *Normalizer {
	return &Normalizer{fetcher: fetcher, now: time.Now}
}

// Normalize visits every field exactly once and produces a flat
// string-valued record: content is renamed to text, lists are
// comma-joined, nested microformat objects and dereferenced resources
// are serialized to yaml, and published/updated are stamped with the
// processing time. The serialized token is attached for provenance.
func (n *Normalizer) Normalize(ctx context.Context, p Payload, token model.AccessToken) (map[string]string, error) {
	fields := make(map[string]string, len(p)+3)

	for name, value := range p {
		if name == "h" {
			continue
		}
		if name == "content" {
			name = "text"
		}

		switch value.Kind {
		case List:
			fields[name] = strings.Join(value.List, ",")
		case Nested:
			encoded, err := yaml.Marshal(value.Nested)
			if err != nil {
				return nil, Internal(fmt.Sprintf("encode %s: %v", name, err))
			}
			fields[name] = strings.TrimRight(string(encoded), "\n")
		case Scalar:
			out := value.Scalar
			if isURL(value.Scalar) {
				props, err := n.fetcher.Fetch(ctx, value.Scalar)
				if err != nil {
					return nil, Internal(fmt.Sprintf("fetch %s: %v", value.Scalar, err))
				}
				if props != nil {
					encoded, err := yaml.Marshal(props)
					if err != nil {
						return nil, Internal(fmt.Sprintf("encode %s: %v", name, err))
					}
					out = strings.TrimRight(string(encoded), "\n")
				}
			}
			fields[name] = out
		}
	}

	encoded, err := token.Encode()
	if err != nil {
		return nil, Internal(fmt.Sprintf("encode token: %v", err))
	}
	fields["token"] = encoded

	now := n.now().Format(TimeLayout)
	fields["published"] = now
	fields["updated"] = now

	return fields, nil
}

// DeriveSlug picks the entry's storage key: explicit slug, then name,
// then an excerpt of the text, then of the summary, falling back to a
// unique time-based identifier.
func DeriveSlug(fields map[string]string) string {
	if s := fields["slug"]; s != "" {
		return slug.Make(s)
	}
	if s := fields["name"]; s != "" {
		return slug.Make(s)
	}
	if s := fields["text"]; s != "" {
		return slug.Make(Excerpt(s, 50))
	}
	if s := fields["summary"]; s != "" {
		return slug.Make(Excerpt(s, 50))
	}
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

// Excerpt truncates at a word boundary within max bytes, no ellipsis.
// The cut never splits a rune.
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
