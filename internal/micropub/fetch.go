package micropub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"willnorris.com/go/microformats"
)

// HTTPFetcher dereferences URL-valued fields. HTML responses are run
// through the microformats parser and reduced to comment-shaped data;
// everything else stays a plain reference.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawurl string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", rawurl, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "html"):
		base, err := url.Parse(rawurl)
		if err != nil {
			return nil, err
		}
		data := microformats.Parse(resp.Body, base)
		props := reduceComment(data, rawurl)
		if len(props) == 0 {
			return map[string]string{"url": rawurl}, nil
		}
		return props, nil
	default:
		// Images included: referenced, not re-hosted.
		return nil, nil
	}
}

// reduceComment flattens the first parsed microformat item into the
// comment shape stored on the entry. The type key is dropped.
func reduceComment(data *microformats.Data, sourceURL string) map[string]string {
	if data == nil || len(data.Items) == 0 {
		return nil
	}
	item := data.Items[0]
	props := map[string]string{}

	for _, key := range []string{"name", "summary", "published"} {
		if v := firstString(item.Properties[key]); v != "" {
			props[key] = v
		}
	}
	if v := firstString(item.Properties["content"]); v != "" {
		props["content"] = v
	}
	if author, ok := firstMicroformat(item.Properties["author"]); ok {
		if v := firstString(author.Properties["name"]); v != "" {
			props["author"] = v
		} else if author.Value != "" {
			props["author"] = author.Value
		}
		if v := firstString(author.Properties["url"]); v != "" {
			props["author-url"] = v
		}
		if v := firstString(author.Properties["photo"]); v != "" {
			props["author-photo"] = v
		}
	} else if v := firstString(item.Properties["author"]); v != "" {
		props["author"] = v
	}

	if len(props) == 0 {
		return nil
	}
	if v := firstString(item.Properties["url"]); v != "" {
		props["url"] = v
	} else {
		props["url"] = sourceURL
	}
	return props
}

func firstString(vals []any) string {
	if len(vals) == 0 {
		return ""
	}
	switch v := vals[0].(type) {
	case string:
		return v
	case map[string]string:
		return v["value"]
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
		return ""
	case *microformats.Microformat:
		return v.Value
	default:
		return ""
	}
}

func firstMicroformat(vals []any) (*microformats.Microformat, bool) {
	if len(vals) == 0 {
		return nil, false
	}
	mf, ok := vals[0].(*microformats.Microformat)
	return mf, ok
}
