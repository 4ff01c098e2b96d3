package micropub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValueKind discriminates the shapes a posted property can take.
type ValueKind int

const (
	Scalar ValueKind = iota
	List
	Nested
)

// Value is a tagged variant built once at decode time, so later stages
// never have to shape-sniff.
type Value struct {
	Kind   ValueKind
	Scalar string
	List   []string
	Nested []NestedObject
}

// NestedObject is an embedded microformat object, recognized by an
// h-prefixed type and a properties map on the first array element.
type NestedObject struct {
	Type       string         `yaml:"type" json:"type"`
	Properties map[string]any `yaml:"properties" json:"properties"`
}

// Payload is the decoded entry, property name to value.
type Payload map[string]Value

// Decode builds a Payload from the request body and form. The JSON body
// is tried first; a form-encoded body wins only when JSON does not parse
// to an h-entry. Only h=entry is accepted. The access_token field is
// stripped before the content check so a credentials-only POST is
// rejected as contentless.
func Decode(body []byte, form url.Values) (Payload, error) {
	if p, ok := decodeJSON(body); ok && p.isEntry() {
		return p.finish()
	}
	if p := decodeForm(form); p.isEntry() {
		return p.finish()
	}
	return nil, InvalidRequest("we only accept h-entry as json or x-www-form-urlencoded")
}

func (p Payload) isEntry() bool {
	h, ok := p["h"]
	return ok && h.Kind == Scalar && h.Scalar == "entry"
}

func (p Payload) finish() (Payload, error) {
	delete(p, "access_token")
	if len(p) < 2 {
		return nil, InvalidRequest("no content was found")
	}
	return p, nil
}

func decodeJSON(body []byte) (Payload, bool) {
	if len(body) == 0 {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	p := make(Payload, len(raw))
	for name, v := range raw {
		p[name] = convertJSON(v)
	}
	return p, true
}

func convertJSON(v any) Value {
	switch v := v.(type) {
	case []any:
		if nested, ok := convertNested(v); ok {
			return Value{Kind: Nested, Nested: nested}
		}
		list := make([]string, 0, len(v))
		for _, item := range v {
			list = append(list, scalarString(item))
		}
		return Value{Kind: List, List: list}
	case map[string]any:
		// A bare object joins like an array of its values.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]string, 0, len(v))
		for _, k := range keys {
			list = append(list, scalarString(v[k]))
		}
		return Value{Kind: List, List: list}
	default:
		return Value{Kind: Scalar, Scalar: scalarString(v)}
	}
}

// convertNested recognizes the nested-microformat shape: the first
// element is an object with an h-prefixed type and a properties map.
func convertNested(items []any) ([]NestedObject, bool) {
	if len(items) == 0 {
		return nil, false
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return nil, false
	}
	typ, _ := first["type"].(string)
	_, hasProps := first["properties"].(map[string]any)
	if !strings.HasPrefix(typ, "h-") || !hasProps {
		return nil, false
	}
	nested := make([]NestedObject, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := obj["type"].(string)
		props, _ := obj["properties"].(map[string]any)
		nested = append(nested, NestedObject{Type: typ, Properties: props})
	}
	return nested, true
}

func decodeForm(form url.Values) Payload {
	p := make(Payload, len(form))
	for key, vals := range form {
		if len(vals) == 0 {
			continue
		}
		name := strings.TrimSuffix(key, "[]")
		if name == "" {
			continue
		}
		if len(vals) > 1 || strings.HasSuffix(key, "[]") {
			p[name] = Value{Kind: List, List: vals}
			continue
		}
		p[name] = Value{Kind: Scalar, Scalar: vals[0]}
	}
	return p
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
