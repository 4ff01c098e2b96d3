package micropub

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
)

func decodeErrCode(t *testing.T, err error) string {
	t.Helper()
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	return pe.Code
}

func TestDecodeJSONEntry(t *testing.T) {
	body := []byte(`{"h":"entry","content":"hello","category":["a","b"]}`)
	p, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	content := p["content"]
	if content.Kind != Scalar || content.Scalar != "hello" {
		t.Fatalf("unexpected content: %+v", content)
	}
	category := p["category"]
	if category.Kind != List || !reflect.DeepEqual(category.List, []string{"a", "b"}) {
		t.Fatalf("unexpected category: %+v", category)
	}
}

func TestDecodeFormEntry(t *testing.T) {
	form := url.Values{
		"h":          {"entry"},
		"content":    {"hello"},
		"category[]": {"a", "b"},
	}
	p, err := Decode(nil, form)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if p["content"].Scalar != "hello" {
		t.Fatalf("unexpected content: %+v", p["content"])
	}
	if !reflect.DeepEqual(p["category"].List, []string{"a", "b"}) {
		t.Fatalf("unexpected category: %+v", p["category"])
	}
}

func TestDecodeJSONTakesPriority(t *testing.T) {
	body := []byte(`{"h":"entry","content":"from json"}`)
	form := url.Values{"h": {"entry"}, "content": {"from form"}}

	p, err := Decode(body, form)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p["content"].Scalar != "from json" {
		t.Fatalf("expected json to win, got %q", p["content"].Scalar)
	}
}

func TestDecodeStripsAccessToken(t *testing.T) {
	body := []byte(`{"h":"entry","content":"hello","access_token":"secret"}`)
	p, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := p["access_token"]; ok {
		t.Fatal("access_token survived decoding")
	}
}

func TestDecodeRejectsTokenOnlyPost(t *testing.T) {
	_, err := Decode([]byte(`{"h":"entry","access_token":"secret"}`), nil)
	if code := decodeErrCode(t, err); code != CodeInvalidRequest {
		t.Fatalf("expected invalid_request, got %s", code)
	}

	form := url.Values{"h": {"entry"}, "access_token": {"secret"}}
	_, err = Decode(nil, form)
	if code := decodeErrCode(t, err); code != CodeInvalidRequest {
		t.Fatalf("expected invalid_request, got %s", code)
	}
}

func TestDecodeRejectsNonEntry(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		form url.Values
	}{
		{"json h-event", []byte(`{"h":"event","name":"party"}`), nil},
		{"form h-event", nil, url.Values{"h": {"event"}, "name": {"party"}}},
		{"no h", []byte(`{"content":"hello"}`), nil},
		{"garbage", []byte(`not a payload`), nil},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		_, err := Decode(tc.body, tc.form)
		if code := decodeErrCode(t, err); code != CodeInvalidRequest {
			t.Fatalf("%s: expected invalid_request, got %s", tc.name, code)
		}
	}
}

func TestDecodeNestedMicroformat(t *testing.T) {
	body := []byte(`{"h":"entry","content":"hi","author":[{"type":"h-card","properties":{"name":["Alice"]}}]}`)
	p, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	author := p["author"]
	if author.Kind != Nested {
		t.Fatalf("expected nested value, got kind %d", author.Kind)
	}
	if len(author.Nested) != 1 || author.Nested[0].Type != "h-card" {
		t.Fatalf("unexpected nested objects: %+v", author.Nested)
	}
}

func TestDecodePlainObjectArrayStaysList(t *testing.T) {
	// An array whose first element lacks the h- type shape joins as a list.
	body := []byte(`{"h":"entry","category":[{"name":"x"}]}`)
	p, err := Decode(body, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p["category"].Kind != List {
		t.Fatalf("expected list, got kind %d", p["category"].Kind)
	}
}
