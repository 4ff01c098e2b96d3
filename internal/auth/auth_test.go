package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/seblog/micropub/internal/micropub"
)

type fakeAuthority struct {
	claims url.Values
	err    error
	bearer string
}

func (a *fakeAuthority) Introspect(ctx context.Context, bearer string) (url.Values, error) {
	a.bearer = bearer
	return a.claims, a.err
}

func protoCode(t *testing.T, err error) string {
	t.Helper()
	var pe *micropub.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	return pe.Code
}

func validClaims() url.Values {
	return url.Values{
		"me":        {"https://example.com/"},
		"client_id": {"https://quill.p3k.io/"},
		"scope":     {"create update"},
	}
}

func TestVerifyMissingCredential(t *testing.T) {
	v := NewVerifier(&fakeAuthority{claims: validClaims()})
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)

	_, err := v.Verify(r, "create")
	if code := protoCode(t, err); code != micropub.CodeForbidden {
		t.Fatalf("expected forbidden, got %s", code)
	}
}

func TestVerifyHeaderBearer(t *testing.T) {
	authority := &fakeAuthority{claims: validClaims()}
	v := NewVerifier(authority)
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	token, err := v.Verify(r, "create")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if authority.bearer != "abc123" {
		t.Fatalf("authority saw bearer %q", authority.bearer)
	}
	if token.Me != "https://example.com/" {
		t.Fatalf("unexpected me: %q", token.Me)
	}
	if token.ClientID != "https://quill.p3k.io/" {
		t.Fatalf("unexpected client_id: %q", token.ClientID)
	}
	if !token.HasScope("update") {
		t.Fatal("expected update scope")
	}
}

func TestVerifyFormFallback(t *testing.T) {
	authority := &fakeAuthority{claims: validClaims()}
	v := NewVerifier(authority)
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.PostForm = url.Values{"access_token": {"formtoken"}}

	if _, err := v.Verify(r, "create"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if authority.bearer != "formtoken" {
		t.Fatalf("authority saw bearer %q", authority.bearer)
	}
}

func TestVerifyHeaderWinsOverForm(t *testing.T) {
	authority := &fakeAuthority{claims: validClaims()}
	v := NewVerifier(authority)
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.Header.Set("Authorization", "Bearer fromheader")
	r.PostForm = url.Values{"access_token": {"fromform"}}

	if _, err := v.Verify(r, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if authority.bearer != "fromheader" {
		t.Fatalf("authority saw bearer %q", authority.bearer)
	}
}

func TestVerifyMissingScope(t *testing.T) {
	claims := validClaims()
	claims.Set("scope", "update")
	v := NewVerifier(&fakeAuthority{claims: claims})
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	_, err := v.Verify(r, "create")
	if code := protoCode(t, err); code != micropub.CodeInsufficientScope {
		t.Fatalf("expected insufficient_scope, got %s", code)
	}
}

func TestVerifyUnrecognizedToken(t *testing.T) {
	v := NewVerifier(&fakeAuthority{claims: url.Values{}})
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	_, err := v.Verify(r, "create")
	if code := protoCode(t, err); code != micropub.CodeForbidden {
		t.Fatalf("expected forbidden, got %s", code)
	}
}

func TestVerifyAuthorityFailure(t *testing.T) {
	v := NewVerifier(&fakeAuthority{err: errors.New("connection refused")})
	r := httptest.NewRequest(http.MethodPost, "/micropub", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	_, err := v.Verify(r, "create")
	if code := protoCode(t, err); code != micropub.CodeInternal {
		t.Fatalf("expected internal error, got %s", code)
	}
}

func TestHTTPAuthorityIntrospect(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc123" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		w.Write([]byte("me=https%3A%2F%2Fexample.com%2F&scope=create+update&client_id=https%3A%2F%2Fapp.example%2F\n"))
	}))
	defer ts.Close()

	authority := NewHTTPAuthority(ts.URL, 2*time.Second)
	claims, err := authority.Introspect(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	if claims.Get("me") != "https://example.com/" {
		t.Fatalf("unexpected me: %q", claims.Get("me"))
	}
	if claims.Get("scope") != "create update" {
		t.Fatalf("unexpected scope: %q", claims.Get("scope"))
	}
}
