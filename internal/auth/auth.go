package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seblog/micropub/internal/micropub"
	"github.com/seblog/micropub/internal/model"
)

// Authority exchanges a bearer credential for the claim set the token
// authority holds for it.
type Authority interface {
	Introspect(ctx context.Context, bearer string) (url.Values, error)
}

// HTTPAuthority introspects tokens against a remote IndieAuth token
// endpoint. No caching: every request re-verifies, so revocation is
// immediately effective.
type HTTPAuthority struct {
	endpoint string
	client   *http.Client
}

func NewHTTPAuthority(endpoint string, timeout time.Duration) *HTTPAuthority {
	return &HTTPAuthority{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAuthority) Introspect(ctx context.Context, bearer string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	claims, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse authority response: %w", err)
	}
	return claims, nil
}

// Verifier validates the caller's bearer credential via the authority.
type Verifier struct {
	authority Authority
}

func NewVerifier(authority Authority) *Verifier {
	return &Verifier{authority: authority}
}

// Verify extracts the bearer credential (Authorization header first,
// access_token form field second), introspects it remotely, and checks
// the required scope. Tokens the authority does not bind to an identity
// are rejected.
func (v *Verifier) Verify(r *http.Request, requiredScope string) (model.AccessToken, error) {
	bearer := bearerFromRequest(r)
	if bearer == "" {
		return model.AccessToken{}, micropub.Forbidden(
			"an access token is required. Send an HTTP Authorization header such as 'Authorization: Bearer xxx' or include a POST-body parameter such as 'access_token=xxx'")
	}

	claims, err := v.authority.Introspect(r.Context(), bearer)
	if err != nil {
		return model.AccessToken{}, micropub.Internal(fmt.Sprintf("token verification failed: %v", err))
	}

	token := tokenFromClaims(claims)
	if token.Me == "" {
		return model.AccessToken{}, micropub.Forbidden("the token authority did not recognize this token")
	}
	if requiredScope != "" && !token.HasScope(requiredScope) {
		return model.AccessToken{}, micropub.InsufficientScope("the token provided does not have the necessary scope")
	}
	return token, nil
}

func bearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.PostForm.Get("access_token")
}

func tokenFromClaims(claims url.Values) model.AccessToken {
	raw := make(map[string]string, len(claims))
	for key := range claims {
		raw[key] = claims.Get(key)
	}
	return model.AccessToken{
		Me:       claims.Get("me"),
		ClientID: claims.Get("client_id"),
		Scopes:   strings.Fields(claims.Get("scope")),
		Claims:   raw,
	}
}
