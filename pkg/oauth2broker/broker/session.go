package broker

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
)

const (
	stateLength    = 32
	verifierLength = 64

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// AuthorizationSession is the server-side state created by
// StartAuthorization and consumed by ExchangeCode: the PKCE verifier,
// the state CSRF token, and the parameters the callback must match.
type AuthorizationSession struct {
	Family       ids.TokenFamily
	Scope        *ids.ScopeSet
	RedirectURI  string
	AuthorizeURL *url.URL
	State        string
	Verifier     string
	Challenge    string
}

// ValidateState compares returned against the session's state in
// constant time, returning InvalidGrant on any mismatch.
func (s *AuthorizationSession) ValidateState(returned string) error {
	if subtle.ConstantTimeCompare([]byte(s.State), []byte(returned)) != 1 {
		return brokererrors.InvalidGrant("Authorization state mismatch.")
	}
	return nil
}

func newAuthorizationSession(
	family ids.TokenFamily,
	scope *ids.ScopeSet,
	redirectURI string,
	descriptor *provider.Descriptor,
	clientID string,
) (*AuthorizationSession, error) {
	state, err := randomAlphanumeric(stateLength)
	if err != nil {
		return nil, fmt.Errorf("oauth2broker/broker: generating state: %w", err)
	}
	verifier, err := randomAlphanumeric(verifierLength)
	if err != nil {
		return nil, fmt.Errorf("oauth2broker/broker: generating pkce verifier: %w", err)
	}
	challenge := pkceS256Challenge(verifier)

	authorizeURL := descriptor.AuthorizationURL()
	query := authorizeURL.Query()
	// Query order matters only for providers that parse it positionally,
	// which none do — Encode() sorts by key. Set() calls are still ordered
	// to match RFC 6749 §4.1.1 for readability.
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	if !scope.IsEmpty() {
		query.Set("scope", scope.Joined(descriptor.Quirks().ScopeDelimiter))
	}
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	authorizeURL.RawQuery = query.Encode()

	return &AuthorizationSession{
		Family:       family,
		Scope:        scope,
		RedirectURI:  redirectURI,
		AuthorizeURL: authorizeURL,
		State:        state,
		Verifier:     verifier,
		Challenge:    challenge,
	}, nil
}

func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}

func pkceS256Challenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
