package facade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport/httptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFamily(t *testing.T) ids.TokenFamily {
	t.Helper()
	tenant, err := ids.NewTenantId("tenant-a")
	require.NoError(t, err)
	principal, err := ids.NewPrincipalId("principal-a")
	require.NoError(t, err)
	prov, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	return ids.NewTokenFamily(tenant, principal, prov)
}

func testScope(t *testing.T) *ids.ScopeSet {
	t.Helper()
	s, err := ids.NewScopeSet([]string{"api.read", "api.write"})
	require.NoError(t, err)
	return s
}

func buildDescriptor(t *testing.T, tokenURL string) *provider.Descriptor {
	t.Helper()
	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)

	d, err := provider.NewBuilder(id).
		AuthorizationURL("https://example.com/authorize").
		TokenURL(tokenURL).
		EnableGrant(provider.GrantClientCredentials).
		EnableGrant(provider.GrantRefreshToken).
		EnableGrant(provider.GrantAuthorizationCode).
		Build()
	require.NoError(t, err)
	return d
}

func newTestFacade(t *testing.T, handler http.HandlerFunc) *Facade {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	descriptor := buildDescriptor(t, server.URL)
	return New(descriptor, provider.DefaultStrategy{}, httptransport.New(nil), transport.DefaultErrorMapper{}, Credentials{ClientID: "id", ClientSecret: "secret"})
}

func TestClientCredentials_NormalizesSuccessResponse(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"A0","token_type":"bearer","expires_in":3600}`))
	})

	record, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	require.NoError(t, err)
	assert.True(t, record.Access.Equal(tokenrecord.NewTokenSecret("A0")))
}

func TestClientCredentials_MissingExpiresIn(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A0"}`))
	})

	_, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	assert.ErrorIs(t, err, brokererrors.ErrMissingExpiresIn)
}

func TestClientCredentials_NonPositiveExpiresIn(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A0","expires_in":0}`))
	})

	_, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	assert.ErrorIs(t, err, brokererrors.ErrNonPositiveExpiresIn)
}

func TestClientCredentials_ScopesChanged(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A0","expires_in":3600,"scope":"api.read"}`))
	})

	_, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	require.Error(t, err)
	assert.True(t, brokererrors.Is(err, brokererrors.KindConfig))
}

func TestClientCredentials_InvalidGrantResponse(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	assert.True(t, brokererrors.Is(err, brokererrors.KindInvalidGrant))
}

func TestClientCredentials_RateLimitedResponseCarriesStatusAndRetryAfter(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"server_error"}`))
	})

	_, err := f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	require.Error(t, err)
	assert.True(t, brokererrors.Is(err, brokererrors.KindTransient))

	var brokerErr *brokererrors.Error
	require.ErrorAs(t, err, &brokerErr)
	if assert.NotNil(t, brokerErr.Status) {
		assert.Equal(t, http.StatusTooManyRequests, *brokerErr.Status)
	}
	if assert.NotNil(t, brokerErr.RetryAfter) {
		assert.InDelta(t, 30, brokerErr.RetryAfter.Seconds(), 1)
	}
}

func TestClientCredentials_UnsupportedGrant(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("transport should not be invoked for an unsupported grant")
	}))
	t.Cleanup(server.Close)

	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	descriptor, err := provider.NewBuilder(id).
		AuthorizationURL("https://example.com/authorize").
		TokenURL(server.URL).
		EnableGrant(provider.GrantAuthorizationCode).
		Build()
	require.NoError(t, err)

	f := New(descriptor, provider.DefaultStrategy{}, httptransport.New(nil), transport.DefaultErrorMapper{}, Credentials{})
	_, err = f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	assert.True(t, brokererrors.Is(err, brokererrors.KindConfig))
}

func TestRefreshToken_RotatesRefreshSecretWhenPresent(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`))
	})

	result, err := f.RefreshToken(context.Background(), testFamily(t), testScope(t), tokenrecord.NewTokenSecret("R0"))
	require.NoError(t, err)
	assert.True(t, result.RefreshRotated)
	assert.True(t, result.RotatedRefresh.Equal(tokenrecord.NewTokenSecret("R1")))
}

func TestClientCredentials_ProviderOverrideReplacesDefaultCredentials(t *testing.T) {
	t.Parallel()

	var gotAuthHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthHeader = r.Header.Get("Authorization")
		w.Write([]byte(`{"access_token":"A0","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	descriptor, err := provider.NewBuilder(id).
		AuthorizationURL("https://example.com/authorize").
		TokenURL(server.URL).
		EnableGrant(provider.GrantClientCredentials).
		ClientAuthMethod(provider.ClientSecretBasic).
		ClientCredentialOverride("override-id", "override-secret").
		Build()
	require.NoError(t, err)

	f := New(descriptor, provider.DefaultStrategy{}, httptransport.New(nil), transport.DefaultErrorMapper{}, Credentials{ClientID: "default-id", ClientSecret: "default-secret"})
	_, err = f.ClientCredentials(context.Background(), testFamily(t), testScope(t), nil)
	require.NoError(t, err)

	probe := &http.Request{Header: http.Header{"Authorization": {gotAuthHeader}}}
	user, pass, ok := probe.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "override-id", user)
	assert.Equal(t, "override-secret", pass)
}

func TestRefreshToken_NoRotationWhenAbsent(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A2","expires_in":3600}`))
	})

	result, err := f.RefreshToken(context.Background(), testFamily(t), testScope(t), tokenrecord.NewTokenSecret("R0"))
	require.NoError(t, err)
	assert.False(t, result.RefreshRotated)
	assert.True(t, result.Record.Access.Equal(tokenrecord.NewTokenSecret("A2")))
}
