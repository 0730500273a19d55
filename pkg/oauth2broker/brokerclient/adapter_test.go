package brokerclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/broker"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/facade"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/store"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport/httptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapterTestRequest(t *testing.T) broker.CachedTokenRequest {
	t.Helper()
	tenant, err := ids.NewTenantId("tenant-a")
	require.NoError(t, err)
	principal, err := ids.NewPrincipalId("principal-a")
	require.NoError(t, err)
	scope, err := ids.NewScopeSet([]string{"api.read"})
	require.NoError(t, err)
	return broker.CachedTokenRequest{Tenant: tenant, Principal: principal, Scope: scope}
}

func newAdapterTestBroker(t *testing.T, handler http.HandlerFunc) (*broker.Broker, store.BrokerStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	descriptor, err := provider.NewBuilder(id).
		AuthorizationURL("https://example.com/authorize").
		TokenURL(server.URL).
		EnableGrant(provider.GrantClientCredentials).
		EnableGrant(provider.GrantRefreshToken).
		Build()
	require.NoError(t, err)

	fac := facade.New(descriptor, provider.DefaultStrategy{}, httptransport.New(nil), transport.DefaultErrorMapper{}, facade.Credentials{ClientID: "id", ClientSecret: "secret"})
	mem := store.NewMemoryStore()
	return broker.New(mem, descriptor, fac, "client-id"), mem
}

func TestClientCredentialsTokenSource_ConvertsRecordToOAuth2Token(t *testing.T) {
	t.Parallel()

	b, _ := newAdapterTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A0","expires_in":3600}`))
	})

	src := NewClientCredentialsTokenSource(context.Background(), b, adapterTestRequest(t))
	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "A0", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Empty(t, token.RefreshToken, "client_credentials tokens never carry a refresh token")
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, 5*time.Second)
}

func TestRefreshTokenSource_ExposesRotatedRefreshToken(t *testing.T) {
	t.Parallel()

	b, st := newAdapterTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`))
	})

	ctx := context.Background()
	req := adapterTestRequest(t)
	family := ids.NewTokenFamily(req.Tenant, req.Principal, mustProviderID(t))
	seeded, err := tokenrecord.NewBuilder(family, req.Scope).
		Access(tokenrecord.NewTokenSecret("A0")).
		Refresh(tokenrecord.NewTokenSecret("R0")).
		IssuedAt(time.Now().UTC().Add(-2*time.Hour)).
		ExpiresIn(time.Hour).
		Build()
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, seeded))

	src := NewRefreshTokenSource(ctx, b, req)
	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "A1", token.AccessToken)
	assert.Equal(t, "R1", token.RefreshToken)
}

func mustProviderID(t *testing.T) ids.ProviderId {
	t.Helper()
	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	return id
}
