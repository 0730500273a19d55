package broker

import (
	"testing"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionTestDescriptor(t *testing.T) *provider.Descriptor {
	t.Helper()
	id, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	d, err := provider.NewBuilder(id).
		AuthorizationURL("https://example.com/authorize").
		TokenURL("https://example.com/token").
		EnableGrant(provider.GrantAuthorizationCode).
		RequirePkce().
		Build()
	require.NoError(t, err)
	return d
}

func TestNewAuthorizationSession_BuildsExpectedQueryParams(t *testing.T) {
	t.Parallel()

	tenant, err := ids.NewTenantId("tenant-a")
	require.NoError(t, err)
	principal, err := ids.NewPrincipalId("principal-a")
	require.NoError(t, err)
	providerID, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	family := ids.NewTokenFamily(tenant, principal, providerID)

	scope, err := ids.NewScopeSet([]string{"api.read", "api.write"})
	require.NoError(t, err)

	session, err := newAuthorizationSession(family, scope, "https://app.example.com/callback", sessionTestDescriptor(t), "my-client-id")
	require.NoError(t, err)

	q := session.AuthorizeURL.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "my-client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, session.State, q.Get("state"))
	assert.Equal(t, session.Challenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("scope"))
}

func TestNewAuthorizationSession_GeneratesDistinctStatesAndVerifiers(t *testing.T) {
	t.Parallel()

	tenant, err := ids.NewTenantId("tenant-a")
	require.NoError(t, err)
	principal, err := ids.NewPrincipalId("principal-a")
	require.NoError(t, err)
	providerID, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	family := ids.NewTokenFamily(tenant, principal, providerID)

	scope, err := ids.NewScopeSet(nil)
	require.NoError(t, err)

	a, err := newAuthorizationSession(family, scope, "https://app.example.com/callback", sessionTestDescriptor(t), "client")
	require.NoError(t, err)
	b, err := newAuthorizationSession(family, scope, "https://app.example.com/callback", sessionTestDescriptor(t), "client")
	require.NoError(t, err)

	assert.NotEqual(t, a.State, b.State)
	assert.NotEqual(t, a.Verifier, b.Verifier)
	assert.Empty(t, a.AuthorizeURL.Query().Get("scope"), "empty scope must be omitted entirely")
}

func TestValidateState_RejectsMismatch(t *testing.T) {
	t.Parallel()

	session := &AuthorizationSession{State: "expected-state"}
	assert.NoError(t, session.ValidateState("expected-state"))

	err := session.ValidateState("wrong-state")
	assert.True(t, brokererrors.Is(err, brokererrors.KindInvalidGrant))
}
