package tokenrecord

import (
	"testing"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFamily(t *testing.T) ids.TokenFamily {
	t.Helper()
	tenant, err := ids.NewTenantId("tenant-a")
	require.NoError(t, err)
	principal, err := ids.NewPrincipalId("principal-a")
	require.NoError(t, err)
	provider, err := ids.NewProviderId("okta")
	require.NoError(t, err)
	return ids.NewTokenFamily(tenant, principal, provider)
}

func testScope(t *testing.T) *ids.ScopeSet {
	t.Helper()
	s, err := ids.NewScopeSet([]string{"api.read"})
	require.NoError(t, err)
	return s
}

func TestBuilder_RequiresAccessToken(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(testFamily(t), testScope(t)).
		ExpiresIn(time.Hour).
		Build()

	assert.ErrorIs(t, err, brokererrors.ErrMissingAccessToken)
}

func TestBuilder_RequiresAnExpiry(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		Build()

	assert.ErrorIs(t, err, brokererrors.ErrMissingExpiry)
}

func TestBuilder_AbsoluteExpiryWinsOverRelative(t *testing.T) {
	t.Parallel()

	absolute := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		ExpiresIn(time.Hour).
		ExpiresAt(absolute).
		Build()

	require.NoError(t, err)
	assert.Equal(t, absolute, record.ExpiresAt)
}

func TestBuilder_RelativeExpiryAppliesAgainstIssuedAt(t *testing.T) {
	t.Parallel()

	issued := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		IssuedAt(issued).
		ExpiresIn(30 * time.Minute).
		Build()

	require.NoError(t, err)
	assert.Equal(t, issued.Add(30*time.Minute), record.ExpiresAt)
}

func TestStatus_MonotoneLifecycle(t *testing.T) {
	t.Parallel()

	issued := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Hour)
	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		IssuedAt(issued).
		ExpiresAt(expires).
		Build()
	require.NoError(t, err)

	assert.Equal(t, StatusPending, record.Status(issued.Add(-time.Minute)))
	assert.Equal(t, StatusActive, record.Status(issued))
	assert.Equal(t, StatusActive, record.Status(expires.Add(-time.Second)))
	assert.Equal(t, StatusExpired, record.Status(expires))
	assert.Equal(t, StatusExpired, record.Status(expires.Add(time.Hour)))
}

func TestStatus_RevokedOverridesEverything(t *testing.T) {
	t.Parallel()

	issued := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Hour)
	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		IssuedAt(issued).
		ExpiresAt(expires).
		Build()
	require.NoError(t, err)

	revokedAt := issued.Add(10 * time.Minute)
	record = record.Revoke(revokedAt)

	assert.Equal(t, StatusRevoked, record.Status(issued.Add(-time.Hour)))
	assert.Equal(t, StatusRevoked, record.Status(expires.Add(24*time.Hour)))
}

func TestRevoke_IsIdempotentUpToInstant(t *testing.T) {
	t.Parallel()

	issued := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		IssuedAt(issued).
		ExpiresAt(issued.Add(time.Hour)).
		Build()
	require.NoError(t, err)

	first := issued.Add(5 * time.Minute)
	second := issued.Add(6 * time.Minute)

	record = record.Revoke(first)
	record = record.Revoke(second)

	require.NotNil(t, record.RevokedAt)
	assert.Equal(t, second, *record.RevokedAt)
	assert.Equal(t, StatusRevoked, record.Status(time.Now()))
}

func TestWithRefresh_PreservesOldSecretWhenNoRotation(t *testing.T) {
	t.Parallel()

	record, err := NewBuilder(testFamily(t), testScope(t)).
		Access(NewTokenSecret("A0")).
		Refresh(NewTokenSecret("R0")).
		ExpiresIn(time.Hour).
		Build()
	require.NoError(t, err)

	rebuilt := record.WithRefresh(record.Refresh)
	assert.True(t, rebuilt.Refresh.Equal(NewTokenSecret("R0")))
}
