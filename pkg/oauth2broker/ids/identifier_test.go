package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenantId_RejectsWhitespace(t *testing.T) {
	t.Parallel()

	cases := []string{"has space", "nbsp here", "tab\there", "\n"}
	for _, c := range cases {
		_, err := NewTenantId(c)
		require.Error(t, err, "expected validation error for %q", c)
	}
}

func TestNewTenantId_RejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewTenantId("")
	require.Error(t, err)
}

func TestNewTenantId_LengthBoundary(t *testing.T) {
	t.Parallel()

	exactly128 := strings.Repeat("a", 128)
	_, err := NewTenantId(exactly128)
	assert.NoError(t, err)

	tooLong := strings.Repeat("a", 129)
	_, err = NewTenantId(tooLong)
	assert.Error(t, err)
}

func TestNewPrincipalId_And_ProviderId(t *testing.T) {
	t.Parallel()

	p, err := NewPrincipalId("user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.String())

	prov, err := NewProviderId("okta")
	require.NoError(t, err)
	assert.Equal(t, "okta", prov.String())
}
