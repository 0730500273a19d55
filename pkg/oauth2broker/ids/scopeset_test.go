package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeSet_NormalizesOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	a, err := NewScopeSet([]string{"api.write", "api.read", "api.write"})
	require.NoError(t, err)
	assert.Equal(t, []string{"api.read", "api.write"}, a.Scopes())

	b, err := NewScopeSet([]string{"api.read", "api.write"})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.True(t, a.Equal(b))
}

func TestScopeSet_RejectsEmptyOrWhitespace(t *testing.T) {
	t.Parallel()

	_, err := NewScopeSet([]string{""})
	require.Error(t, err)

	_, err = NewScopeSet([]string{"has space"})
	require.Error(t, err)
}

func TestScopeSet_FingerprintIsMemoized(t *testing.T) {
	t.Parallel()

	s, err := NewScopeSet([]string{"z", "a"})
	require.NoError(t, err)

	first := s.Fingerprint()
	s.fingerprint = "tampered"
	second := s.Fingerprint()
	assert.Equal(t, "tampered", second, "Fingerprint must not recompute once memoized")
	assert.NotEmpty(t, first)
}

func TestScopeSet_EmptyIsEmpty(t *testing.T) {
	t.Parallel()

	s, err := NewScopeSet(nil)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
	assert.Equal(t, "", s.Joined(" "))
}

func TestScopeSet_Contains(t *testing.T) {
	t.Parallel()

	s, err := NewScopeSet([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("d"))
}

func TestScopeSet_Joined(t *testing.T) {
	t.Parallel()

	s, err := NewScopeSet([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, "a b", s.Joined(" "))
	assert.Equal(t, "a,b", s.Joined(","))
}
