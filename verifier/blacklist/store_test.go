package blacklist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLookup(t *testing.T) {
	s := NewStore()
	s.Add("Throwaway.Example.org")

	assert.True(t, s.IsBlacklisted("throwaway.example.org"))
	assert.True(t, s.IsBlacklisted("THROWAWAY.example.ORG"), "matching is case insensitive")
	assert.False(t, s.IsBlacklisted("example.org"))
}

func TestStoreWhitelistWins(t *testing.T) {
	s := NewStore("partner.example.org")
	s.Add("partner.example.org")

	assert.False(t, s.IsBlacklisted("partner.example.org"))
}

func TestStoreReadFrom(t *testing.T) {
	input := strings.Join([]string{
		"# a comment",
		"",
		"one.example.org",
		"  TWO.example.org  ",
		"three.example.org",
	}, "\n")

	s := NewStore()
	s.Add("stale.example.org")

	_, err := s.ReadFrom(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.IsBlacklisted("two.example.org"))
	assert.False(t, s.IsBlacklisted("stale.example.org"), "ReadFrom replaces, not appends")
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore()
	s.Add("one.example.org")
	s.Add("two.example.org")

	var buf strings.Builder
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	restored := NewStore()
	_, err = restored.ReadFrom(strings.NewReader(buf.String()))
	require.NoError(t, err)

	assert.Equal(t, 2, restored.Len())
	assert.True(t, restored.IsBlacklisted("one.example.org"))
	assert.True(t, restored.IsBlacklisted("two.example.org"))
}
