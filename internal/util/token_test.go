package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken_Alphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		tok := RandomToken()
		require.Len(t, tok, TokenLength)
		require.True(t, IsToken(tok), "unexpected token %q", tok)
	}
}

func TestRandomToken_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok := RandomToken()
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q", tok)
		seen[tok] = struct{}{}
	}
}

func TestIsToken(t *testing.T) {
	assert.True(t, IsToken("ABC123XYZ789"))
	assert.False(t, IsToken("abc123XYZ789"))
	assert.False(t, IsToken("ABC123"))
	assert.False(t, IsToken("ABC123XYZ78_"))
}
