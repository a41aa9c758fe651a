package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("carries 32 bytes of entropy", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, StateTokenBytes)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := GenerateToken()
			require.NoError(t, err)
			assert.False(t, seen[token])
			seen[token] = true
		}
	})

	t.Run("is URL safe", func(t *testing.T) {
		token, _ := GenerateToken()
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		assert.Len(t, HashToken("test-token"), 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("test-token"), HashToken("test-token"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	})
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", MaskToken("short"))
	assert.Equal(t, "gho_ab****", MaskToken("gho_abcdefghijkl"))
}

func TestIsValidProviderName(t *testing.T) {
	assert.True(t, IsValidProviderName("github"))
	assert.True(t, IsValidProviderName("gitee-enterprise"))
	assert.False(t, IsValidProviderName(""))
	assert.False(t, IsValidProviderName("GitHub"))
	assert.False(t, IsValidProviderName("../etc"))
}

func TestIsValidEnum(t *testing.T) {
	assert.True(t, IsValidEnum("", []string{"a"}))
	assert.True(t, IsValidEnum("a", []string{"a", "b"}))
	assert.False(t, IsValidEnum("c", []string{"a", "b"}))
}
