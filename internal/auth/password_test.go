// internal/auth/password_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreateHash("hunter22", Params)
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	match, err := ComparePasswordAndHash("hunter22", hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = ComparePasswordAndHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHashesAreSalted(t *testing.T) {
	first, err := CreateHash("hunter22", Params)
	require.NoError(t, err)
	second, err := CreateHash("hunter22", Params)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestComparePasswordAndHashRejectsMalformed(t *testing.T) {
	_, err := ComparePasswordAndHash("hunter22", "not-a-hash")
	assert.Error(t, err)
}
