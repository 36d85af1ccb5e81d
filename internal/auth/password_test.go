// ABOUTME: Tests for bcrypt password hashing helpers
// ABOUTME: Covers hash/check round trips and rejection of wrong passwords

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPassword(hash, "correct horse battery staple"))
	assert.False(t, CheckPassword(hash, "wrong password"))
	assert.False(t, CheckPassword(hash, ""))
}

func TestHashPassword_DistinctSalts(t *testing.T) {
	h1, err := HashPassword("same password")
	require.NoError(t, err)
	h2, err := HashPassword("same password")
	require.NoError(t, err)

	// bcrypt salts per call, so identical inputs hash differently.
	assert.NotEqual(t, h1, h2)
	assert.True(t, CheckPassword(h1, "same password"))
	assert.True(t, CheckPassword(h2, "same password"))
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("not-a-bcrypt-hash", "anything"))
}

func TestBurnPassword_DoesNotPanic(t *testing.T) {
	BurnPassword("any password")
	BurnPassword("")
}
