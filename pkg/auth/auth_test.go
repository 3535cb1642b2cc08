package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	a, err := New(nil, time.Hour)
	require.NoError(t, err)

	hash, err := a.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NoError(t, a.CheckPassword("hunter2", hash))
	assert.Error(t, a.CheckPassword("wrong", hash))
}

func TestGenerateAndValidateToken(t *testing.T) {
	a, err := New([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := a.GenerateToken("admin")
	require.NoError(t, err)
	assert.Greater(t, expiresAt, time.Now().Unix())

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	a, err := New([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	token, _, err := a.GenerateToken("admin")
	require.NoError(t, err)

	_, err = a.ValidateToken(token + "x")
	assert.Error(t, err)
}
