package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomID(t *testing.T) {
	id, err := GenerateRandomID(16)
	require.NoError(t, err)
	assert.Len(t, id, 16)

	other, err := GenerateRandomID(16)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestGenerateLockToken(t *testing.T) {
	token, err := GenerateLockToken()
	require.NoError(t, err)
	assert.Len(t, token, 32)

	other, err := GenerateLockToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestMustGenerateNonce(t *testing.T) {
	nonce := MustGenerateNonce()
	assert.Len(t, nonce, 12)
	assert.NotEqual(t, nonce, MustGenerateNonce())
}
