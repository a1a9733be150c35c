package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	secret := "admin-secret-123"

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	// bcrypt hashes carry the $2a$ prefix
	assert.Equal(t, "$2a$", hash[:4])
}

func TestVerifierPlaintext(t *testing.T) {
	v := NewVerifier("s3cret", "")

	assert.True(t, v.Configured())
	assert.True(t, v.Verify("s3cret"))
	assert.False(t, v.Verify("s3cret "))
	assert.False(t, v.Verify(""))
}

func TestVerifierHash(t *testing.T) {
	hash, err := HashSecret("correct horse")
	require.NoError(t, err)

	v := NewVerifier("", hash)
	assert.True(t, v.Verify("correct horse"))
	assert.False(t, v.Verify("battery staple"))
	assert.False(t, v.Verify(hash), "the hash itself is not a credential")
}

func TestVerifierHashTakesPrecedence(t *testing.T) {
	hash, err := HashSecret("from-hash")
	require.NoError(t, err)

	v := NewVerifier("from-plaintext", hash)
	assert.True(t, v.Verify("from-hash"))
	assert.False(t, v.Verify("from-plaintext"))
}

func TestVerifierNotConfigured(t *testing.T) {
	v := NewVerifier("", "")
	assert.False(t, v.Configured())
	assert.False(t, v.Verify("anything"))

	var nilVerifier *Verifier
	assert.False(t, nilVerifier.Configured())
	assert.False(t, nilVerifier.Verify("anything"))
}
