package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

func TestArgon2(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)
	assert.Len(t, salt, Argon2SaltSize)

	hash, err := Argon2KeyGen("test-password", salt, 32)
	assert.NoError(t, err)
	hash2, err := Argon2KeyGen("test-password", salt, 32)
	assert.NoError(t, err)
	assert.Equal(t, hash, hash2)

	_, err = Argon2KeyGen("", salt, 32)
	assert.Error(t, err)
	_, err = Argon2KeyGen("test-password", nil, 32)
	assert.Error(t, err)
}

func TestXChaCha20Poly1305(t *testing.T) {
	salt, err := GenerateSalt(Argon2SaltSize)
	require.NoError(t, err)
	key, err := Argon2KeyGen("test-password", salt, chacha20poly1305.KeySize)
	require.NoError(t, err)

	message := []byte("open sesame")
	aad := []byte("keystore:issuer-key")
	encrypted, err := XChaCha20Poly1305Encrypt(key, message, aad)
	require.NoError(t, err)
	assert.NotEqual(t, message, encrypted)

	decrypted, err := XChaCha20Poly1305Decrypt(key, encrypted, aad)
	assert.NoError(t, err)
	assert.Equal(t, message, decrypted)

	_, err = XChaCha20Poly1305Decrypt(key, encrypted, []byte("keystore:other-key"))
	assert.Error(t, err)

	encrypted[len(encrypted)-1] ^= 0xff
	_, err = XChaCha20Poly1305Decrypt(key, encrypted, aad)
	assert.Error(t, err)

	_, err = XChaCha20Poly1305Decrypt(key, []byte{1}, nil)
	assert.Error(t, err)
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	b, err := RandomHex(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = RandomHex(0)
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "ab", SanitizeLog("a\r\nb"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256Hex(nil))
	assert.True(t, Is2xxResponse(204))
	assert.False(t, Is2xxResponse(302))
}
