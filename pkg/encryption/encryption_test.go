package encryption

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tbd54566975/ssi-vc-service/internal/signing"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
)

type kmsConfig struct {
	uri string
}

func (k kmsConfig) GetMasterKeyURI() string       { return k.uri }
func (k kmsConfig) GetKMSCredentialsPath() string { return "" }
func (k kmsConfig) EncryptionEnabled() bool       { return k.uri != "" }

func TestKeyedCipher(t *testing.T) {
	ctx := context.Background()
	key, err := util.GenerateSalt(chacha20poly1305.KeySize)
	require.NoError(t, err)
	cipher := NewKeyedCipher(key)

	_, privKey, err := signing.GenerateKeyPair()
	require.NoError(t, err)
	record := []byte("keystore:did:web:localhost#key-1")

	ciphertext, err := cipher.Encrypt(ctx, privKey, record)
	require.NoError(t, err)
	assert.NotEqual(t, privKey, ciphertext)

	plaintext, err := cipher.Decrypt(ctx, ciphertext, record)
	require.NoError(t, err)
	assert.Equal(t, privKey, plaintext)

	t.Run("nil ciphertext decrypts to nil", func(t *testing.T) {
		got, err := cipher.Decrypt(ctx, nil, record)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ciphertext is bound to its record", func(t *testing.T) {
		_, err := cipher.Decrypt(ctx, ciphertext, []byte("keystore:did:web:localhost#key-2"))
		assert.Error(t, err)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		other, err := util.GenerateSalt(chacha20poly1305.KeySize)
		require.NoError(t, err)
		_, err = NewKeyedCipher(other).Decrypt(ctx, ciphertext, record)
		assert.Error(t, err)
	})

	t.Run("resolver errors surface", func(t *testing.T) {
		failing := NewResolvingCipher(func(ctx context.Context) ([]byte, error) {
			return nil, errors.New("no key")
		})
		_, err := failing.Encrypt(ctx, privKey, record)
		assert.ErrorContains(t, err, "no key")
	})
}

func TestNewExternalCipher(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		cipher, err := NewExternalCipher(context.Background(), kmsConfig{})
		require.NoError(t, err)
		ciphertext, err := cipher.Encrypt(context.Background(), []byte("hello"), nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), ciphertext)
		plaintext, err := cipher.Decrypt(context.Background(), ciphertext, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), plaintext)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := NewExternalCipher(context.Background(), kmsConfig{uri: "vault://key"})
		assert.ErrorContains(t, err, "not supported")
	})
}
