package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// Argon2SaltSize is the recommended argon2 salt size.
	// https://tools.ietf.org/id/draft-irtf-cfrg-argon2-05.html#rfc.section.3.1
	Argon2SaltSize = 16

	argon2Time   = 1
	argon2Memory = 64 * 1024
	threads      = 4
)

// XChaCha20Poly1305Encrypt seals data under a 32 byte key, authenticating aad alongside it. The random nonce is
// prepended to the output.
func XChaCha20Poly1305Encrypt(key, data, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead with provided key")
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generating nonce for encryption")
	}
	return aead.Seal(nonce, nonce, data, aad), nil
}

// XChaCha20Poly1305Decrypt opens data produced by XChaCha20Poly1305Encrypt with the same aad.
func XChaCha20Poly1305Decrypt(key, data, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead with provided key")
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short; could not decrypt data")
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	decrypted, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting data")
	}
	return decrypted, nil
}

// Argon2KeyGen derives a key of keyLen bytes from a password using Argon2id.
func Argon2KeyGen(password string, salt []byte, keyLen int) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}
	if keyLen <= 0 {
		return nil, errors.New("invalid key length")
	}
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, threads, uint32(keyLen)), nil
}

// GenerateSalt returns size random bytes.
func GenerateSalt(size int) ([]byte, error) {
	return RandomBytes(size)
}

// RandomBytes reads size bytes from the system CSPRNG.
func RandomBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("invalid size")
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "reading random bytes")
	}
	return b, nil
}

// RandomHex returns size random bytes, lowercase hex encoded.
func RandomHex(size int) (string, error) {
	b, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
