// Package encryption seals values at rest, either under a locally derived key or through an external KMS.
package encryption

import (
	"context"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/core/registry"
	"github.com/google/tink/go/integration/awskms"
	"github.com/google/tink/go/integration/gcpkms"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/tbd54566975/ssi-vc-service/internal/util"
)

// Encrypter seals plaintext. contextData is authenticated with the ciphertext and must be presented again to
// decrypt it.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext, contextData []byte) ([]byte, error)
}

// Decrypter opens ciphertext sealed with the same contextData.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext, contextData []byte) ([]byte, error)
}

// Cipher is a symmetric Encrypter and Decrypter pair.
type Cipher interface {
	Encrypter
	Decrypter
}

// KeyResolver returns the symmetric key to use for a single operation.
type KeyResolver func(ctx context.Context) ([]byte, error)

type keyedCipher struct {
	resolve KeyResolver
}

// NewKeyedCipher seals with XChaCha20-Poly1305 under a fixed 32 byte key.
func NewKeyedCipher(key []byte) Cipher {
	return NewResolvingCipher(func(context.Context) ([]byte, error) {
		return key, nil
	})
}

// NewResolvingCipher seals with XChaCha20-Poly1305 under whatever key resolver returns at call time.
func NewResolvingCipher(resolver KeyResolver) Cipher {
	return keyedCipher{resolve: resolver}
}

func (k keyedCipher) Encrypt(ctx context.Context, plaintext, contextData []byte) ([]byte, error) {
	key, err := k.resolve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	ciphertext, err := util.XChaCha20Poly1305Encrypt(key, plaintext, contextData)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not encrypt data")
	}
	return ciphertext, nil
}

func (k keyedCipher) Decrypt(ctx context.Context, ciphertext, contextData []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}
	key, err := k.resolve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving key")
	}
	plaintext, err := util.XChaCha20Poly1305Decrypt(key, ciphertext, contextData)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not decrypt data")
	}
	return plaintext, nil
}

type noopCipher struct{}

func (noopCipher) Encrypt(_ context.Context, plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (noopCipher) Decrypt(_ context.Context, ciphertext, _ []byte) ([]byte, error) {
	return ciphertext, nil
}

// Noop passes values through untouched.
var Noop Cipher = noopCipher{}

// tinkCipher adapts a Tink AEAD primitive, which has no notion of a context.
type tinkCipher struct {
	primitive tink.AEAD
}

func (t tinkCipher) Encrypt(_ context.Context, plaintext, contextData []byte) ([]byte, error) {
	return t.primitive.Encrypt(plaintext, contextData)
}

func (t tinkCipher) Decrypt(_ context.Context, ciphertext, contextData []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}
	return t.primitive.Decrypt(ciphertext, contextData)
}

const (
	gcpKMSScheme = "gcp-kms"
	awsKMSScheme = "aws-kms"
)

// ExternalEncryptionConfig selects a KMS master key. Envelope encryption is used when a master key uri is set.
type ExternalEncryptionConfig interface {
	GetMasterKeyURI() string
	GetKMSCredentialsPath() string
	EncryptionEnabled() bool
}

// NewExternalCipher returns a Tink envelope cipher whose data keys are wrapped by the configured KMS master key,
// or Noop when no master key is configured.
func NewExternalCipher(ctx context.Context, cfg ExternalEncryptionConfig) (Cipher, error) {
	if !cfg.EncryptionEnabled() {
		return Noop, nil
	}
	uri := cfg.GetMasterKeyURI()
	client, err := newKMSClient(ctx, uri, cfg.GetKMSCredentialsPath())
	if err != nil {
		return nil, err
	}
	registry.RegisterKMSClient(client)

	kh, err := keyset.NewHandle(aead.KMSEnvelopeAEADKeyTemplate(uri, aead.AES256GCMKeyTemplate()))
	if err != nil {
		return nil, errors.Wrap(err, "creating keyset handle")
	}
	primitive, err := aead.New(kh)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead from key handle")
	}
	return tinkCipher{primitive: primitive}, nil
}

func newKMSClient(ctx context.Context, uri, credentialsPath string) (registry.KMSClient, error) {
	switch {
	case strings.HasPrefix(uri, gcpKMSScheme):
		client, err := gcpkms.NewClientWithOptions(ctx, uri, option.WithCredentialsFile(credentialsPath))
		return client, errors.Wrap(err, "creating gcp kms client")
	case strings.HasPrefix(uri, awsKMSScheme):
		client, err := awskms.NewClientWithCredentials(uri, credentialsPath)
		return client, errors.Wrap(err, "creating aws kms client")
	default:
		return nil, errors.Errorf("master_key_uri value %q is not supported", uri)
	}
}
