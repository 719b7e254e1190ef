package keystore

import (
	"context"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
	"github.com/tbd54566975/ssi-vc-service/pkg/encryption"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// StoredKey is an issuer key pair plus the secret used for fallback signatures. It is always encrypted at rest.
type StoredKey struct {
	ID                   string `json:"id"`
	Controller           string `json:"controller"`
	KeyType              string `json:"keyType"`
	PublicKeyBase58      string `json:"publicKey"`
	PrivateKeyBase58     string `json:"privateKey"`
	FallbackSecretBase58 string `json:"fallbackSecret"`
	CreatedAt            string `json:"createdAt"`
}

// ServiceKey holds the salt the service key is derived with. The key itself is never persisted.
type ServiceKey struct {
	Base58Salt string `json:"salt"`
}

const (
	namespace = "keystore"
	skKey     = "ssi-vc-service-key"
)

type Storage struct {
	db     storage.ServiceStorage
	cipher encryption.Cipher
}

func NewKeyStoreStorage(db storage.ServiceStorage, cipher encryption.Cipher) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	if cipher == nil {
		return nil, errors.New("cipher reference is nil")
	}
	return &Storage{db: db, cipher: cipher}, nil
}

// NewServiceEncryption picks how keys are encrypted at rest. With a KMS master key configured, Tink envelope
// encryption is used. Otherwise keys are sealed with XChaCha20-Poly1305 under a key derived from the configured
// password and a salt that is generated once and stored alongside the keys.
func NewServiceEncryption(ctx context.Context, db storage.ServiceStorage, cfg *config.KeyStoreServiceConfig) (encryption.Cipher, error) {
	if cfg.EncryptionEnabled() {
		return encryption.NewExternalCipher(ctx, cfg)
	}
	serviceKey, err := loadOrCreateServiceKey(ctx, db, cfg.ServiceKeyPassword)
	if err != nil {
		return nil, err
	}
	return encryption.NewKeyedCipher(serviceKey), nil
}

func loadOrCreateServiceKey(ctx context.Context, db storage.ServiceStorage, password string) ([]byte, error) {
	if password == "" {
		return nil, sdkutil.LoggingNewError("service key password cannot be empty")
	}

	storedBytes, err := db.Read(ctx, namespace, skKey)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not get service key")
	}

	var stored ServiceKey
	if storedBytes == nil {
		salt, err := util.GenerateSalt(util.Argon2SaltSize)
		if err != nil {
			return nil, errors.Wrap(err, "generating salt for service key")
		}
		stored.Base58Salt = base58.Encode(salt)
		skBytes, err := json.Marshal(stored)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not marshal service key")
		}
		if err = db.Write(ctx, namespace, skKey, skBytes); err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not store service key")
		}
	} else if err = json.Unmarshal(storedBytes, &stored); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not unmarshal service key")
	}

	salt, err := base58.Decode(stored.Base58Salt)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode service key salt")
	}
	return util.Argon2KeyGen(password, salt, chacha20poly1305.KeySize)
}

func (kss *Storage) StoreKey(ctx context.Context, key StoredKey) error {
	id := key.ID
	if id == "" {
		return sdkutil.LoggingNewError("could not store key without an ID")
	}

	keyBytes, err := json.Marshal(key)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not marshal key: %s", id)
	}

	encryptedKey, err := kss.cipher.Encrypt(ctx, keyBytes, []byte(storage.Join(namespace, id)))
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not encrypt key: %s", id)
	}
	return kss.db.Write(ctx, namespace, id, encryptedKey)
}

func (kss *Storage) GetKey(ctx context.Context, id string) (*StoredKey, error) {
	storedKeyBytes, err := kss.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get key: %s", id)
	}
	if len(storedKeyBytes) == 0 {
		return nil, framework.NewErrorf(framework.CodeKeyNotFound, "key<%s>", id)
	}

	decryptedKey, err := kss.cipher.Decrypt(ctx, storedKeyBytes, []byte(storage.Join(namespace, id)))
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not decrypt key: %s", id)
	}

	var stored StoredKey
	if err = json.Unmarshal(decryptedKey, &stored); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not unmarshal stored key: %s", id)
	}
	return &stored, nil
}
