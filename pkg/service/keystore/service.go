package keystore

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/signing"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// KeyTypeBBS is the key type of every issuer key held by the keystore.
const KeyTypeBBS = "BLS12381G2"

type Service struct {
	storage *Storage
	config  config.KeyStoreServiceConfig

	// serialises get-or-create of issuer keys
	mu sync.Mutex
}

func (s *Service) Type() framework.Type {
	return framework.KeyStore
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.storage == nil {
		ae.AppendString("no storage configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("key store service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.KeyStoreServiceConfig {
	return s.config
}

func NewKeyStoreService(cfg config.KeyStoreServiceConfig, s storage.ServiceStorage) (*Service, error) {
	cipher, err := NewServiceEncryption(context.Background(), s, &cfg)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "creating keystore encryption")
	}
	keyStoreStorage, err := NewKeyStoreStorage(s, cipher)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "instantiating storage for the keystore service")
	}

	service := Service{
		storage: keyStoreStorage,
		config:  cfg,
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// GenerateIssuerKey creates a fresh BBS+ key pair and fallback secret for controller, replacing any existing
// key under the same id.
func (s *Service) GenerateIssuerKey(ctx context.Context, request GenerateIssuerKeyRequest) (*GetKeyDetailsResponse, error) {
	logrus.Debugf("generating issuer key for: %s", request.Controller)

	if request.Controller == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "controller")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.generate(ctx, request.Controller)
	if err != nil {
		return nil, err
	}
	return details(stored), nil
}

// EnsureIssuerKey returns the issuer key for controller, creating one on first use.
func (s *Service) EnsureIssuerKey(ctx context.Context, controller string) (*GetKeyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := credential.VerificationMethod(controller)
	stored, err := s.storage.GetKey(ctx, id)
	if errors.Is(err, framework.ErrKeyNotFound) {
		logrus.Infof("no issuer key for %s, generating one", controller)
		stored, err = s.generate(ctx, controller)
	}
	if err != nil {
		return nil, err
	}
	return decodeKey(stored)
}

func (s *Service) generate(ctx context.Context, controller string) (*StoredKey, error) {
	pub, priv, err := signing.GenerateKeyPair()
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not generate issuer key pair")
	}
	secret, err := util.RandomBytes(signing.FallbackSecretSize)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not generate fallback secret")
	}

	key := StoredKey{
		ID:                   credential.VerificationMethod(controller),
		Controller:           controller,
		KeyType:              KeyTypeBBS,
		PublicKeyBase58:      base58.Encode(pub),
		PrivateKeyBase58:     base58.Encode(priv),
		FallbackSecretBase58: base58.Encode(secret),
		CreatedAt:            time.Now().UTC().Format(time.RFC3339),
	}
	if err = s.storage.StoreKey(ctx, key); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "storing key: %s", key.ID)
	}
	return &key, nil
}

func (s *Service) GetKey(ctx context.Context, request GetKeyRequest) (*GetKeyResponse, error) {
	logrus.Debugf("getting key: %s", request.ID)

	stored, err := s.storage.GetKey(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return decodeKey(stored)
}

func (s *Service) GetKeyDetails(ctx context.Context, request GetKeyDetailsRequest) (*GetKeyDetailsResponse, error) {
	logrus.Debugf("getting key details: %s", request.ID)

	stored, err := s.storage.GetKey(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	return details(stored), nil
}

// GetPublicKey returns the marshalled BBS+ public key for the given key id.
func (s *Service) GetPublicKey(ctx context.Context, id string) ([]byte, error) {
	key, err := s.GetKey(ctx, GetKeyRequest{ID: id})
	if err != nil {
		return nil, err
	}
	return key.PublicKey, nil
}

// HMACSecret returns the fallback signing secret for the given key id.
func (s *Service) HMACSecret(ctx context.Context, id string) ([]byte, error) {
	key, err := s.GetKey(ctx, GetKeyRequest{ID: id})
	if err != nil {
		return nil, err
	}
	return key.FallbackSecret, nil
}

func details(stored *StoredKey) *GetKeyDetailsResponse {
	return &GetKeyDetailsResponse{
		ID:              stored.ID,
		Controller:      stored.Controller,
		KeyType:         stored.KeyType,
		PublicKeyBase58: stored.PublicKeyBase58,
		CreatedAt:       stored.CreatedAt,
	}
}

func decodeKey(stored *StoredKey) (*GetKeyResponse, error) {
	pub, err := base58.Decode(stored.PublicKeyBase58)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not decode public key")
	}
	priv, err := base58.Decode(stored.PrivateKeyBase58)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not decode private key")
	}
	secret, err := base58.Decode(stored.FallbackSecretBase58)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not decode fallback secret")
	}
	return &GetKeyResponse{
		ID:             stored.ID,
		Controller:     stored.Controller,
		KeyType:        stored.KeyType,
		PublicKey:      pub,
		PrivateKey:     priv,
		FallbackSecret: secret,
		CreatedAt:      stored.CreatedAt,
	}, nil
}
