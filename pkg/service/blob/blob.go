// Package blob is the content-addressed store that credentials and their artifacts are written to. A reference
// is the multibase (base58btc) encoding of the sha-256 digest of the stored bytes, so storing the same bytes
// twice yields the same reference.
package blob

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// ErrNotFound is returned by a Store when nothing is stored under a reference.
var ErrNotFound = errors.New("blob not found")

// Store is a provider of raw blob storage. Implementations must return ErrNotFound for unknown keys.
type Store interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
}

type Service struct {
	store   Store
	timeout time.Duration
	config  config.BlobServiceConfig
}

func (s Service) Type() framework.Type {
	return framework.Blob
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.store == nil {
		ae.AppendString("no blob store configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("blob service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s Service) Config() config.BlobServiceConfig {
	return s.config
}

// NewBlobService builds the provider named in the config. The storage provider keeps blobs in db.
func NewBlobService(ctx context.Context, cfg config.BlobServiceConfig, db storage.ServiceStorage) (*Service, error) {
	var store Store
	switch cfg.Provider {
	case "", config.StorageBlobProvider:
		s, err := NewStorageStore(db)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate storage blob store")
		}
		store = s
	case config.S3BlobProvider:
		s, err := NewS3StoreFromConfig(ctx, cfg)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate s3 blob store")
		}
		store = s
	default:
		return nil, sdkutil.LoggingNewErrorf("unsupported blob provider: %s", cfg.Provider)
	}
	return NewService(cfg, store), nil
}

// NewService wraps an existing store.
func NewService(cfg config.BlobServiceConfig, store Store) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultExternalTimeout
	}
	return &Service{store: store, timeout: timeout, config: cfg}
}

// Ref computes the reference data is stored under.
func Ref(data []byte) string {
	digest := sha256.Sum256(data)
	// base58btc is always a valid encoding
	ref, _ := multibase.Encode(multibase.Base58BTC, digest[:])
	return ref
}

// ValidateRef reports whether ref could have been produced by Ref.
func ValidateRef(ref string) error {
	enc, digest, err := multibase.Decode(ref)
	if err != nil {
		return errors.Wrap(err, "decoding reference")
	}
	if enc != multibase.Base58BTC || len(digest) != sha256.Size {
		return errors.Errorf("reference<%s> is not a base58btc sha-256 digest", ref)
	}
	return nil
}

// Put stores data and returns its reference.
func (s Service) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	logrus.Debugf("storing blob: %s", ref)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Put(ctx, ref, data); err != nil {
		return "", framework.WrapError(framework.CodeBlobStoreFailure, err, "storing blob")
	}
	return ref, nil
}

// Get fetches the bytes stored under ref, checking they still hash to it.
func (s Service) Get(ctx context.Context, ref string) ([]byte, error) {
	logrus.Debugf("getting blob: %s", ref)

	if err := ValidateRef(ref); err != nil {
		return nil, framework.WrapError(framework.CodeBlobNotFound, err, ref)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, framework.NewErrorf(framework.CodeBlobNotFound, "blob<%s>", ref)
		}
		return nil, framework.WrapError(framework.CodeBlobStoreFailure, err, "getting blob")
	}
	if Ref(data) != ref {
		return nil, framework.NewErrorf(framework.CodeBlobStoreFailure, "blob<%s> content does not match its reference", ref)
	}
	return data, nil
}
