package blob

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

const namespace = "blob"

// StorageStore keeps blobs in the service's own database.
type StorageStore struct {
	db storage.ServiceStorage
}

func NewStorageStore(db storage.ServiceStorage) (*StorageStore, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	return &StorageStore{db: db}, nil
}

func (s *StorageStore) Put(ctx context.Context, ref string, data []byte) error {
	return s.db.Write(ctx, namespace, ref, data)
}

func (s *StorageStore) Get(ctx context.Context, ref string) ([]byte, error) {
	data, err := s.db.Read(ctx, namespace, ref)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}
