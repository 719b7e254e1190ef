package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	Bolt        Type = "bolt"
	Redis       Type = "redis"
	DatabaseSQL Type = "sql"
)

type OptionKey string

type Option struct {
	ID     OptionKey
	Option any
}

// Tx is the view of the store handed to a BusinessLogicFunc. Reads observe the transaction's own writes
// where the provider supports it, and nothing is persisted unless the function returns without error.
type Tx interface {
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Write(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// BusinessLogicFunc is a function that's executed atomically by ServiceStorage.Execute.
type BusinessLogicFunc func(ctx context.Context, tx Tx) (any, error)

// WatchKey identifies a record that an Execute call depends on. Providers with optimistic concurrency
// control use it to detect concurrent modification.
type WatchKey struct {
	Namespace string
	Key       string
}

// ServiceStorage describes the api for storage independent of DB providers
type ServiceStorage interface {
	Init(opts ...Option) error
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Exists(ctx context.Context, namespace, key string) (bool, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error)
	ReadAllKeys(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error

	// Execute runs businessLogicFunc inside a transaction. Either every write made through the Tx is
	// applied, or none is.
	Execute(ctx context.Context, businessLogicFunc BusinessLogicFunc, watchKeys []WatchKey) (any, error)
}

// availableStorages is filled by the providers' init functions.
var availableStorages = make(map[Type]ServiceStorage)

// RegisterStorage registers a storage implementation, to be used by NewStorage.
func RegisterStorage(storage ServiceStorage) error {
	dbType := storage.Type()
	if IsStorageAvailable(dbType) {
		return fmt.Errorf("storage already registered: %s", dbType)
	}
	availableStorages[dbType] = storage
	return nil
}

// NewStorage creates a new instance of the given storage type, initialized with the given options.
func NewStorage(storageType Type, opts ...Option) (ServiceStorage, error) {
	if !IsStorageAvailable(storageType) {
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
	storage, err := newInstance(storageType)
	if err != nil {
		return nil, err
	}
	if err = storage.Init(opts...); err != nil {
		return nil, errors.Wrapf(err, "initializing %s storage", storageType)
	}
	return storage, nil
}

func newInstance(storageType Type) (ServiceStorage, error) {
	switch storageType {
	case Bolt:
		return new(BoltDB), nil
	case Redis:
		return new(RedisDB), nil
	case DatabaseSQL:
		return new(SQLDB), nil
	default:
		logrus.Errorf("no constructor for storage type: %s", storageType)
		return nil, fmt.Errorf("no constructor for storage type: %s", storageType)
	}
}

func IsStorageAvailable(storage Type) bool {
	_, ok := availableStorages[storage]
	return ok
}

func AvailableStorages() []Type {
	types := make([]Type, 0, len(availableStorages))
	for t := range availableStorages {
		types = append(types, t)
	}
	return types
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, "-")
}

// Join combines a namespace and key into the flat key used by providers without native namespaces.
func Join(namespace, key string) string {
	return namespace + ":" + key
}
