package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

func init() {
	if err := RegisterStorage(new(BoltDB)); err != nil {
		panic(err)
	}
}

const (
	DBFilePrefix = "ssi-vc-service"

	BoltDBFilePathOption OptionKey = "bolt-db-filepath-option"
)

type BoltDB struct {
	db *bolt.DB
}

// Init instantiates a file-based storage instance for Bolt https://github.com/etcd-io/bbolt
func (b *BoltDB) Init(opts ...Option) error {
	if b.db != nil {
		return nil
	}
	filePath := DBFilePrefix + ".db"
	for _, opt := range opts {
		if opt.ID != BoltDBFilePathOption {
			continue
		}
		path, ok := opt.Option.(string)
		if !ok {
			return errors.New("bolt db file path option must be a string")
		}
		if path != "" {
			filePath = path
		}
	}
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "opening bolt db at %s", filePath)
	}
	b.db = db
	return nil
}

func (b *BoltDB) Type() Type {
	return Bolt
}

func (b *BoltDB) URI() string {
	return b.db.Path()
}

func (b *BoltDB) IsOpen() bool {
	return b.db != nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) Write(_ context.Context, namespace string, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return boltPut(tx, namespace, key, value)
	})
}

func boltPut(tx *bolt.Tx, namespace, key string, value []byte) error {
	bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), value)
}

func (b *BoltDB) WriteMany(_ context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		for i := range namespaces {
			if err := boltPut(tx, namespaces[i], keys[i], values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	var result []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		result = boltGet(tx, namespace, key)
		return nil
	})
	return result, err
}

func boltGet(tx *bolt.Tx, namespace, key string) []byte {
	bucket := tx.Bucket([]byte(namespace))
	if bucket == nil {
		logrus.Tracef("namespace<%s> does not exist", namespace)
		return nil
	}
	v := bucket.Get([]byte(key))
	if v == nil {
		return nil
	}
	// values returned by bolt are only valid for the life of the transaction
	return append([]byte(nil), v...)
}

func (b *BoltDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	v, err := b.Read(ctx, namespace, key)
	return v != nil, err
}

func (b *BoltDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return b.ReadPrefix(ctx, namespace, "")
}

func (b *BoltDB) ReadPrefix(_ context.Context, namespace, prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			logrus.Tracef("namespace<%s> does not exist", namespace)
			return nil
		}
		cursor := bucket.Cursor()
		p := []byte(prefix)
		for k, v := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cursor.Next() {
			result[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	return result, err
}

func (b *BoltDB) ReadAllKeys(_ context.Context, namespace string) ([]string, error) {
	var result []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			result = append(result, string(k))
			return nil
		})
	})
	return result, err
}

func (b *BoltDB) Delete(_ context.Context, namespace, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return boltDelete(tx, namespace, key)
	})
}

func boltDelete(tx *bolt.Tx, namespace, key string) error {
	bucket := tx.Bucket([]byte(namespace))
	if bucket == nil {
		return errors.Errorf("namespace<%s> does not exist", namespace)
	}
	return bucket.Delete([]byte(key))
}

func (b *BoltDB) DeleteNamespace(_ context.Context, namespace string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(namespace)); err != nil {
			return errors.Wrapf(err, "could not delete namespace<%s>", namespace)
		}
		return nil
	})
}

type boltTx struct {
	tx *bolt.Tx
}

func (b boltTx) Read(_ context.Context, namespace, key string) ([]byte, error) {
	return boltGet(b.tx, namespace, key), nil
}

func (b boltTx) Write(_ context.Context, namespace, key string, value []byte) error {
	return boltPut(b.tx, namespace, key, value)
}

func (b boltTx) Delete(_ context.Context, namespace, key string) error {
	return boltDelete(b.tx, namespace, key)
}

// Execute runs the business logic inside a single bolt read-write transaction. Bolt allows one writer at
// a time, so watch keys are not needed.
func (b *BoltDB) Execute(ctx context.Context, businessLogicFunc BusinessLogicFunc, _ []WatchKey) (any, error) {
	var result any
	err := b.db.Update(func(tx *bolt.Tx) error {
		var err error
		result, err = businessLogicFunc(ctx, boltTx{tx: tx})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ Tx = (*boltTx)(nil)
var _ ServiceStorage = (*BoltDB)(nil)
