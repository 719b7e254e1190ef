package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func init() {
	if err := RegisterStorage(new(RedisDB)); err != nil {
		panic(err)
	}
}

const (
	PONG               = "PONG"
	RedisScanBatchSize = 1000
	// RedisMaxTxRetries bounds how often an optimistic transaction is replayed after a watched key changed.
	RedisMaxTxRetries = 10

	RedisAddressOption OptionKey = "redis-address-option"
	PasswordOption     OptionKey = "storage-password-option"
)

type RedisDB struct {
	db *goredislib.Client
}

func (b *RedisDB) Init(opts ...Option) error {
	address, password, err := processRedisOptions(opts...)
	if err != nil {
		return err
	}
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     address,
		Password: password,
	})
	// commands show up as spans under the request that issued them
	if err = redisotel.InstrumentTracing(client); err != nil {
		return errors.Wrap(err, "instrumenting redis client")
	}
	b.db = client
	return nil
}

func processRedisOptions(opts ...Option) (address, password string, err error) {
	for _, opt := range opts {
		switch opt.ID {
		case RedisAddressOption:
			maybeAddress, ok := opt.Option.(string)
			if !ok || maybeAddress == "" {
				return "", "", errors.New("redis address must be a non-empty string")
			}
			address = maybeAddress
		case PasswordOption:
			maybePassword, ok := opt.Option.(string)
			if !ok {
				return "", "", errors.New("redis password must be a string")
			}
			password = maybePassword
		}
	}
	if address == "" {
		return "", "", errors.New("redis address option is required")
	}
	return address, password, nil
}

func (b *RedisDB) URI() string {
	return b.db.Options().Addr
}

func (b *RedisDB) IsOpen() bool {
	pong, err := b.db.Ping(context.Background()).Result()
	if err != nil {
		logrus.WithError(err).Error("pinging redis")
		return false
	}
	return pong == PONG
}

func (b *RedisDB) Type() Type {
	return Redis
}

func (b *RedisDB) Close() error {
	return b.db.Close()
}

func (b *RedisDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	// Zero expiration means the key has no expiration time.
	return b.db.Set(ctx, Join(namespace, key), value, 0).Err()
}

func (b *RedisDB) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}

	// MULTI/EXEC applies every queued command or none of them.
	_, err := b.db.TxPipelined(ctx, func(pipe goredislib.Pipeliner) error {
		for i := range namespaces {
			if err := pipe.Set(ctx, Join(namespaces[i], keys[i]), values[i], 0).Err(); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (b *RedisDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	return redisGet(ctx, b.db, Join(namespace, key))
}

type redisGetter interface {
	Get(ctx context.Context, key string) *goredislib.StringCmd
}

func redisGet(ctx context.Context, client redisGetter, key string) ([]byte, error) {
	res, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredislib.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (b *RedisDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	n, err := b.db.Exists(ctx, Join(namespace, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisDB) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	keys, err := b.scan(ctx, Join(namespace, prefix))
	if err != nil {
		return nil, errors.Wrap(err, "read all keys error")
	}
	return b.readAll(ctx, namespace, keys)
}

func (b *RedisDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return b.ReadPrefix(ctx, namespace, "")
}

func (b *RedisDB) readAll(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := b.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "getting multiple keys")
	}
	if len(keys) != len(values) {
		return nil, errors.New("key length does not match value length")
	}

	for i, val := range values {
		// a key may disappear between SCAN and MGET
		s, ok := val.(string)
		if !ok {
			continue
		}
		result[stripNamespace(namespace, keys[i])] = []byte(s)
	}
	return result, nil
}

func (b *RedisDB) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := b.scan(ctx, Join(namespace, ""))
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = stripNamespace(namespace, keys[i])
	}
	return keys, nil
}

// scan iterates over the keyspace in batches so a large namespace does not block the server.
func (b *RedisDB) scan(ctx context.Context, match string) ([]string, error) {
	var cursor uint64
	allKeys := make([]string, 0)
	for {
		keys, nextCursor, err := b.db.Scan(ctx, cursor, match+"*", RedisScanBatchSize).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scan error")
		}
		allKeys = append(allKeys, keys...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return allKeys, nil
}

func stripNamespace(namespace, key string) string {
	return strings.TrimPrefix(key, Join(namespace, ""))
}

func (b *RedisDB) Delete(ctx context.Context, namespace, key string) error {
	return b.db.Del(ctx, Join(namespace, key)).Err()
}

func (b *RedisDB) DeleteNamespace(ctx context.Context, namespace string) error {
	keys, err := b.scan(ctx, Join(namespace, ""))
	if err != nil {
		return errors.Wrap(err, "read all keys")
	}
	if len(keys) == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return b.db.Del(ctx, keys...).Err()
}

// redisTx buffers writes and deletes so they can be applied in one MULTI/EXEC block once the business
// logic has finished. Reads go through the watching connection and observe buffered changes first.
type redisTx struct {
	tx      *goredislib.Tx
	writes  map[string][]byte
	deletes map[string]struct{}
	order   []string
}

func newRedisTx(tx *goredislib.Tx) *redisTx {
	return &redisTx{
		tx:      tx,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (r *redisTx) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	k := Join(namespace, key)
	if _, deleted := r.deletes[k]; deleted {
		return nil, nil
	}
	if v, ok := r.writes[k]; ok {
		return v, nil
	}
	return redisGet(ctx, r.tx, k)
}

func (r *redisTx) Write(_ context.Context, namespace, key string, value []byte) error {
	k := Join(namespace, key)
	delete(r.deletes, k)
	r.writes[k] = value
	r.order = append(r.order, k)
	return nil
}

func (r *redisTx) Delete(_ context.Context, namespace, key string) error {
	k := Join(namespace, key)
	delete(r.writes, k)
	r.deletes[k] = struct{}{}
	r.order = append(r.order, k)
	return nil
}

func (r *redisTx) commit(ctx context.Context) error {
	_, err := r.tx.TxPipelined(ctx, func(pipe goredislib.Pipeliner) error {
		seen := make(map[string]struct{}, len(r.order))
		for i := len(r.order) - 1; i >= 0; i-- {
			k := r.order[i]
			if _, done := seen[k]; done {
				continue
			}
			seen[k] = struct{}{}
			if v, ok := r.writes[k]; ok {
				pipe.Set(ctx, k, v, 0)
			} else {
				pipe.Del(ctx, k)
			}
		}
		return nil
	})
	return err
}

// Execute runs businessLogicFunc under WATCH on the given keys. If another client modifies a watched key
// before EXEC, the transaction is discarded and the business logic is replayed.
func (b *RedisDB) Execute(ctx context.Context, businessLogicFunc BusinessLogicFunc, watchKeys []WatchKey) (any, error) {
	keys := make([]string, 0, len(watchKeys))
	for _, wk := range watchKeys {
		keys = append(keys, Join(wk.Namespace, wk.Key))
	}

	var result any
	txFunc := func(tx *goredislib.Tx) error {
		bTx := newRedisTx(tx)
		var err error
		result, err = businessLogicFunc(ctx, bTx)
		if err != nil {
			return err
		}
		return bTx.commit(ctx)
	}

	for i := 0; i < RedisMaxTxRetries; i++ {
		err := b.db.Watch(ctx, txFunc, keys...)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, goredislib.TxFailedErr) {
			logrus.Debugf("watched keys changed, retrying transaction: attempt %d", i+1)
			continue
		}
		return nil, err
	}
	return nil, errors.Errorf("transaction failed after %d attempts", RedisMaxTxRetries)
}

var _ Tx = (*redisTx)(nil)
var _ ServiceStorage = (*RedisDB)(nil)
