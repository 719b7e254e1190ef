package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/encryption"
)

// EncryptedWrapper encrypts every value before it reaches the wrapped ServiceStorage. Keys are stored in the
// clear so namespace scans keep working. Each ciphertext is bound to its namespace and key, so a value copied
// under another key fails to decrypt.
type EncryptedWrapper struct {
	s      ServiceStorage
	cipher encryption.Cipher
}

func NewEncryptedWrapper(s ServiceStorage, cipher encryption.Cipher) *EncryptedWrapper {
	return &EncryptedWrapper{s: s, cipher: cipher}
}

func recordContext(namespace, key string) []byte {
	return []byte(Join(namespace, key))
}

func (e EncryptedWrapper) seal(ctx context.Context, namespace, key string, value []byte) ([]byte, error) {
	sealed, err := e.cipher.Encrypt(ctx, value, recordContext(namespace, key))
	if err != nil {
		return nil, errors.Wrapf(err, "encrypting %s", Join(namespace, key))
	}
	return sealed, nil
}

func (e EncryptedWrapper) open(ctx context.Context, namespace, key string, sealed []byte) ([]byte, error) {
	if sealed == nil {
		return nil, nil
	}
	value, err := e.cipher.Decrypt(ctx, sealed, recordContext(namespace, key))
	if err != nil {
		return nil, errors.Wrapf(err, "decrypting %s", Join(namespace, key))
	}
	return value, nil
}

func (e EncryptedWrapper) openAll(ctx context.Context, namespace string, sealed map[string][]byte) (map[string][]byte, error) {
	values := make(map[string][]byte, len(sealed))
	for key, b := range sealed {
		value, err := e.open(ctx, namespace, key, b)
		if err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, nil
}

func (e EncryptedWrapper) Init(opts ...Option) error {
	return e.s.Init(opts...)
}

func (e EncryptedWrapper) Type() Type {
	return e.s.Type()
}

func (e EncryptedWrapper) URI() string {
	return e.s.URI()
}

func (e EncryptedWrapper) IsOpen() bool {
	return e.s.IsOpen()
}

func (e EncryptedWrapper) Close() error {
	return e.s.Close()
}

func (e EncryptedWrapper) Write(ctx context.Context, namespace, key string, value []byte) error {
	sealed, err := e.seal(ctx, namespace, key, value)
	if err != nil {
		return err
	}
	return e.s.Write(ctx, namespace, key, sealed)
}

func (e EncryptedWrapper) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(keys) != len(values) {
		return errors.New("namespaces, keys, and values must be the same length")
	}
	sealedValues := make([][]byte, 0, len(values))
	for i, value := range values {
		sealed, err := e.seal(ctx, namespaces[i], keys[i], value)
		if err != nil {
			return err
		}
		sealedValues = append(sealedValues, sealed)
	}
	return e.s.WriteMany(ctx, namespaces, keys, sealedValues)
}

func (e EncryptedWrapper) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	sealed, err := e.s.Read(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return e.open(ctx, namespace, key, sealed)
}

func (e EncryptedWrapper) Exists(ctx context.Context, namespace, key string) (bool, error) {
	return e.s.Exists(ctx, namespace, key)
}

func (e EncryptedWrapper) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	sealed, err := e.s.ReadAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return e.openAll(ctx, namespace, sealed)
}

func (e EncryptedWrapper) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	sealed, err := e.s.ReadPrefix(ctx, namespace, prefix)
	if err != nil {
		return nil, err
	}
	return e.openAll(ctx, namespace, sealed)
}

func (e EncryptedWrapper) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	return e.s.ReadAllKeys(ctx, namespace)
}

func (e EncryptedWrapper) Delete(ctx context.Context, namespace, key string) error {
	return e.s.Delete(ctx, namespace, key)
}

func (e EncryptedWrapper) DeleteNamespace(ctx context.Context, namespace string) error {
	return e.s.DeleteNamespace(ctx, namespace)
}

// Execute runs businessLogicFunc against a Tx that seals and opens values the same way the wrapper does.
func (e EncryptedWrapper) Execute(ctx context.Context, businessLogicFunc BusinessLogicFunc, watchKeys []WatchKey) (any, error) {
	return e.s.Execute(ctx, func(ctx context.Context, tx Tx) (any, error) {
		return businessLogicFunc(ctx, encryptedTx{tx: tx, wrapper: e})
	}, watchKeys)
}

type encryptedTx struct {
	tx      Tx
	wrapper EncryptedWrapper
}

func (m encryptedTx) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	sealed, err := m.tx.Read(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return m.wrapper.open(ctx, namespace, key, sealed)
}

func (m encryptedTx) Write(ctx context.Context, namespace, key string, value []byte) error {
	sealed, err := m.wrapper.seal(ctx, namespace, key, value)
	if err != nil {
		return err
	}
	return m.tx.Write(ctx, namespace, key, sealed)
}

func (m encryptedTx) Delete(ctx context.Context, namespace, key string) error {
	return m.tx.Delete(ctx, namespace, key)
}

var _ ServiceStorage = (*EncryptedWrapper)(nil)
