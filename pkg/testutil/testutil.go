// Package testutil holds the storage matrix every service test runs against.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/pkg/encryption"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// TestDatabases lists the providers service tests run against. Each constructor registers its own cleanup.
var TestDatabases = []struct {
	Name           string
	ServiceStorage func(t *testing.T) storage.ServiceStorage
}{
	{
		Name:           "Test with Bolt DB",
		ServiceStorage: setupBoltTestDB,
	},
	{
		Name:           "Test with Redis DB",
		ServiceStorage: setupRedisTestDB,
	},
	{
		Name:           "Test with encrypted Bolt DB",
		ServiceStorage: setupEncryptedBoltTestDB,
	},
}

func setupBoltTestDB(t *testing.T) storage.ServiceStorage {
	s, err := storage.NewStorage(storage.Bolt, storage.Option{
		ID:     storage.BoltDBFilePathOption,
		Option: filepath.Join(t.TempDir(), "ssi-vc-service.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func setupRedisTestDB(t *testing.T) storage.ServiceStorage {
	server := miniredis.RunT(t)
	s, err := storage.NewStorage(storage.Redis,
		storage.Option{ID: storage.RedisAddressOption, Option: server.Addr()},
		storage.Option{ID: storage.PasswordOption, Option: "test-password"},
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func setupEncryptedBoltTestDB(t *testing.T) storage.ServiceStorage {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return storage.NewEncryptedWrapper(setupBoltTestDB(t), encryption.NewKeyedCipher(key))
}
