package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/testutil"
)

func testServicesConfig() config.ServicesConfig {
	return config.ServicesConfig{
		StorageProvider: "bolt",
		KeyStoreConfig: config.KeyStoreServiceConfig{
			BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
			ServiceKeyPassword: "test-password",
		},
	}
}

func TestValidateServiceConfig(t *testing.T) {
	assert.NoError(t, validateServiceConfig(testServicesConfig()))

	unknown := testServicesConfig()
	unknown.StorageProvider = "cassandra"
	assert.ErrorContains(t, validateServiceConfig(unknown), "not available")

	noKeyStore := testServicesConfig()
	noKeyStore.KeyStoreConfig = config.KeyStoreServiceConfig{}
	assert.Error(t, validateServiceConfig(noKeyStore))

	noPassword := testServicesConfig()
	noPassword.KeyStoreConfig.ServiceKeyPassword = ""
	assert.Error(t, validateServiceConfig(noPassword))
}

func TestInstantiateServices(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		for _, encrypted := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s encrypted=%t", test.Name, encrypted), func(t *testing.T) {
				cfg := testServicesConfig()
				cfg.EncryptStorage = encrypted
				ssi, err := instantiateServices(context.Background(), cfg, test.ServiceStorage(t), clock.NewMock())
				require.NoError(t, err)

				services := ssi.GetServices()
				assert.Len(t, services, 10)
				seen := make(map[string]bool)
				for _, s := range services {
					assert.True(t, s.Status().IsReady(), s.Type())
					assert.False(t, seen[string(s.Type())], s.Type())
					seen[string(s.Type())] = true
				}

				r, err := ssi.Request.Create(context.Background(), request.CreateRequest{
					HolderDID:      "did:ethr:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23",
					CredentialType: msgvec.StudentID,
				})
				require.NoError(t, err)
				got, err := ssi.Request.Get(context.Background(), request.GetRequest{ID: r.ID})
				require.NoError(t, err)
				assert.Equal(t, r.HolderDID, got.HolderDID)
			})
		}
	}
}
