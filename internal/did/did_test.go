package did

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressFromDID(t *testing.T) {
	tests := []struct {
		name    string
		did     string
		address string
		wantErr bool
	}{
		{name: "ethr", did: "did:ethr:0x2C7536E3605D9C16a7a3D7b1898e529396a65c23", address: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"},
		{name: "ethr with network", did: "did:ethr:sepolia:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", address: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"},
		{name: "pkh", did: "did:pkh:eip155:1:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", address: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"},
		{name: "unknown method", did: "did:x:0xABCDEFabcdef0123456789012345678901234567", address: "0xabcdefabcdef0123456789012345678901234567"},
		{name: "not a did", did: "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", wantErr: true},
		{name: "no address", did: "did:web:example.com", wantErr: true},
		{name: "short address", did: "did:ethr:0x2c7536e3", wantErr: true},
		{name: "bad hex", did: "did:ethr:0xzz7536e3605d9c16a7a3d7b1898e529396a65c23", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddressFromDID(tt.did)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.address, got)
		})
	}
}

func TestMethod(t *testing.T) {
	method, err := Method("did:ethr:0xabc")
	assert.NoError(t, err)
	assert.Equal(t, "ethr", string(method))

	_, err = Method("did:ethr")
	assert.Error(t, err)
	_, err = Method("uri:ethr:0xabc")
	assert.Error(t, err)
	_, err = Method("did::0xabc")
	assert.Error(t, err)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABC", "0xabc"))
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("0xabc", "0xabd"))
}

func TestPublicKeyToAddress(t *testing.T) {
	privKeyBytes, err := hex.DecodeString("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	privKey := secp256k1.PrivKeyFromBytes(privKeyBytes)
	assert.Equal(t, "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", PublicKeyToAddress(privKey.PubKey()))
}

func TestRecoverAddress(t *testing.T) {
	privKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	address := PublicKeyToAddress(privKey.PubKey())
	message := "SSI VC Service DID Ownership Proof\n\nNonce: abc\nRequest ID: r-1"

	t.Run("round trip", func(t *testing.T) {
		sig := SignPersonalMessage(privKey, message)
		got, err := RecoverAddress(message, sig)
		assert.NoError(t, err)
		assert.Equal(t, address, got)
	})

	t.Run("v as 0 or 1 and no 0x prefix", func(t *testing.T) {
		sig := SignPersonalMessage(privKey, message)
		raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
		require.NoError(t, err)
		raw[64] -= 27
		got, err := RecoverAddress(message, hex.EncodeToString(raw))
		assert.NoError(t, err)
		assert.Equal(t, address, got)
	})

	t.Run("different message recovers a different address", func(t *testing.T) {
		sig := SignPersonalMessage(privKey, message)
		got, err := RecoverAddress(message+" ", sig)
		if err == nil {
			assert.NotEqual(t, address, got)
		}
	})

	t.Run("malformed signatures", func(t *testing.T) {
		_, err := RecoverAddress(message, "0x1234")
		assert.Error(t, err)

		_, err = RecoverAddress(message, "not-hex")
		assert.Error(t, err)

		bad := make([]byte, 65)
		bad[64] = 5
		_, err = RecoverAddress(message, hex.EncodeToString(bad))
		assert.Error(t, err)
	})
}
