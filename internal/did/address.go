package did

import (
	"encoding/hex"
	"strings"

	didsdk "github.com/TBD54566975/ssi-sdk/did"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/internal/util"
)

const (
	addressHexLength = 40
	addressPrefix    = "0x"
)

// AddressFromDID returns the chain address embedded in a DID, lower-cased with a 0x prefix. Supported
// forms include did:ethr:0x..., did:ethr:<network>:0x..., did:pkh:eip155:<chain>:0x... and any DID whose
// final segment is a 20 byte hex address.
func AddressFromDID(did string) (string, error) {
	if _, err := Method(did); err != nil {
		return "", err
	}
	split := strings.Split(did, ":")
	last := split[len(split)-1]
	if !IsAddress(last) {
		return "", errors.Errorf("did<%s> does not embed a chain address", util.SanitizeLog(did))
	}
	return NormalizeAddress(last), nil
}

// Method returns the method segment of a DID, e.g. "ethr" for did:ethr:0x...
func Method(did string) (didsdk.Method, error) {
	split := strings.Split(did, ":")
	if len(split) < 3 {
		return "", errors.New("malformed did: did has fewer than three parts")
	}
	if split[0] != "did" {
		return "", errors.New("malformed did: did must start with `did`")
	}
	if split[1] == "" {
		return "", errors.New("malformed did: empty method")
	}
	return didsdk.Method(split[1]), nil
}

// IsAddress reports whether s is a 0x-prefixed 20 byte hex string. Checksum casing is not enforced.
func IsAddress(s string) bool {
	if len(s) != len(addressPrefix)+addressHexLength || !strings.HasPrefix(strings.ToLower(s), addressPrefix) {
		return false
	}
	_, err := hex.DecodeString(s[len(addressPrefix):])
	return err == nil
}

// NormalizeAddress lower-cases an address so comparisons ignore EIP-55 checksum casing.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && NormalizeAddress(a) == NormalizeAddress(b)
}
