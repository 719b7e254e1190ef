package router

import (
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	IDParam  = "id"
	RefParam = "ref"

	HolderQuery = "holder"
	StatusQuery = "status"
)

// decodePublicKey turns an optional base58 key from a request body into raw bytes.
func decodePublicKey(publicKeyBase58 string) ([]byte, error) {
	if publicKeyBase58 == "" {
		return nil, nil
	}
	key, err := base58.Decode(publicKeyBase58)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode base58 public key")
	}
	return key, nil
}
