package did

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	personalMessagePrefix = "\x19Ethereum Signed Message:\n"

	// r || s || v
	signatureLength = 65
	// compact signatures carry 27 + recovery id in their first byte
	compactRecoveryBase = 27
)

// PersonalMessageHash is the EIP-191 (version 0x45) hash a wallet signs for personal_sign.
func PersonalMessageHash(message []byte) []byte {
	return keccak256([]byte(personalMessagePrefix+strconv.Itoa(len(message))), message)
}

// RecoverAddress recovers the address that produced an EIP-191 personal_sign signature over message.
// The signature is hex, with or without 0x, laid out as r || s || v where v is 0, 1, 27 or 28.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := decodeHex(signature)
	if err != nil {
		return "", errors.Wrap(err, "decoding signature")
	}
	if len(sig) != signatureLength {
		return "", errors.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}

	v := sig[64]
	if v >= compactRecoveryBase {
		v -= compactRecoveryBase
	}
	if v > 1 {
		return "", errors.Errorf("invalid recovery id: %d", sig[64])
	}

	compact := make([]byte, signatureLength)
	compact[0] = compactRecoveryBase + v
	copy(compact[1:], sig[:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash([]byte(message)))
	if err != nil {
		return "", errors.Wrap(err, "recovering public key")
	}
	return PublicKeyToAddress(pubKey), nil
}

// PublicKeyToAddress derives the 20 byte chain address of a secp256k1 public key.
func PublicKeyToAddress(pubKey *secp256k1.PublicKey) string {
	uncompressed := pubKey.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(hash[12:])
}

// SignPersonalMessage produces an r || s || v personal_sign signature, v being 27 or 28, as a 0x hex string.
// It is what a wallet does for the holder; the service only uses it in tests and tooling.
func SignPersonalMessage(privKey *secp256k1.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(privKey, PersonalMessageHash([]byte(message)), false)
	sig := make([]byte, signatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
