// Package signing holds the multi-message signature schemes credentials are signed with. BBS+ over
// BLS12-381 is the primary scheme and the only one that supports selective disclosure. When it fails an
// HMAC-SHA256 fallback is used, and the result is tagged with its own signature type so verifiers can tell
// the weaker guarantee apart.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"github.com/hyperledger/aries-framework-go/component/kmscrypto/crypto/primitive/bbs12381g2pub"
	"github.com/pkg/errors"
)

const (
	BBSSignatureType      = "BbsBlsSignature2020"
	BBSProofType          = "BbsBlsSignatureProof2020"
	FallbackSignatureType = "DegradedHmacSha256Signature2024"

	// ProofNonceSize is the number of random bytes bound into every derived proof.
	ProofNonceSize = 32
	// FallbackSecretSize is the size of an issuer's HMAC secret.
	FallbackSecretSize = 32
)

// Signature is either a PrimarySignature or a FallbackSignature. Each knows how to verify itself.
type Signature interface {
	// Type is the proof type written into a credential.
	Type() string
	// Degraded reports whether this is the lower-trust fallback.
	Degraded() bool
	// Bytes returns the raw signature.
	Bytes() []byte
	// Verify checks the signature over the full message vector.
	Verify(messages [][]byte, key VerificationKey) error

	isSignature()
}

// VerificationKey carries the material needed to verify either kind of signature. PublicKey is the
// issuer's marshalled BBS+ public key. FallbackSecret is only ever known to the issuer itself.
type VerificationKey struct {
	PublicKey      []byte
	FallbackSecret []byte
}

// PrimarySignature is a BBS+ signature.
type PrimarySignature []byte

func (PrimarySignature) Type() string {
	return BBSSignatureType
}

func (PrimarySignature) Degraded() bool {
	return false
}

func (s PrimarySignature) Bytes() []byte {
	return s
}

func (PrimarySignature) isSignature() {}

func (s PrimarySignature) Verify(messages [][]byte, key VerificationKey) error {
	if len(key.PublicKey) == 0 {
		return errors.New("bbs+ verification requires a public key")
	}
	return bbs12381g2pub.New().Verify(messages, s, key.PublicKey)
}

// FallbackSignature is an HMAC-SHA256 tag over the length-prefixed message vector.
type FallbackSignature []byte

func (FallbackSignature) Type() string {
	return FallbackSignatureType
}

func (FallbackSignature) Degraded() bool {
	return true
}

func (s FallbackSignature) Bytes() []byte {
	return s
}

func (FallbackSignature) isSignature() {}

func (s FallbackSignature) Verify(messages [][]byte, key VerificationKey) error {
	if len(key.FallbackSecret) == 0 {
		return errors.New("fallback verification requires the issuer secret")
	}
	if !hmac.Equal(s, fallbackMAC(messages, key.FallbackSecret)) {
		return errors.New("fallback signature mismatch")
	}
	return nil
}

// ParseSignature turns a proof type and base64 proof value back into a Signature.
func ParseSignature(proofType, proofValue string) (Signature, error) {
	raw, err := DecodeProofValue(proofValue)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty proof value")
	}
	switch proofType {
	case BBSSignatureType:
		return PrimarySignature(raw), nil
	case FallbackSignatureType:
		return FallbackSignature(raw), nil
	default:
		return nil, errors.Errorf("unsupported signature type: %s", proofType)
	}
}

// EncodeProofValue is the textual form of signatures and proofs.
func EncodeProofValue(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeProofValue accepts standard or raw base64.
func DecodeProofValue(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding proof value")
	}
	return b, nil
}

// SignPrimary signs with BBS+.
func SignPrimary(messages [][]byte, privateKey []byte) (PrimarySignature, error) {
	if len(privateKey) == 0 {
		return nil, errors.New("no bbs+ private key")
	}
	sig, err := bbs12381g2pub.New().Sign(messages, privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "bbs+ signing")
	}
	return sig, nil
}

// SignFallback computes the HMAC fallback.
func SignFallback(messages [][]byte, secret []byte) (FallbackSignature, error) {
	if len(secret) == 0 {
		return nil, errors.New("no fallback secret")
	}
	return fallbackMAC(messages, secret), nil
}

func fallbackMAC(messages [][]byte, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	var length [4]byte
	for _, m := range messages {
		binary.BigEndian.PutUint32(length[:], uint32(len(m)))
		mac.Write(length[:])
		mac.Write(m)
	}
	return mac.Sum(nil)
}

// DeriveProof creates a BBS+ proof of knowledge of sig that reveals only the messages at indices.
func DeriveProof(messages [][]byte, sig PrimarySignature, nonce, publicKey []byte, indices []int) ([]byte, error) {
	if len(indices) == 0 {
		return nil, errors.New("no message to reveal")
	}
	// the primitive sorts indices in place
	revealed := append([]int(nil), indices...)
	proof, err := bbs12381g2pub.New().DeriveProof(messages, sig, nonce, publicKey, revealed)
	if err != nil {
		return nil, errors.Wrap(err, "deriving bbs+ proof")
	}
	return proof, nil
}

// VerifyProof checks a derived proof against the revealed messages, given in ascending index order.
func VerifyProof(revealed [][]byte, proof, nonce, publicKey []byte) error {
	return bbs12381g2pub.New().VerifyProof(revealed, proof, nonce, publicKey)
}

// GenerateKeyPair creates a BBS+ key pair and returns both halves marshalled.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := bbs12381g2pub.GenerateKeyPair(sha256.New, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating bbs+ key pair")
	}
	if publicKey, err = pub.Marshal(); err != nil {
		return nil, nil, errors.Wrap(err, "marshalling bbs+ public key")
	}
	if privateKey, err = priv.Marshal(); err != nil {
		return nil, nil, errors.Wrap(err, "marshalling bbs+ private key")
	}
	return publicKey, privateKey, nil
}

// PublicKeyFromPrivate derives the marshalled public key of a marshalled BBS+ private key.
func PublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	priv, err := bbs12381g2pub.UnmarshalPrivateKey(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling bbs+ private key")
	}
	return priv.PublicKey().Marshal()
}

// ValidatePublicKey reports whether b is a well-formed BBS+ public key.
func ValidatePublicKey(b []byte) error {
	_, err := bbs12381g2pub.UnmarshalPublicKey(b)
	return err
}
