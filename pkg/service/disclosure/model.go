package disclosure

import (
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
)

// DeriveRequest names the credential to derive from, either inline or by blob reference. PublicKey is the
// issuer's marshalled BBS+ key; when empty it is resolved from the key store.
type DeriveRequest struct {
	Credential      *credential.Credential `json:"credential,omitempty"`
	CredentialRef   string                 `json:"credentialRef,omitempty"`
	DisclosedFields []string               `json:"disclosedFields" validate:"required"`
	PublicKey       []byte                 `json:"-"`
}

type VerifyRequest struct {
	Presentation credential.Presentation
	PublicKey    []byte
}
