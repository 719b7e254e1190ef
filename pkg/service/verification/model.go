package verification

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
)

// VerifyRequest names the artifact to verify, by blob reference or inline. PublicKey, when set, takes
// precedence over the key store. DocumentHash, when set, must agree with the artifact's own hash.
type VerifyRequest struct {
	Ref          string          `json:"ref,omitempty"`
	Credential   json.RawMessage `json:"credential,omitempty"`
	PublicKey    []byte          `json:"-"`
	DocumentHash string          `json:"documentHash,omitempty"`
}

// ProofMetadata describes a proof without revealing anything it signs.
type ProofMetadata struct {
	Type               string   `json:"type"`
	Created            string   `json:"created"`
	ProofPurpose       string   `json:"proofPurpose"`
	VerificationMethod string   `json:"verificationMethod"`
	DisclosedFields    []string `json:"disclosedFields,omitempty"`
	OriginalRef        string   `json:"originalRef,omitempty"`
}

// VerificationResult reports every check separately. For presentations Credential is always nil and
// Disclosed holds only the attributes the holder chose to reveal.
type VerificationResult struct {
	Kind             credential.Kind        `json:"kind,omitempty"`
	StructureValid   bool                   `json:"structureValid"`
	StorageValid     bool                   `json:"storageValid"`
	SignatureChecked bool                   `json:"signatureChecked"`
	SignatureValid   bool                   `json:"signatureValid"`
	Degraded         bool                   `json:"degraded,omitempty"`
	LedgerValid      bool                   `json:"ledgerValid"`
	HashMatch        bool                   `json:"hashMatch"`
	Revoked          bool                   `json:"revoked"`
	RevokedReason    string                 `json:"revokedReason,omitempty"`
	Verified         bool                   `json:"verified"`
	Reasons          []string               `json:"reasons,omitempty"`
	DocumentHash     string                 `json:"documentHash,omitempty"`
	Credential       *credential.Credential `json:"credential,omitempty"`
	Disclosed        map[string]any         `json:"disclosed,omitempty"`
	ProofMetadata    *ProofMetadata         `json:"proofMetadata,omitempty"`
}

func (r *VerificationResult) addReason(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}
