package issuance

import (
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
)

type IssueRequest struct {
	CredentialType msgvec.CredentialType `json:"credentialType" validate:"required"`
	Subject        map[string]any        `json:"credentialSubject" validate:"required"`
	// IssuerRef defaults to the configured issuer DID.
	IssuerRef string `json:"issuer,omitempty"`
	// Artifact is the document the credential attests to. When empty the credential id and subject are hashed.
	Artifact []byte `json:"artifact,omitempty"`
}

// subjectArtifact is what gets hashed and stored when a credential is issued without a document.
type subjectArtifact struct {
	ID      string         `json:"id"`
	Subject map[string]any `json:"credentialSubject"`
}

type IssueResponse struct {
	Credential    credential.Credential `json:"credential"`
	CredentialRef string                `json:"credentialRef"`
	UnsignedRef   string                `json:"unsignedRef"`
	ArtifactRef   string                `json:"artifactRef"`
	DocumentHash  string                `json:"documentHash"`
	Anchored      bool                  `json:"anchored"`
	AnchorError   string                `json:"anchorError,omitempty"`
	// Degraded is set when the credential carries the fallback signature instead of BBS+.
	Degraded bool `json:"degraded"`
}

type RevokeRequest struct {
	DocumentHash string `json:"documentHash" validate:"required"`
	Reason       string `json:"reason,omitempty"`
}

type GetCredentialRequest struct {
	Ref string `json:"ref" validate:"required"`
}
