package review

import (
	"github.com/tbd54566975/ssi-vc-service/pkg/service/issuance"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
)

type ReviewRequest struct {
	ID       string         `json:"-" validate:"required"`
	Approved bool           `json:"approved"`
	Reviewer string         `json:"reviewer,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Subject  map[string]any `json:"credentialSubject,omitempty"`
	Artifact []byte         `json:"artifact,omitempty"`
}

type ReviewResponse struct {
	Request *request.CredentialRequest `json:"request"`
	// Issued is set for approvals only.
	Issued *issuance.IssueResponse `json:"issued,omitempty"`
}
