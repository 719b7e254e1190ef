package request

import (
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
)

// Status is the lifecycle state of a credential request. Requests only ever move forward:
// pending, then verified, then approved or rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	// pending to pending is a challenge being attached
	StatusPending:  {StatusPending, StatusVerified},
	StatusVerified: {StatusApproved, StatusRejected},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PriorCredential is an earlier credential the holder attaches, e.g. a student id backing a certificate request.
type PriorCredential struct {
	ID   string         `json:"id" validate:"required"`
	Data map[string]any `json:"data,omitempty"`
}

// ReviewMetadata records the issuer's decision on a verified request.
type ReviewMetadata struct {
	Reviewer      string `json:"reviewer,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ReviewedAt    string `json:"reviewedAt"`
	CredentialID  string `json:"credentialId,omitempty"`
	CredentialRef string `json:"credentialRef,omitempty"`
	DocumentHash  string `json:"documentHash,omitempty"`
	Anchored      bool   `json:"anchored,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
}

// CredentialRequest is a holder's ask for a credential.
type CredentialRequest struct {
	ID               string                `json:"id"`
	HolderDID        string                `json:"holderDid"`
	HolderAddress    string                `json:"holderAddress"`
	HolderName       string                `json:"holderName,omitempty"`
	CredentialType   msgvec.CredentialType `json:"credentialType"`
	VerificationID   string                `json:"verificationId,omitempty"`
	Message          string                `json:"message,omitempty"`
	PriorCredential  *PriorCredential      `json:"priorCredential,omitempty"`
	Status           Status                `json:"status"`
	CreatedAt        string                `json:"createdAt"`
	NonceID          string                `json:"nonceId,omitempty"`
	VerifiedAt       string                `json:"verifiedAt,omitempty"`
	RecoveredAddress string                `json:"recoveredAddress,omitempty"`
	Signature        string                `json:"signature,omitempty"`
	Review           *ReviewMetadata       `json:"review,omitempty"`
}

type CreateRequest struct {
	HolderDID       string                `json:"holderDid" validate:"required"`
	HolderAddress   string                `json:"holderAddress,omitempty"`
	HolderName      string                `json:"holderName,omitempty"`
	CredentialType  msgvec.CredentialType `json:"credentialType" validate:"required"`
	VerificationID  string                `json:"verificationId,omitempty"`
	Message         string                `json:"message,omitempty"`
	PriorCredential *PriorCredential      `json:"priorCredential,omitempty"`
}

type GetRequest struct {
	ID string
}

// TransitionRequest moves a request to Status. Apply, when set, mutates the record before it is written and
// runs inside the same transaction.
type TransitionRequest struct {
	ID     string
	Status Status
	Apply  func(r *CredentialRequest) error
}

type DeleteRequest struct {
	ID string
}
