package nonce

import (
	"fmt"
	"time"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
)

// NonceSize is the number of random bytes in every challenge nonce.
const NonceSize = 32

// Challenge is a one-time nonce a holder must sign to prove control of the address in their DID.
type Challenge struct {
	ID        string    `json:"id"`
	Nonce     string    `json:"nonce"`
	RequestID string    `json:"requestId"`
	HolderDID string    `json:"holderDid"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	Used      bool      `json:"used"`
	UsedAt    time.Time `json:"usedAt,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

// ExpiredAt reports whether the challenge can no longer be consumed at t.
func (c Challenge) ExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// BuildMessage renders the text a holder signs. It must be byte-identical between issuance and verification.
func BuildMessage(protocol, nonce, requestID, holderDID string, expiresAt time.Time) string {
	return fmt.Sprintf("%s DID Ownership Proof\n\nNonce: %s\nRequest ID: %s\nAction: Prove DID Ownership\nExpires: %s\n\nSign this message to verify you own: %s",
		protocol, nonce, requestID, credential.FormatTime(expiresAt), holderDID)
}

type IssueRequest struct {
	RequestID string
	HolderDID string
}

type ConsumeRequest struct {
	NonceID          string
	RequestID        string
	Signature        string
	RecoveredAddress string
}
