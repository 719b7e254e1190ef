package credential

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
)

const (
	VerifiableCredentialType        = "VerifiableCredential"
	VerifiablePresentationType      = "VerifiablePresentation"
	SelectiveDisclosurePresentation = "SelectiveDisclosurePresentation"
	CredentialsContext              = "https://www.w3.org/2018/credentials/v1"
	BBSContext                      = "https://w3id.org/security/bbs/v1"

	AssertionMethodPurpose = "assertionMethod"

	// KeyFragment is appended to the issuer DID to name its signing key.
	KeyFragment = "#key-1"

	// TimeFormat is used for issuance dates, proof creation times and challenge expiry.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Proof is the proof block of a signed credential.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	ProofValue         string `json:"proofValue"`
	Challenge          string `json:"challenge,omitempty"`
}

// Credential is a signed verifiable credential. Subject values are kept as decoded JSON so that the
// message vector can be rebuilt from a fetched copy exactly as it was at signing time.
type Credential struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      string         `json:"issuanceDate"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	DocumentHash      string         `json:"documentHash"`
	ArtifactRef       string         `json:"artifactRef,omitempty"`
	Proof             *Proof         `json:"proof,omitempty"`
}

// CredentialType returns the first type that has a message vector layout.
func (c Credential) CredentialType() (msgvec.CredentialType, bool) {
	for _, t := range c.Type {
		if ct := msgvec.CredentialType(t); msgvec.IsSupported(ct) {
			return ct, true
		}
	}
	return "", false
}

// SubjectID is the holder DID the credential is about.
func (c Credential) SubjectID() string {
	id, _ := c.CredentialSubject[msgvec.FieldSubjectID].(string)
	return id
}

// Encode rebuilds the message vector the credential was signed over.
func (c Credential) Encode() (*msgvec.Vector, error) {
	ct, ok := c.CredentialType()
	if !ok {
		return nil, errors.Errorf("credential<%s> has no supported type", c.ID)
	}
	return msgvec.Encode(ct, c.CredentialSubject, c.Issuer, c.IssuanceDate, c.DocumentHash)
}

// Unsigned returns a copy of the credential without its proof.
func (c Credential) Unsigned() Credential {
	c.Proof = nil
	return c
}

// Validate checks the fields every signed credential must carry.
func (c Credential) Validate() error {
	switch {
	case len(c.Context) == 0:
		return errors.New("credential is missing @context")
	case c.ID == "":
		return errors.New("credential is missing id")
	case c.Issuer == "":
		return errors.New("credential is missing issuer")
	case c.IssuanceDate == "":
		return errors.New("credential is missing issuanceDate")
	case c.DocumentHash == "":
		return errors.New("credential is missing documentHash")
	case len(c.CredentialSubject) == 0:
		return errors.New("credential is missing credentialSubject")
	case c.Proof == nil:
		return errors.New("credential is missing proof")
	case c.Proof.Type == "" || c.Proof.ProofValue == "" || c.Proof.VerificationMethod == "":
		return errors.New("credential proof is incomplete")
	}
	if !containsString(c.Type, VerifiableCredentialType) {
		return errors.Errorf("credential type must include %s", VerifiableCredentialType)
	}
	if _, ok := c.CredentialType(); !ok {
		return errors.Errorf("credential type %v has no supported layout", c.Type)
	}
	return nil
}

// DerivedProof is the proof block of a selective disclosure presentation.
type DerivedProof struct {
	Type               string   `json:"type"`
	Created            string   `json:"created"`
	ProofPurpose       string   `json:"proofPurpose"`
	VerificationMethod string   `json:"verificationMethod"`
	ProofValue         string   `json:"proofValue"`
	Nonce              string   `json:"nonce"`
	DisclosedFields    []string `json:"disclosedFields"`
	OriginalRef        string   `json:"originalRef,omitempty"`
}

// DisclosedCredential is the partial credential carried by a presentation. It holds only the disclosed
// subject attributes; envelope fields that were not disclosed are left empty.
type DisclosedCredential struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer,omitempty"`
	IssuanceDate      string         `json:"issuanceDate,omitempty"`
	DocumentHash      string         `json:"documentHash,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	Proof             *DerivedProof  `json:"proof"`
}

// Presentation wraps a derived proof and the disclosed subset of a credential's attributes.
type Presentation struct {
	Context              []string             `json:"@context"`
	Type                 []string             `json:"type"`
	VerifiableCredential *DisclosedCredential `json:"verifiableCredential"`
}

// CredentialType returns the layout the presentation's credential was signed with.
func (p Presentation) CredentialType() (msgvec.CredentialType, bool) {
	if p.VerifiableCredential == nil {
		return "", false
	}
	for _, t := range p.VerifiableCredential.Type {
		if ct := msgvec.CredentialType(t); msgvec.IsSupported(ct) {
			return ct, true
		}
	}
	return "", false
}

// Validate checks the fields every presentation must carry.
func (p Presentation) Validate() error {
	if !containsString(p.Type, VerifiablePresentationType) {
		return errors.Errorf("presentation type must include %s", VerifiablePresentationType)
	}
	vc := p.VerifiableCredential
	switch {
	case vc == nil:
		return errors.New("presentation is missing verifiableCredential")
	case vc.Proof == nil:
		return errors.New("presentation is missing proof")
	case vc.Proof.ProofValue == "" || vc.Proof.Nonce == "":
		return errors.New("presentation proof is incomplete")
	case len(vc.Proof.DisclosedFields) == 0:
		return errors.New("presentation discloses no fields")
	}
	if _, ok := p.CredentialType(); !ok {
		return errors.Errorf("presentation credential type %v has no supported layout", vc.Type)
	}
	return nil
}

// Kind distinguishes the two artifacts a verifier may be handed.
type Kind string

const (
	KindCredential   Kind = "credential"
	KindPresentation Kind = "presentation"
)

// Detect decides whether raw JSON is a full credential or a presentation.
func Detect(raw []byte) (Kind, error) {
	var envelope struct {
		Type                 []string        `json:"type"`
		VerifiableCredential json.RawMessage `json:"verifiableCredential"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", errors.Wrap(err, "decoding artifact")
	}
	if containsString(envelope.Type, VerifiablePresentationType) || len(envelope.VerifiableCredential) > 0 {
		return KindPresentation, nil
	}
	return KindCredential, nil
}

// FormatTime renders t the way every timestamp in a credential is rendered.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// VerificationMethod names the issuer's signing key.
func VerificationMethod(issuer string) string {
	return issuer + KeyFragment
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
