package issuance

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/internal/signing"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/blob"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/keystore"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ledger"
)

// challengeSize is the number of random bytes in a proof's challenge.
const challengeSize = 16

type Service struct {
	config   config.IssuanceServiceConfig
	keyStore *keystore.Service
	blobs    *blob.Service
	ledger   *ledger.Service
	clock    clock.Clock

	// replaced in tests
	signPrimary func(messages [][]byte, privateKey []byte) (signing.PrimarySignature, error)
}

func (s *Service) Type() framework.Type {
	return framework.Issuance
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.keyStore == nil {
		ae.AppendString("no key store service configured")
	}
	if s.blobs == nil {
		ae.AppendString("no blob service configured")
	}
	if s.ledger == nil {
		ae.AppendString("no ledger service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("issuance service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.IssuanceServiceConfig {
	return s.config
}

func NewIssuanceService(cfg config.IssuanceServiceConfig, keyStore *keystore.Service, blobs *blob.Service, l *ledger.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	if cfg.IssuerDID == "" {
		cfg.IssuerDID = config.DefaultIssuerDID
	}
	service := Service{
		config:      cfg,
		keyStore:    keyStore,
		blobs:       blobs,
		ledger:      l,
		clock:       c,
		signPrimary: signing.SignPrimary,
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// Issue signs a credential over the subject and stores it. The artifact, the unsigned body and the signed
// credential are written to the blob store, and any failure there aborts issuance. Anchoring on the ledger
// is best effort and reported in the response.
func (s *Service) Issue(ctx context.Context, request IssueRequest) (*IssueResponse, error) {
	logrus.Debugf("issuing %s credential", request.CredentialType)

	if err := validateSubject(request.CredentialType, request.Subject); err != nil {
		return nil, err
	}
	issuer := request.IssuerRef
	if issuer == "" {
		issuer = s.config.IssuerDID
	}

	credentialID := "urn:uuid:" + uuid.NewString()
	artifact := request.Artifact
	if len(artifact) == 0 {
		// Without a document the subject stands in for it, tied to this credential so that identical subjects
		// still get distinct anchors.
		subjectBytes, err := json.Marshal(subjectArtifact{ID: credentialID, Subject: request.Subject})
		if err != nil {
			return nil, framework.WrapError(framework.CodeMalformedCredential, err, "encoding subject")
		}
		artifact = subjectBytes
	}
	documentHash := util.SHA256Hex(artifact)

	artifactRef, err := s.blobs.Put(ctx, artifact)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cred := credential.Credential{
		Context:           []string{credential.CredentialsContext, credential.BBSContext},
		ID:                credentialID,
		Type:              []string{credential.VerifiableCredentialType, string(request.CredentialType)},
		Issuer:            issuer,
		IssuanceDate:      credential.FormatTime(now),
		CredentialSubject: request.Subject,
		DocumentHash:      documentHash,
		ArtifactRef:       artifactRef,
	}
	unsignedBytes, err := json.Marshal(cred)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not encode unsigned credential")
	}
	unsignedRef, err := s.blobs.Put(ctx, unsignedBytes)
	if err != nil {
		return nil, err
	}

	vec, err := cred.Encode()
	if err != nil {
		return nil, framework.WrapError(framework.CodeMalformedCredential, err, "encoding message vector")
	}
	sig, err := s.sign(ctx, issuer, vec.Messages)
	if err != nil {
		return nil, err
	}
	challenge, err := util.RandomHex(challengeSize)
	if err != nil {
		return nil, framework.WrapError(framework.CodeSigningFailure, err, "generating proof challenge")
	}
	cred.Proof = &credential.Proof{
		Type:               sig.Type(),
		Created:            credential.FormatTime(now),
		ProofPurpose:       credential.AssertionMethodPurpose,
		VerificationMethod: credential.VerificationMethod(issuer),
		ProofValue:         signing.EncodeProofValue(sig.Bytes()),
		Challenge:          challenge,
	}

	signedBytes, err := json.Marshal(cred)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not encode signed credential")
	}
	credentialRef, err := s.blobs.Put(ctx, signedBytes)
	if err != nil {
		return nil, err
	}

	response := IssueResponse{
		Credential:    cred,
		CredentialRef: credentialRef,
		UnsignedRef:   unsignedRef,
		ArtifactRef:   artifactRef,
		DocumentHash:  documentHash,
		Degraded:      sig.Degraded(),
	}
	if err = s.ledger.Anchor(ctx, documentHash, credentialRef); err != nil {
		logrus.WithError(err).Warnf("credential<%s> issued without a ledger anchor", cred.ID)
		response.AnchorError = err.Error()
	} else {
		response.Anchored = true
	}
	return &response, nil
}

// sign produces a BBS+ signature, dropping to the HMAC fallback if BBS+ fails.
func (s *Service) sign(ctx context.Context, issuer string, messages [][]byte) (signing.Signature, error) {
	key, err := s.keyStore.EnsureIssuerKey(ctx, issuer)
	if err != nil {
		return nil, framework.WrapError(framework.CodeSigningFailure, err, "resolving issuer key")
	}
	primary, err := s.signPrimary(messages, key.PrivateKey)
	if err == nil {
		return primary, nil
	}
	logrus.WithError(err).Errorf("bbs+ signing failed for %s, using %s", issuer, signing.FallbackSignatureType)
	fallback, fbErr := signing.SignFallback(messages, key.FallbackSecret)
	if fbErr != nil {
		return nil, framework.WrapError(framework.CodeSigningFailure, fbErr, "fallback signing")
	}
	return fallback, nil
}

// Revoke marks the credential anchored under the document hash as revoked.
func (s *Service) Revoke(ctx context.Context, request RevokeRequest) error {
	logrus.Debugf("revoking credential with document hash: %s", request.DocumentHash)

	if request.DocumentHash == "" {
		return framework.NewError(framework.CodeMissingRequiredField, "documentHash")
	}
	return s.ledger.Revoke(ctx, request.DocumentHash, request.Reason)
}

// GetCredential fetches a signed credential by its blob reference.
func (s *Service) GetCredential(ctx context.Context, request GetCredentialRequest) (*credential.Credential, error) {
	raw, err := s.blobs.Get(ctx, request.Ref)
	if err != nil {
		return nil, err
	}
	var cred credential.Credential
	if err = json.Unmarshal(raw, &cred); err != nil {
		return nil, framework.WrapError(framework.CodeMalformedCredential, err, request.Ref)
	}
	if err = cred.Validate(); err != nil {
		return nil, framework.WrapError(framework.CodeMalformedCredential, err, request.Ref)
	}
	return &cred, nil
}

func validateSubject(t msgvec.CredentialType, subject map[string]any) error {
	if t == "" {
		return framework.NewError(framework.CodeMissingRequiredField, "credentialType")
	}
	if !msgvec.IsSupported(t) {
		return framework.NewErrorf(framework.CodeUnknownCredentialType, "%s", t)
	}
	for _, field := range msgvec.RequiredFields(t) {
		v, ok := subject[field]
		if !ok || v == nil {
			return framework.NewErrorf(framework.CodeMissingRequiredField, "credentialSubject.%s", field)
		}
		if str, isString := v.(string); isString && str == "" {
			return framework.NewErrorf(framework.CodeMissingRequiredField, "credentialSubject.%s", field)
		}
	}
	return nil
}
