// Package verification checks a credential or presentation end to end: that it could be fetched, that it is
// well formed, that its signature or derived proof holds, and that its document hash is anchored and not
// revoked.
package verification

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/internal/signing"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/blob"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/disclosure"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/keystore"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ledger"
)

type Service struct {
	config     config.VerificationServiceConfig
	keyStore   *keystore.Service
	blobs      *blob.Service
	ledger     *ledger.Service
	disclosure *disclosure.Service
}

func (s *Service) Type() framework.Type {
	return framework.Verification
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
	if s.disclosure == nil {
		ae.AppendString("no disclosure service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("verification service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.VerificationServiceConfig {
	return s.config
}

func NewVerificationService(cfg config.VerificationServiceConfig, keyStore *keystore.Service, blobs *blob.Service, l *ledger.Service, d *disclosure.Service) (*Service, error) {
	service := Service{config: cfg, keyStore: keyStore, blobs: blobs, ledger: l, disclosure: d}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// Verify runs every check and reports each outcome. Failed checks are reported in the result; an error is
// returned only when there is nothing to verify.
func (s *Service) Verify(ctx context.Context, request VerifyRequest) (*VerificationResult, error) {
	if request.Ref == "" && len(request.Credential) == 0 {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "ref or credential")
	}
	logrus.Debugf("verifying artifact, ref<%s>", request.Ref)

	var result VerificationResult
	raw := []byte(request.Credential)
	if request.Ref != "" {
		fetched, err := s.blobs.Get(ctx, request.Ref)
		if err != nil {
			result.addReason("could not fetch %s: %s", request.Ref, err)
			return &result, nil
		}
		raw = fetched
	}
	result.StorageValid = true

	kind, err := credential.Detect(raw)
	if err != nil {
		result.addReason("not a credential or presentation: %s", err)
		return &result, nil
	}
	result.Kind = kind

	var artifactHash string
	switch kind {
	case credential.KindPresentation:
		artifactHash = s.checkPresentation(ctx, raw, request, &result)
	default:
		artifactHash = s.checkCredential(ctx, raw, request, &result)
	}

	s.checkLedger(ctx, artifactHash, request.DocumentHash, &result)

	signatureGates := result.SignatureChecked || s.config.RequireSignature
	result.Verified = result.StructureValid && result.StorageValid && result.LedgerValid && !result.Revoked &&
		(!signatureGates || result.SignatureValid)
	if signatureGates && !result.SignatureChecked {
		result.addReason("a verified signature is required but no key was available")
	}
	return &result, nil
}

func (s *Service) checkCredential(ctx context.Context, raw []byte, request VerifyRequest, result *VerificationResult) string {
	var cred credential.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		result.addReason("malformed credential: %s", err)
		return ""
	}
	result.Credential = &cred
	if err := cred.Validate(); err != nil {
		result.addReason("malformed credential: %s", err)
		return cred.DocumentHash
	}
	result.StructureValid = true
	result.ProofMetadata = &ProofMetadata{
		Type:               cred.Proof.Type,
		Created:            cred.Proof.Created,
		ProofPurpose:       cred.Proof.ProofPurpose,
		VerificationMethod: cred.Proof.VerificationMethod,
	}

	sig, err := signing.ParseSignature(cred.Proof.Type, cred.Proof.ProofValue)
	if err != nil {
		result.addReason("unrecognised proof: %s", err)
		return cred.DocumentHash
	}
	result.Degraded = sig.Degraded()

	key, ok := s.resolveKey(ctx, sig, cred.Proof.VerificationMethod, request.PublicKey)
	if !ok {
		return cred.DocumentHash
	}
	result.SignatureChecked = true

	vec, err := cred.Encode()
	if err != nil {
		result.addReason("could not encode credential: %s", err)
		return cred.DocumentHash
	}
	if err = sig.Verify(vec.Messages, key); err != nil {
		result.addReason("signature invalid: %s", err)
		return cred.DocumentHash
	}
	result.SignatureValid = true
	return cred.DocumentHash
}

// resolveKey finds verification material for sig. The fallback secret is only ever known to this issuer.
func (s *Service) resolveKey(ctx context.Context, sig signing.Signature, verificationMethod string, supplied []byte) (signing.VerificationKey, bool) {
	if sig.Degraded() {
		secret, err := s.keyStore.HMACSecret(ctx, verificationMethod)
		if err != nil {
			logrus.WithError(err).Debugf("no fallback secret for %s", verificationMethod)
			return signing.VerificationKey{}, false
		}
		return signing.VerificationKey{FallbackSecret: secret}, true
	}
	if len(supplied) > 0 {
		return signing.VerificationKey{PublicKey: supplied}, true
	}
	pub, err := s.keyStore.GetPublicKey(ctx, verificationMethod)
	if err != nil {
		logrus.WithError(err).Debugf("no public key for %s", verificationMethod)
		return signing.VerificationKey{}, false
	}
	return signing.VerificationKey{PublicKey: pub}, true
}

func (s *Service) checkPresentation(ctx context.Context, raw []byte, request VerifyRequest, result *VerificationResult) string {
	var p credential.Presentation
	if err := json.Unmarshal(raw, &p); err != nil {
		result.addReason("malformed presentation: %s", err)
		return ""
	}
	if err := p.Validate(); err != nil {
		result.addReason("malformed presentation: %s", err)
		return ""
	}
	vc := p.VerifiableCredential
	result.Disclosed = disclosedAttributes(vc)
	result.ProofMetadata = &ProofMetadata{
		Type:               vc.Proof.Type,
		Created:            vc.Proof.Created,
		ProofPurpose:       vc.Proof.ProofPurpose,
		VerificationMethod: vc.Proof.VerificationMethod,
		DisclosedFields:    vc.Proof.DisclosedFields,
		OriginalRef:        vc.Proof.OriginalRef,
	}
	result.StructureValid = true

	key := request.PublicKey
	if len(key) == 0 {
		pub, err := s.keyStore.GetPublicKey(ctx, vc.Proof.VerificationMethod)
		if err != nil {
			logrus.WithError(err).Debugf("no public key for %s", vc.Proof.VerificationMethod)
			return s.presentationHash(vc, result)
		}
		key = pub
	}
	result.SignatureChecked = true
	ok, err := s.disclosure.Verify(ctx, disclosure.VerifyRequest{Presentation: p, PublicKey: key})
	switch {
	case err != nil:
		result.StructureValid = false
		result.addReason("malformed presentation: %s", err)
	case !ok:
		result.addReason("derived proof invalid")
	default:
		result.SignatureValid = true
	}
	return s.presentationHash(vc, result)
}

// presentationHash is the disclosed document hash. The original reference is not covered by the derived proof,
// so it is never used to find the anchor.
func (s *Service) presentationHash(vc *credential.DisclosedCredential, result *VerificationResult) string {
	if vc.DocumentHash == "" {
		result.addReason("presentation does not disclose its document hash")
	}
	return vc.DocumentHash
}

func (s *Service) checkLedger(ctx context.Context, artifactHash, suppliedHash string, result *VerificationResult) {
	hash := artifactHash
	if hash == "" {
		hash = suppliedHash
	}
	result.DocumentHash = hash
	if hash == "" {
		result.addReason("no document hash to look up")
		return
	}
	anchor, err := s.ledger.Lookup(ctx, hash)
	if err != nil {
		result.addReason("ledger lookup failed: %s", err)
		return
	}
	if !anchor.Exists {
		result.addReason("document hash %s is not anchored", hash)
		return
	}
	result.LedgerValid = true
	result.HashMatch = suppliedHash == "" || suppliedHash == hash
	if !result.HashMatch {
		result.LedgerValid = false
		result.addReason("supplied document hash does not match the artifact")
	}
	result.Revoked = anchor.Revoked
	result.RevokedReason = anchor.RevokedReason
	if anchor.Revoked {
		result.addReason("credential was revoked: %s", anchor.RevokedReason)
	}
}

// disclosedAttributes returns only what the presentation declares as disclosed.
func disclosedAttributes(vc *credential.DisclosedCredential) map[string]any {
	attrs := make(map[string]any, len(vc.Proof.DisclosedFields))
	for _, field := range vc.Proof.DisclosedFields {
		switch field {
		case msgvec.FieldIssuer:
			attrs[field] = vc.Issuer
		case msgvec.FieldIssuanceDate:
			attrs[field] = vc.IssuanceDate
		case msgvec.FieldDocumentHash:
			attrs[field] = vc.DocumentHash
		default:
			if v, ok := vc.CredentialSubject[field]; ok {
				attrs[field] = v
			}
		}
	}
	return attrs
}
