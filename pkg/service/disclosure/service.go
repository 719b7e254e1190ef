// Package disclosure derives and verifies selective disclosure presentations. A presentation reveals a subset
// of a credential's message vector together with a BBS+ proof that the subset was signed by the issuer.
package disclosure

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
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
)

type Service struct {
	config   config.DisclosureServiceConfig
	keyStore *keystore.Service
	blobs    *blob.Service
	clock    clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.Disclosure
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.keyStore == nil {
		ae.AppendString("no key store service configured")
	}
	if s.blobs == nil {
		ae.AppendString("no blob service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("disclosure service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.DisclosureServiceConfig {
	return s.config
}

func NewDisclosureService(cfg config.DisclosureServiceConfig, keyStore *keystore.Service, blobs *blob.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	service := Service{config: cfg, keyStore: keyStore, blobs: blobs, clock: c}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// Derive creates a presentation revealing only the requested fields and the document hash. The original
// credential is never modified.
func (s *Service) Derive(ctx context.Context, request DeriveRequest) (*credential.Presentation, error) {
	cred, err := s.resolve(ctx, request)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("deriving presentation of credential<%s> disclosing %v", cred.ID, request.DisclosedFields)

	if cred.Proof == nil || cred.Proof.ProofValue == "" {
		return nil, framework.NewErrorf(framework.CodeMissingOriginalSignature, "credential<%s>", cred.ID)
	}
	if len(request.DisclosedFields) == 0 {
		return nil, framework.NewError(framework.CodeNoDisclosedFields, "")
	}
	ct, ok := cred.CredentialType()
	if !ok {
		return nil, framework.NewErrorf(framework.CodeUnknownCredentialType, "%v", cred.Type)
	}

	vec, err := cred.Encode()
	if err != nil {
		return nil, framework.WrapError(framework.CodeMalformedCredential, err, "encoding message vector")
	}
	if unknown := msgvec.UnknownFields(request.DisclosedFields, vec.FieldIndex); len(unknown) > 0 {
		if !s.config.PermissiveFields {
			return nil, framework.NewErrorf(framework.CodeUnknownField, "%v are not %s fields", unknown, ct)
		}
		logrus.Warnf("ignoring unknown %s fields: %v", ct, unknown)
	}
	if len(msgvec.IndicesFor(request.DisclosedFields, vec.FieldIndex)) == 0 {
		return nil, framework.NewError(framework.CodeNoDisclosedFields, "no known field requested")
	}
	// Always reveal the document hash; verifiers look the ledger anchor up by it.
	disclosedFields := append(append([]string(nil), request.DisclosedFields...), msgvec.FieldDocumentHash)
	indices := msgvec.IndicesFor(disclosedFields, vec.FieldIndex)

	sig, err := signing.ParseSignature(cred.Proof.Type, cred.Proof.ProofValue)
	if err != nil {
		return nil, framework.WrapError(framework.CodeDerivationFailure, err, "parsing original signature")
	}
	primary, ok := sig.(signing.PrimarySignature)
	if !ok {
		return nil, framework.NewErrorf(framework.CodeDerivationFailure, "%s signatures do not support selective disclosure", sig.Type())
	}

	publicKey := request.PublicKey
	if len(publicKey) == 0 {
		if publicKey, err = s.keyStore.GetPublicKey(ctx, cred.Proof.VerificationMethod); err != nil {
			return nil, framework.WrapError(framework.CodeDerivationFailure, err, "resolving issuer key")
		}
	}

	nonce, err := util.RandomBytes(signing.ProofNonceSize)
	if err != nil {
		return nil, framework.WrapError(framework.CodeDerivationFailure, err, "generating proof nonce")
	}
	proof, err := signing.DeriveProof(vec.Messages, primary, nonce, publicKey, indices)
	if err != nil {
		return nil, framework.WrapError(framework.CodeDerivationFailure, err, "")
	}

	fields := msgvec.FieldsFor(indices, ct)
	disclosed := credential.DisclosedCredential{
		Context:           cred.Context,
		ID:                cred.ID,
		Type:              cred.Type,
		CredentialSubject: make(map[string]any),
		Proof: &credential.DerivedProof{
			Type:               signing.BBSProofType,
			Created:            credential.FormatTime(s.clock.Now()),
			ProofPurpose:       credential.AssertionMethodPurpose,
			VerificationMethod: cred.Proof.VerificationMethod,
			ProofValue:         signing.EncodeProofValue(proof),
			Nonce:              signing.EncodeProofValue(nonce),
			DisclosedFields:    fields,
			OriginalRef:        request.CredentialRef,
		},
	}
	for _, field := range fields {
		switch field {
		case msgvec.FieldIssuer:
			disclosed.Issuer = cred.Issuer
		case msgvec.FieldIssuanceDate:
			disclosed.IssuanceDate = cred.IssuanceDate
		case msgvec.FieldDocumentHash:
			disclosed.DocumentHash = cred.DocumentHash
		default:
			if v, present := cred.CredentialSubject[field]; present {
				disclosed.CredentialSubject[field] = v
			}
		}
	}

	return &credential.Presentation{
		Context:              []string{credential.CredentialsContext, credential.BBSContext},
		Type:                 []string{credential.VerifiablePresentationType, credential.SelectiveDisclosurePresentation},
		VerifiableCredential: &disclosed,
	}, nil
}

func (s *Service) resolve(ctx context.Context, request DeriveRequest) (*credential.Credential, error) {
	if request.Credential != nil {
		return request.Credential, nil
	}
	if request.CredentialRef == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "credential or credentialRef")
	}
	raw, err := s.blobs.Get(ctx, request.CredentialRef)
	if err != nil {
		return nil, err
	}
	var cred credential.Credential
	if err = json.Unmarshal(raw, &cred); err != nil {
		return nil, framework.WrapError(framework.CodeMalformedCredential, err, request.CredentialRef)
	}
	return &cred, nil
}

// Verify checks a presentation's derived proof against the attributes it shows. Any cryptographic or value
// mismatch yields false; an error is returned only when the presentation cannot be interpreted or no issuer
// key is available.
func (s *Service) Verify(ctx context.Context, request VerifyRequest) (bool, error) {
	p := request.Presentation
	if err := p.Validate(); err != nil {
		return false, framework.WrapError(framework.CodeMalformedPresentation, err, "")
	}
	vc := p.VerifiableCredential
	logrus.Debugf("verifying presentation of credential<%s>", vc.ID)

	if vc.Proof.Type != signing.BBSProofType {
		return false, framework.NewErrorf(framework.CodeMalformedPresentation, "unsupported proof type: %s", vc.Proof.Type)
	}
	proof, err := signing.DecodeProofValue(vc.Proof.ProofValue)
	if err != nil {
		return false, framework.WrapError(framework.CodeMalformedPresentation, err, "proofValue")
	}
	nonce, err := signing.DecodeProofValue(vc.Proof.Nonce)
	if err != nil {
		return false, framework.WrapError(framework.CodeMalformedPresentation, err, "nonce")
	}

	revealed, ok, err := revealedMessages(p)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	publicKey := request.PublicKey
	if len(publicKey) == 0 {
		if publicKey, err = s.keyStore.GetPublicKey(ctx, vc.Proof.VerificationMethod); err != nil {
			return false, err
		}
	}

	if err = signing.VerifyProof(revealed, proof, nonce, publicKey); err != nil {
		logrus.WithError(err).Infof("presentation of credential<%s> failed verification", vc.ID)
		return false, nil
	}
	return true, nil
}

// revealedMessages rebuilds the disclosed messages in index order. ok is false when the presentation shows
// an attribute it does not claim to disclose.
func revealedMessages(p credential.Presentation) (messages [][]byte, ok bool, err error) {
	vc := p.VerifiableCredential
	ct, _ := p.CredentialType()
	fieldIndex := msgvec.FieldIndex(ct)
	if unknown := msgvec.UnknownFields(vc.Proof.DisclosedFields, fieldIndex); len(unknown) > 0 {
		return nil, false, framework.NewErrorf(framework.CodeMalformedPresentation, "%v are not %s fields", unknown, ct)
	}

	disclosed := make(map[string]bool, len(vc.Proof.DisclosedFields))
	for _, f := range vc.Proof.DisclosedFields {
		disclosed[f] = true
	}
	for f := range vc.CredentialSubject {
		if !disclosed[f] {
			return nil, false, nil
		}
	}

	indices := msgvec.IndicesFor(vc.Proof.DisclosedFields, fieldIndex)
	for _, field := range msgvec.FieldsFor(indices, ct) {
		var value any
		switch field {
		case msgvec.FieldIssuer:
			value = vc.Issuer
		case msgvec.FieldIssuanceDate:
			value = vc.IssuanceDate
		case msgvec.FieldDocumentHash:
			value = vc.DocumentHash
		default:
			value = vc.CredentialSubject[field]
		}
		encoded, err := msgvec.EncodeValue(value)
		if err != nil {
			return nil, false, framework.WrapError(framework.CodeMalformedPresentation, err, field)
		}
		messages = append(messages, encoded)
	}
	return messages, true, nil
}
