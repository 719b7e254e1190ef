package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/disclosure"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

type PresentationRouter struct {
	service *disclosure.Service
}

func NewPresentationRouter(s svcframework.Service) (*PresentationRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	disclosureService, ok := s.(*disclosure.Service)
	if !ok {
		return nil, fmt.Errorf("could not create presentation router with service type: %s", s.Type())
	}
	return &PresentationRouter{service: disclosureService}, nil
}

type CreatePresentationRequest struct {
	// The signed credential to derive from. Either this or `credentialRef` must be set.
	Credential *credential.Credential `json:"credential,omitempty"`

	// Blob store reference of the signed credential.
	CredentialRef string `json:"credentialRef,omitempty"`

	// Names of the subject attributes to reveal.
	DisclosedFields []string `json:"disclosedFields"`

	// Optional. Base58 issuer public key; resolved from the key store when empty.
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`
}

func (r CreatePresentationRequest) ToServiceRequest() (*disclosure.DeriveRequest, error) {
	if r.Credential == nil && r.CredentialRef == "" {
		return nil, errors.New("one of credential or credentialRef is required")
	}
	publicKey, err := decodePublicKey(r.PublicKeyBase58)
	if err != nil {
		return nil, err
	}
	return &disclosure.DeriveRequest{
		Credential:      r.Credential,
		CredentialRef:   r.CredentialRef,
		DisclosedFields: r.DisclosedFields,
		PublicKey:       publicKey,
	}, nil
}

// CreatePresentation godoc
//
//	@Summary		Create Selective Disclosure Presentation
//	@Description	Derives a zero knowledge proof from a BBS+ signed credential that reveals only the requested
//	@Description	attributes. Each call produces a fresh, unlinkable proof.
//	@Tags			PresentationAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreatePresentationRequest	true	"request body"
//	@Success		201		{object}	credential.Presentation
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Failure		500		{string}	string	"Internal server error"
//	@Router			/v1/presentations [put]
func (pr PresentationRouter) CreatePresentation(c *gin.Context) {
	var body CreatePresentationRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid create presentation request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	req, err := body.ToServiceRequest()
	if err != nil {
		errMsg := "could not process create presentation request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	presentation, err := pr.service.Derive(c, *req)
	if err != nil {
		errMsg := "could not derive presentation"
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, presentation, http.StatusCreated)
}

type VerifyPresentationRequest struct {
	Presentation credential.Presentation `json:"presentation"`

	// Optional. Base58 issuer public key; resolved from the key store when empty.
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`
}

type VerifyPresentationResponse struct {
	Verified bool `json:"verified"`
}

// VerifyPresentation godoc
//
//	@Summary		Verify Presentation Proof
//	@Description	Checks only the derived proof of a presentation against the attributes it shows. Use the
//	@Description	verification endpoint for storage and ledger checks.
//	@Tags			PresentationAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyPresentationRequest	true	"request body"
//	@Success		200		{object}	VerifyPresentationResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Router			/v1/presentations/verification [put]
func (pr PresentationRouter) VerifyPresentation(c *gin.Context) {
	var body VerifyPresentationRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid verify presentation request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	publicKey, err := decodePublicKey(body.PublicKeyBase58)
	if err != nil {
		errMsg := "could not process verify presentation request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	verified, err := pr.service.Verify(c, disclosure.VerifyRequest{Presentation: body.Presentation, PublicKey: publicKey})
	if err != nil {
		errMsg := "could not verify presentation"
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, VerifyPresentationResponse{Verified: verified}, http.StatusOK)
}
