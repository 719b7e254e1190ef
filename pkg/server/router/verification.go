package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/verification"
)

type VerificationRouter struct {
	service *verification.Service
}

func NewVerificationRouter(s svcframework.Service) (*VerificationRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	verificationService, ok := s.(*verification.Service)
	if !ok {
		return nil, fmt.Errorf("could not create verification router with service type: %s", s.Type())
	}
	return &VerificationRouter{service: verificationService}, nil
}

type VerifyRequest struct {
	// Blob store reference of a credential or presentation. Either this or `credential` must be set.
	Ref string `json:"ref,omitempty"`

	// An inline credential or presentation.
	Credential json.RawMessage `json:"credential,omitempty"`

	// Optional. Base58 issuer public key; resolved from the key store when empty.
	PublicKeyBase58 string `json:"publicKeyBase58,omitempty"`

	// Optional. Hex encoded SHA-256 the anchored document is expected to have.
	DocumentHash string `json:"documentHash,omitempty"`
}

func (r VerifyRequest) ToServiceRequest() (*verification.VerifyRequest, error) {
	publicKey, err := decodePublicKey(r.PublicKeyBase58)
	if err != nil {
		return nil, err
	}
	return &verification.VerifyRequest{
		Ref:          r.Ref,
		Credential:   r.Credential,
		PublicKey:    publicKey,
		DocumentHash: r.DocumentHash,
	}, nil
}

// Verify godoc
//
//	@Summary		Verify
//	@Description	Runs the full verification pipeline over a credential or presentation: structure, storage,
//	@Description	signature or proof, and the ledger anchor. Failed checks are reported in the result, not as errors.
//	@Tags			VerificationAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyRequest	true	"request body"
//	@Success		200		{object}	verification.VerificationResult
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		500		{string}	string	"Internal server error"
//	@Router			/v1/verification [put]
func (vr VerificationRouter) Verify(c *gin.Context) {
	var body VerifyRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid verify request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	req, err := body.ToServiceRequest()
	if err != nil {
		errMsg := "could not process verify request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	result, err := vr.service.Verify(c, *req)
	if err != nil {
		errMsg := "could not verify"
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, result, http.StatusOK)
}
