package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/issuance"
)

type CredentialRouter struct {
	service *issuance.Service
}

func NewCredentialRouter(s svcframework.Service) (*CredentialRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	issuanceService, ok := s.(*issuance.Service)
	if !ok {
		return nil, fmt.Errorf("could not create credential router with service type: %s", s.Type())
	}
	return &CredentialRouter{service: issuanceService}, nil
}

// GetCredential godoc
//
//	@Summary		Get Credential
//	@Description	Fetches a signed credential from the blob store by its content reference
//	@Tags			CredentialAPI
//	@Accept			json
//	@Produce		json
//	@Param			ref	path		string	true	"content reference"
//	@Success		200	{object}	credential.Credential
//	@Failure		400	{string}	string	"Bad request"
//	@Failure		404	{string}	string	"Not found"
//	@Failure		502	{string}	string	"Blob store failure"
//	@Router			/v1/credentials/{ref} [get]
func (cr CredentialRouter) GetCredential(c *gin.Context) {
	ref := framework.GetParam(c, RefParam)
	if ref == nil {
		errMsg := "cannot get credential without ref parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	gotCredential, err := cr.service.GetCredential(c, issuance.GetCredentialRequest{Ref: *ref})
	if err != nil {
		errMsg := fmt.Sprintf("could not get credential with ref: %s", *ref)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, gotCredential, http.StatusOK)
}

type RevokeCredentialRequest struct {
	// Hex encoded SHA-256 of the artifact the credential attests to.
	DocumentHash string `json:"documentHash" validate:"required,sha256hex"`
	Reason       string `json:"reason,omitempty"`
}

type RevokeCredentialResponse struct {
	DocumentHash string `json:"documentHash"`
	Revoked      bool   `json:"revoked"`
}

// RevokeCredential godoc
//
//	@Summary		Revoke Credential
//	@Description	Marks the anchor for a document hash as revoked. Credentials attesting to the document stop verifying.
//	@Tags			CredentialAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RevokeCredentialRequest	true	"request body"
//	@Success		200		{object}	RevokeCredentialResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Failure		502		{string}	string	"Ledger failure"
//	@Router			/v1/credentials/revocation [put]
func (cr CredentialRouter) RevokeCredential(c *gin.Context) {
	var body RevokeCredentialRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid revoke credential request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	if err := cr.service.Revoke(c, issuance.RevokeRequest{DocumentHash: body.DocumentHash, Reason: body.Reason}); err != nil {
		errMsg := fmt.Sprintf("could not revoke document: %s", body.DocumentHash)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, RevokeCredentialResponse{DocumentHash: body.DocumentHash, Revoked: true}, http.StatusOK)
}
