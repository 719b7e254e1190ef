package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ownership"
)

type OwnershipRouter struct {
	service *ownership.Service
}

func NewOwnershipRouter(s svcframework.Service) (*OwnershipRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	ownershipService, ok := s.(*ownership.Service)
	if !ok {
		return nil, fmt.Errorf("could not create ownership router with service type: %s", s.Type())
	}
	return &OwnershipRouter{service: ownershipService}, nil
}

type CreateChallengeRequest struct {
	// Optional. When set it must match the DID on the request.
	HolderDID string `json:"holderDid,omitempty"`
}

type CreateChallengeResponse struct {
	// ID of the challenge, passed back with the signature.
	NonceID string `json:"nonceId"`
	Nonce   string `json:"nonce"`

	// The exact text the holder signs with personal_sign.
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateChallenge godoc
//
//	@Summary		Create Ownership Challenge
//	@Description	Issues a single use challenge for a pending request. Any earlier challenge for the same request stops
//	@Description	being accepted.
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"ID"
//	@Param			request	body		CreateChallengeRequest	false	"request body"
//	@Success		201		{object}	CreateChallengeResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Failure		409		{string}	string	"Conflict"
//	@Router			/v1/requests/{id}/challenge [put]
func (or OwnershipRouter) CreateChallenge(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot create challenge without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	var body CreateChallengeRequest
	if c.Request.ContentLength > 0 {
		if err := framework.Decode(c.Request, &body); err != nil {
			errMsg := "invalid create challenge request"
			framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
			return
		}
	}

	challenge, err := or.service.RequestChallenge(c, ownership.RequestChallengeRequest{RequestID: *id, HolderDID: body.HolderDID})
	if err != nil {
		errMsg := fmt.Sprintf("could not create challenge for request: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	resp := CreateChallengeResponse{
		NonceID:   challenge.ID,
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt,
	}
	framework.Respond(c, resp, http.StatusCreated)
}

type VerifyOwnershipRequest struct {
	NonceID string `json:"nonceId" validate:"required"`

	// 65 byte personal_sign signature over the challenge message, hex encoded with a 0x prefix.
	Signature string `json:"signature" validate:"required"`
}

// VerifyOwnership godoc
//
//	@Summary		Verify DID Ownership
//	@Description	Checks the holder's signature over the challenge message. On success the challenge is consumed and
//	@Description	the request moves to verified.
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"ID"
//	@Param			request	body		VerifyOwnershipRequest	true	"request body"
//	@Success		200		{object}	request.CredentialRequest
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Failure		409		{string}	string	"Conflict"
//	@Router			/v1/requests/{id}/verification [put]
func (or OwnershipRouter) VerifyOwnership(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot verify ownership without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	var body VerifyOwnershipRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid verify ownership request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	verified, err := or.service.VerifyOwnership(c, ownership.VerifyOwnershipRequest{
		RequestID: *id,
		NonceID:   body.NonceID,
		Signature: body.Signature,
	})
	if err != nil {
		errMsg := fmt.Sprintf("could not verify ownership for request: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, verified, http.StatusOK)
}
