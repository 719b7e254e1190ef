package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
)

type RequestRouter struct {
	service *request.Service
}

func NewRequestRouter(s svcframework.Service) (*RequestRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	requestService, ok := s.(*request.Service)
	if !ok {
		return nil, fmt.Errorf("could not create request router with service type: %s", s.Type())
	}
	return &RequestRouter{service: requestService}, nil
}

type CreateCredentialRequestRequest struct {
	// DID of the holder asking for a credential. Only did:ethr and did:pkh identifiers carrying an
	// Ethereum address are accepted.
	HolderDID string `json:"holderDid" validate:"required,did" example:"did:ethr:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"`

	// Optional. Defaults to the address embedded in `holderDid`.
	HolderAddress string `json:"holderAddress,omitempty"`

	HolderName string `json:"holderName,omitempty"`

	// One of `StudentID` or `AcademicCertificate`.
	CredentialType msgvec.CredentialType `json:"credentialType" validate:"required" example:"StudentID"`

	// Free form identifier of an off-band check, e.g. an enrolment number.
	VerificationID string `json:"verificationId,omitempty"`

	Message string `json:"message,omitempty"`

	// An earlier credential backing this request, e.g. a student id for a certificate.
	PriorCredential *request.PriorCredential `json:"priorCredential,omitempty"`
}

func (r CreateCredentialRequestRequest) ToServiceRequest() request.CreateRequest {
	return request.CreateRequest{
		HolderDID:       r.HolderDID,
		HolderAddress:   r.HolderAddress,
		HolderName:      r.HolderName,
		CredentialType:  r.CredentialType,
		VerificationID:  r.VerificationID,
		Message:         r.Message,
		PriorCredential: r.PriorCredential,
	}
}

// CreateCredentialRequest godoc
//
//	@Summary		Create Credential Request
//	@Description	Stores a holder's request for a credential. The request starts out pending until the holder proves
//	@Description	control of the DID.
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateCredentialRequestRequest	true	"request body"
//	@Success		201		{object}	request.CredentialRequest
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		500		{string}	string	"Internal server error"
//	@Router			/v1/requests [put]
func (rr RequestRouter) CreateCredentialRequest(c *gin.Context) {
	var body CreateCredentialRequestRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid create credential request request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	created, err := rr.service.Create(c, body.ToServiceRequest())
	if err != nil {
		errMsg := "could not create credential request"
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, created, http.StatusCreated)
}

// GetCredentialRequest godoc
//
//	@Summary		Get Credential Request
//	@Description	Get a credential request by its id
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			id	path		string	true	"ID"
//	@Success		200	{object}	request.CredentialRequest
//	@Failure		400	{string}	string	"Bad request"
//	@Failure		404	{string}	string	"Not found"
//	@Router			/v1/requests/{id} [get]
func (rr RequestRouter) GetCredentialRequest(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot get credential request without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	got, err := rr.service.Get(c, request.GetRequest{ID: *id})
	if err != nil {
		errMsg := fmt.Sprintf("could not get credential request with id: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, got, http.StatusOK)
}

type ListCredentialRequestsResponse struct {
	Requests []request.CredentialRequest `json:"requests"`
}

// ListCredentialRequests godoc
//
//	@Summary		List Credential Requests
//	@Description	Lists credential requests. Filter by holder address or DID, or by status. When both are given the
//	@Description	holder filter is applied first.
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			holder	query		string	false	"holder address or DID"
//	@Param			status	query		string	false	"one of pending, verified, approved, rejected"
//	@Success		200		{object}	ListCredentialRequestsResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		500		{string}	string	"Internal server error"
//	@Router			/v1/requests [get]
func (rr RequestRouter) ListCredentialRequests(c *gin.Context) {
	holder := framework.GetQueryValue(c, HolderQuery)
	status := framework.GetQueryValue(c, StatusQuery)
	if status != nil && !request.Status(*status).IsValid() {
		errMsg := fmt.Sprintf("unknown status: %s", *status)
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	var requests []request.CredentialRequest
	var err error
	switch {
	case holder != nil:
		requests, err = rr.service.ListByHolder(c, *holder)
	case status != nil:
		requests, err = rr.service.ListByStatus(c, request.Status(*status))
	default:
		requests, err = rr.service.ListAll(c)
	}
	if err != nil {
		errMsg := "could not list credential requests"
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	if holder != nil && status != nil {
		filtered := make([]request.CredentialRequest, 0, len(requests))
		for _, r := range requests {
			if r.Status == request.Status(*status) {
				filtered = append(filtered, r)
			}
		}
		requests = filtered
	}

	framework.Respond(c, ListCredentialRequestsResponse{Requests: requests}, http.StatusOK)
}

// DeleteCredentialRequest godoc
//
//	@Summary		Delete Credential Request
//	@Description	Removes a credential request in any status
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			id	path		string	true	"ID"
//	@Success		204	{string}	string	"No Content"
//	@Failure		400	{string}	string	"Bad request"
//	@Failure		404	{string}	string	"Not found"
//	@Router			/v1/requests/{id} [delete]
func (rr RequestRouter) DeleteCredentialRequest(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot delete credential request without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	if err := rr.service.Delete(c, request.DeleteRequest{ID: *id}); err != nil {
		errMsg := fmt.Sprintf("could not delete credential request with id: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, nil, http.StatusNoContent)
}
