package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/review"
)

type ReviewRouter struct {
	service *review.Service
}

func NewReviewRouter(s svcframework.Service) (*ReviewRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	reviewService, ok := s.(*review.Service)
	if !ok {
		return nil, fmt.Errorf("could not create review router with service type: %s", s.Type())
	}
	return &ReviewRouter{service: reviewService}, nil
}

type ReviewCredentialRequestRequest struct {
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Subject attributes for the credential. The holder's DID and name from the request fill `id` and `name`
	// when they are not given here.
	CredentialSubject map[string]any `json:"credentialSubject,omitempty"`

	// Base64 encoded document the credential attests to. Defaults to the subject itself.
	Artifact []byte `json:"artifact,omitempty"`
}

func (r ReviewCredentialRequestRequest) ToServiceRequest(id string) review.ReviewRequest {
	return review.ReviewRequest{
		ID:       id,
		Approved: r.Approved,
		Reviewer: r.Reviewer,
		Reason:   r.Reason,
		Subject:  r.CredentialSubject,
		Artifact: r.Artifact,
	}
}

// ReviewCredentialRequest godoc
//
//	@Summary		Review Credential Request
//	@Description	Approves or rejects a verified request. Approval issues, stores and anchors the credential.
//	@Tags			RequestAPI
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"ID"
//	@Param			request	body		ReviewCredentialRequestRequest	true	"request body"
//	@Success		200		{object}	review.ReviewResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		404		{string}	string	"Not found"
//	@Failure		409		{string}	string	"Conflict"
//	@Failure		502		{string}	string	"Blob store failure"
//	@Router			/v1/requests/{id}/review [put]
func (rr ReviewRouter) ReviewCredentialRequest(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot review credential request without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	var body ReviewCredentialRequestRequest
	if err := framework.Decode(c.Request, &body); err != nil {
		errMsg := "invalid review credential request request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	reviewed, err := rr.service.Review(c, body.ToServiceRequest(*id))
	if err != nil {
		errMsg := fmt.Sprintf("could not review credential request: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, reviewed, http.StatusOK)
}
