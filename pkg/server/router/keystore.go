package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/keystore"
)

type KeyStoreRouter struct {
	service *keystore.Service
}

func NewKeyStoreRouter(s svcframework.Service) (*KeyStoreRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	keyStoreService, ok := s.(*keystore.Service)
	if !ok {
		return nil, fmt.Errorf("could not create key store router with service type: %s", s.Type())
	}
	return &KeyStoreRouter{service: keyStoreService}, nil
}

type CreateIssuerKeyRequest struct {
	// DID of the issuer that will control the key. The key id is the DID followed by `#key-1`.
	Controller string `json:"controller" validate:"required,did"`
}

type GetKeyDetailsResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Controller string `json:"controller"`

	// Base58 encoding of the marshalled BBS+ public key.
	PublicKeyBase58 string `json:"publicKeyBase58"`

	// Represents the time at which the key was created. Encoded according to RFC3339.
	CreatedAt string `json:"createdAt"`
}

func toKeyDetailsResponse(d *keystore.GetKeyDetailsResponse) GetKeyDetailsResponse {
	return GetKeyDetailsResponse{
		ID:              d.ID,
		Type:            d.KeyType,
		Controller:      d.Controller,
		PublicKeyBase58: d.PublicKeyBase58,
		CreatedAt:       d.CreatedAt,
	}
}

// CreateIssuerKey godoc
//
//	@Summary		Create Issuer Key
//	@Description	Generates a new BBS+ key pair for an issuer, replacing any key the issuer already has. Credentials
//	@Description	signed with the replaced key no longer verify against the stored key.
//	@Tags			KeyStoreAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateIssuerKeyRequest	true	"request body"
//	@Success		201		{object}	GetKeyDetailsResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		500		{string}	string	"Internal server error"
//	@Router			/v1/keys [put]
func (ksr *KeyStoreRouter) CreateIssuerKey(c *gin.Context) {
	var request CreateIssuerKeyRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		errMsg := "invalid create issuer key request"
		framework.LoggingRespondErrWithMsg(c, err, errMsg, http.StatusBadRequest)
		return
	}

	created, err := ksr.service.GenerateIssuerKey(c, keystore.GenerateIssuerKeyRequest{Controller: request.Controller})
	if err != nil {
		errMsg := fmt.Sprintf("could not create issuer key for: %s", request.Controller)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, toKeyDetailsResponse(created), http.StatusCreated)
}

// GetKeyDetails godoc
//
//	@Summary		Get Details For Key
//	@Description	Get details about a stored key, including its public key. Private material is never returned.
//	@Tags			KeyStoreAPI
//	@Accept			json
//	@Produce		json
//	@Param			id	path		string	true	"ID of the key to get"
//	@Success		200	{object}	GetKeyDetailsResponse
//	@Failure		400	{string}	string	"Bad request"
//	@Failure		404	{string}	string	"Not found"
//	@Router			/v1/keys/{id} [get]
func (ksr *KeyStoreRouter) GetKeyDetails(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		errMsg := "cannot get key details without ID parameter"
		framework.LoggingRespondErrMsg(c, errMsg, http.StatusBadRequest)
		return
	}

	gotKeyDetails, err := ksr.service.GetKeyDetails(c, keystore.GetKeyDetailsRequest{ID: *id})
	if err != nil {
		errMsg := fmt.Sprintf("could not get key details for id: %s", *id)
		framework.LoggingRespondServiceErr(c, err, errMsg)
		return
	}

	framework.Respond(c, toKeyDetailsResponse(gotKeyDetails), http.StatusOK)
}
