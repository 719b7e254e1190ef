// Package ownership runs the challenge-response protocol a holder uses to prove control of the address in their
// DID. A successful proof consumes the challenge and moves the request to verified in one transaction. Any
// failure leaves the request pending so a new challenge can be requested.
package ownership

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/did"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/nonce"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

type RequestChallengeRequest struct {
	RequestID string
	HolderDID string
}

type VerifyOwnershipRequest struct {
	RequestID string `json:"requestId"`
	NonceID   string `json:"nonceId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type Service struct {
	db       storage.ServiceStorage
	requests *request.Service
	nonces   *nonce.Service
	clock    clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.Ownership
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.db == nil {
		ae.AppendString("no storage configured")
	}
	if s.requests == nil {
		ae.AppendString("no request service configured")
	}
	if s.nonces == nil {
		ae.AppendString("no nonce service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("ownership service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewOwnershipService(db storage.ServiceStorage, requests *request.Service, nonces *nonce.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	service := Service{db: db, requests: requests, nonces: nonces, clock: c}
	if !service.Status().IsReady() {
		return nil, sdkutil.LoggingNewError(service.Status().Message)
	}
	return &service, nil
}

// RequestChallenge issues a new challenge for a pending request, superseding any earlier one.
func (s *Service) RequestChallenge(ctx context.Context, req RequestChallengeRequest) (*nonce.Challenge, error) {
	return s.nonces.Issue(ctx, nonce.IssueRequest{RequestID: req.RequestID, HolderDID: req.HolderDID})
}

// VerifyOwnership checks the holder's signature over the challenge message and, if the signer controls the
// request's DID, marks the request verified.
func (s *Service) VerifyOwnership(ctx context.Context, req VerifyOwnershipRequest) (*request.CredentialRequest, error) {
	logrus.Debugf("verifying ownership for request<%s> with challenge<%s>", req.RequestID, req.NonceID)

	if req.Signature == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "signature")
	}
	challenge, err := s.nonces.Get(ctx, req.NonceID)
	if err != nil {
		return nil, err
	}
	// An unrecoverable signature is only reported once the challenge itself has passed every check.
	recovered, recoverErr := did.RecoverAddress(challenge.Message, req.Signature)

	unlockNonce := s.nonces.Lock(req.NonceID)
	defer unlockNonce()
	unlockRequest := s.requests.Lock(req.RequestID)
	defer unlockRequest()

	result, err := s.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		if _, _, err := s.nonces.ConsumeTx(ctx, tx, nonce.ConsumeRequest{
			NonceID:          req.NonceID,
			RequestID:        req.RequestID,
			Signature:        req.Signature,
			RecoveredAddress: recovered,
		}); err != nil {
			if recoverErr != nil && errors.Is(err, framework.ErrOwnershipMismatch) {
				return nil, framework.WrapError(framework.CodeInvalidSignature, recoverErr, "could not recover signer")
			}
			return nil, err
		}
		return request.ApplyTransition(ctx, tx, request.TransitionRequest{
			ID:     req.RequestID,
			Status: request.StatusVerified,
			Apply: func(r *request.CredentialRequest) error {
				r.VerifiedAt = credential.FormatTime(s.clock.Now())
				r.RecoveredAddress = recovered
				r.Signature = req.Signature
				return nil
			},
		})
	}, []storage.WatchKey{nonce.WatchKey(req.NonceID), request.WatchKey(req.RequestID)})
	if err != nil {
		logrus.WithError(err).Infof("ownership proof for request<%s> rejected", req.RequestID)
		return nil, err
	}
	return result.(*request.CredentialRequest), nil
}
