package request

import (
	"context"
	"fmt"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/did"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

type Service struct {
	storage *Storage
	config  config.RequestServiceConfig
	clock   clock.Clock
	locks   util.KeyedMutex
}

func (s *Service) Type() framework.Type {
	return framework.Request
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.storage == nil {
		ae.AppendString("no storage configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("request service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.RequestServiceConfig {
	return s.config
}

func NewRequestService(cfg config.RequestServiceConfig, db storage.ServiceStorage, c clock.Clock) (*Service, error) {
	requestStorage, err := NewRequestStorage(db)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate storage for the request service")
	}
	if c == nil {
		c = clock.New()
	}
	return &Service{storage: requestStorage, config: cfg, clock: c}, nil
}

// Lock serialises work on a single request within this process. Callers that change a request through a
// transaction of their own must hold it.
func (s *Service) Lock(id string) (unlock func()) {
	return s.locks.Lock(id)
}

// Create validates and stores a new pending request.
func (s *Service) Create(ctx context.Context, request CreateRequest) (*CredentialRequest, error) {
	logrus.Debugf("creating credential request for: %s", util.SanitizeLog(request.HolderDID))

	if request.HolderDID == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "holderDid")
	}
	if request.CredentialType == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "credentialType")
	}
	if !msgvec.IsSupported(request.CredentialType) {
		return nil, framework.NewErrorf(framework.CodeUnknownCredentialType, "%s", request.CredentialType)
	}
	if request.PriorCredential != nil && request.PriorCredential.ID == "" {
		return nil, framework.NewError(framework.CodeMissingRequiredField, "priorCredential.id")
	}

	didAddress, err := did.AddressFromDID(request.HolderDID)
	if err != nil {
		return nil, framework.WrapError(framework.CodeMalformedDID, err, "holderDid")
	}
	holderAddress := didAddress
	if request.HolderAddress != "" {
		if !did.IsAddress(request.HolderAddress) {
			return nil, framework.NewErrorf(framework.CodeMalformedDID, "holderAddress<%s> is not an address", util.SanitizeLog(request.HolderAddress))
		}
		holderAddress = did.NormalizeAddress(request.HolderAddress)
	}

	r := CredentialRequest{
		ID:              uuid.NewString(),
		HolderDID:       request.HolderDID,
		HolderAddress:   holderAddress,
		HolderName:      request.HolderName,
		CredentialType:  request.CredentialType,
		VerificationID:  request.VerificationID,
		Message:         request.Message,
		PriorCredential: request.PriorCredential,
		Status:          StatusPending,
		CreatedAt:       credential.FormatTime(s.clock.Now()),
	}
	if _, err = s.storage.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		return nil, Save(ctx, tx, r)
	}, r.ID); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not store request")
	}
	return &r, nil
}

func (s *Service) Get(ctx context.Context, request GetRequest) (*CredentialRequest, error) {
	logrus.Debugf("getting credential request: %s", request.ID)
	return s.storage.Get(ctx, request.ID)
}

func (s *Service) ListAll(ctx context.Context) ([]CredentialRequest, error) {
	return s.storage.List(ctx)
}

// ListByHolder matches either the stored holder address or the address embedded in the holder DID, ignoring
// case. A full DID may be passed instead of an address.
func (s *Service) ListByHolder(ctx context.Context, holder string) ([]CredentialRequest, error) {
	all, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	address := holder
	if strings.HasPrefix(holder, "did:") {
		if address, err = did.AddressFromDID(holder); err != nil {
			return nil, framework.WrapError(framework.CodeMalformedDID, err, "holder")
		}
	}

	matched := make([]CredentialRequest, 0)
	for _, r := range all {
		didAddress, _ := did.AddressFromDID(r.HolderDID)
		if did.SameAddress(address, r.HolderAddress) || did.SameAddress(address, didAddress) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]CredentialRequest, error) {
	if !status.IsValid() {
		return nil, framework.NewErrorf(framework.CodeInvalidState, "unknown status: %s", status)
	}
	all, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]CredentialRequest, 0)
	for _, r := range all {
		if r.Status == status {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Transition moves a request along the status machine. Illegal edges fail with InvalidTransition and leave the
// record untouched.
func (s *Service) Transition(ctx context.Context, request TransitionRequest) (*CredentialRequest, error) {
	logrus.Debugf("transitioning request<%s> to %s", request.ID, request.Status)

	unlock := s.Lock(request.ID)
	defer unlock()

	result, err := s.storage.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		return ApplyTransition(ctx, tx, request)
	}, request.ID)
	if err != nil {
		return nil, err
	}
	return result.(*CredentialRequest), nil
}

// Delete removes a request in any status.
func (s *Service) Delete(ctx context.Context, request DeleteRequest) error {
	logrus.Debugf("deleting credential request: %s", request.ID)

	unlock := s.Lock(request.ID)
	defer unlock()

	_, err := s.storage.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		if _, err := Load(ctx, tx, request.ID); err != nil {
			return nil, err
		}
		return nil, tx.Delete(ctx, Namespace, request.ID)
	}, request.ID)
	return err
}
