package nonce

import (
	"context"
	"fmt"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/did"
	"github.com/tbd54566975/ssi-vc-service/internal/util"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

const namespace = "nonce"

type Service struct {
	db       storage.ServiceStorage
	requests *request.Service
	config   config.NonceServiceConfig
	clock    clock.Clock
	locks    util.KeyedMutex
}

func (s *Service) Type() framework.Type {
	return framework.Nonce
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.db == nil {
		ae.AppendString("no storage configured")
	}
	if s.requests == nil {
		ae.AppendString("no request service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("nonce service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s *Service) Config() config.NonceServiceConfig {
	return s.config
}

func NewNonceService(cfg config.NonceServiceConfig, db storage.ServiceStorage, requests *request.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	if cfg.ProtocolName == "" {
		cfg.ProtocolName = config.DefaultProtocolName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = config.DefaultNonceTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = config.DefaultNonceSweepInterval
	}
	service := Service{db: db, requests: requests, config: cfg, clock: c}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// WatchKey is the key a transaction touching challenge id must watch.
func WatchKey(id string) storage.WatchKey {
	return storage.WatchKey{Namespace: namespace, Key: id}
}

// Lock serialises consumers of a single challenge within this process.
func (s *Service) Lock(id string) (unlock func()) {
	return s.locks.Lock(id)
}

// Issue creates a challenge for a pending request and makes it the request's only authoritative nonce. The
// challenge and the request update are written in one transaction.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Challenge, error) {
	logrus.Debugf("issuing challenge for request: %s", req.RequestID)

	unlock := s.requests.Lock(req.RequestID)
	defer unlock()

	nonceValue, err := util.RandomHex(NonceSize)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not generate nonce")
	}
	id := uuid.NewString()

	result, err := s.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		r, err := request.Load(ctx, tx, req.RequestID)
		if err != nil {
			return nil, err
		}
		if r.Status != request.StatusPending {
			return nil, framework.NewErrorf(framework.CodeInvalidState, "request<%s> is %s", r.ID, r.Status)
		}
		if req.HolderDID != "" && !strings.EqualFold(req.HolderDID, r.HolderDID) {
			return nil, framework.NewErrorf(framework.CodeMalformedDID, "holderDid does not match request<%s>", r.ID)
		}

		now := s.clock.Now().UTC()
		expiresAt := now.Add(s.config.TTL)
		c := Challenge{
			ID:        id,
			Nonce:     nonceValue,
			RequestID: r.ID,
			HolderDID: r.HolderDID,
			Message:   BuildMessage(s.config.ProtocolName, nonceValue, r.ID, r.HolderDID, expiresAt),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
		if err = write(ctx, tx, c); err != nil {
			return nil, err
		}
		if _, err = request.ApplyTransition(ctx, tx, request.TransitionRequest{
			ID:     r.ID,
			Status: request.StatusPending,
			Apply: func(r *request.CredentialRequest) error {
				r.NonceID = c.ID
				return nil
			},
		}); err != nil {
			return nil, err
		}
		return &c, nil
	}, []storage.WatchKey{request.WatchKey(req.RequestID), WatchKey(id)})
	if err != nil {
		return nil, err
	}
	return result.(*Challenge), nil
}

// Consume marks a challenge used after checking it against the request and the recovered signer. Each
// challenge can be consumed once.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*Challenge, error) {
	unlockNonce := s.Lock(req.NonceID)
	defer unlockNonce()
	unlockRequest := s.requests.Lock(req.RequestID)
	defer unlockRequest()

	result, err := s.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		c, _, err := s.ConsumeTx(ctx, tx, req)
		return c, err
	}, []storage.WatchKey{WatchKey(req.NonceID), request.WatchKey(req.RequestID)})
	if err != nil {
		return nil, err
	}
	return result.(*Challenge), nil
}

// ConsumeTx is Consume within a caller's transaction. The caller must hold the challenge and request locks and
// watch both keys.
func (s *Service) ConsumeTx(ctx context.Context, tx storage.Tx, req ConsumeRequest) (*Challenge, *request.CredentialRequest, error) {
	logrus.Debugf("consuming challenge<%s> for request<%s>", req.NonceID, req.RequestID)

	c, err := read(ctx, tx, req.NonceID)
	if err != nil {
		return nil, nil, err
	}
	r, err := request.Load(ctx, tx, req.RequestID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now().UTC()
	switch {
	case c.RequestID != r.ID:
		return nil, nil, framework.NewErrorf(framework.CodeNonceRequestMismatch, "challenge<%s> was not issued for request<%s>", c.ID, r.ID)
	case r.NonceID != c.ID:
		return nil, nil, framework.NewErrorf(framework.CodeNonceSuperseded, "challenge<%s> has been replaced", c.ID)
	case c.Used:
		return nil, nil, framework.NewErrorf(framework.CodeNonceAlreadyUsed, "challenge<%s>", c.ID)
	case c.ExpiredAt(now):
		return nil, nil, framework.NewErrorf(framework.CodeNonceExpired, "challenge<%s> expired at %s", c.ID, c.ExpiresAt)
	}

	didAddress, err := did.AddressFromDID(r.HolderDID)
	if err != nil || !did.SameAddress(didAddress, req.RecoveredAddress) {
		return nil, nil, framework.NewErrorf(framework.CodeOwnershipMismatch, "signer<%s> does not control %s", util.SanitizeLog(req.RecoveredAddress), r.HolderDID)
	}

	c.Used = true
	c.UsedAt = now
	c.Signature = req.Signature
	if err = write(ctx, tx, *c); err != nil {
		return nil, nil, err
	}
	return c, r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Challenge, error) {
	b, err := s.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get challenge: %s", id)
	}
	if b == nil {
		return nil, framework.NewErrorf(framework.CodeNonceNotFound, "challenge<%s>", id)
	}
	var c Challenge
	if err = json.Unmarshal(b, &c); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not unmarshal challenge: %s", id)
	}
	return &c, nil
}

// SweepExpired deletes every challenge past its expiry, used or not. It takes no locks: an expired challenge
// can never be consumed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	all, err := s.db.ReadAll(ctx, namespace)
	if err != nil {
		return 0, sdkutil.LoggingErrorMsg(err, "could not read challenges")
	}

	now := s.clock.Now().UTC()
	removed := 0
	for id, b := range all {
		var c Challenge
		if err = json.Unmarshal(b, &c); err != nil {
			logrus.WithError(err).Warnf("skipping unreadable challenge: %s", id)
			continue
		}
		if !c.ExpiredAt(now) {
			continue
		}
		if err = s.db.Delete(ctx, namespace, id); err != nil {
			return removed, sdkutil.LoggingErrorMsgf(err, "could not delete challenge: %s", id)
		}
		removed++
	}
	return removed, nil
}

// StartSweeper runs SweepExpired every sweep interval until ctx is done. The returned channel is closed once the
// sweeper has stopped.
func (s *Service) StartSweeper(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := s.clock.Ticker(s.config.SweepInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.SweepExpired(ctx)
				if err != nil {
					logrus.WithError(err).Error("sweeping expired challenges")
					continue
				}
				logrus.Debugf("swept %d expired challenges", removed)
			}
		}
	}()
	return done
}

func read(ctx context.Context, tx storage.Tx, id string) (*Challenge, error) {
	b, err := tx.Read(ctx, namespace, id)
	if err != nil {
		return nil, errors.Wrapf(err, "reading challenge<%s>", id)
	}
	if b == nil {
		return nil, framework.NewErrorf(framework.CodeNonceNotFound, "challenge<%s>", id)
	}
	var c Challenge
	if err = json.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling challenge<%s>", id)
	}
	return &c, nil
}

func write(ctx context.Context, tx storage.Tx, c Challenge) error {
	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "marshalling challenge<%s>", c.ID)
	}
	return tx.Write(ctx, namespace, c.ID, b)
}
