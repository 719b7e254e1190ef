// Package ledger records the integrity hash of every issued credential alongside the reference of the signed
// credential, and tracks revocation. Anchors are keyed by document hash.
package ledger

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// Anchor is the ledger's view of a document hash.
type Anchor struct {
	Hash          string `json:"hash"`
	Ref           string `json:"ref"`
	Exists        bool   `json:"exists"`
	Revoked       bool   `json:"revoked"`
	RevokedReason string `json:"revokedReason,omitempty"`
	AnchoredAt    string `json:"anchoredAt,omitempty"`
	RevokedAt     string `json:"revokedAt,omitempty"`
}

// Ledger anchors document hashes. Anchor is idempotent for the same reference and fails with AnchorConflict for a
// different one. Lookup of an unknown hash is not an error: it returns an Anchor with Exists unset.
type Ledger interface {
	Anchor(ctx context.Context, hash, ref string) error
	Lookup(ctx context.Context, hash string) (*Anchor, error)
	Revoke(ctx context.Context, hash, reason string) error
}

type Service struct {
	ledger Ledger
	config config.LedgerServiceConfig
}

func (s Service) Type() framework.Type {
	return framework.Ledger
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.ledger == nil {
		ae.AppendString("no ledger configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("ledger service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s Service) Config() config.LedgerServiceConfig {
	return s.config
}

// NewLedgerService builds the storage-backed ledger, wrapped with retries and per call timeouts.
func NewLedgerService(cfg config.LedgerServiceConfig, db storage.ServiceStorage) (*Service, error) {
	registry, err := NewStorageLedger(db)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate ledger storage")
	}
	return NewService(cfg, NewRetryingLedger(registry, cfg.Timeout, cfg.MaxRetries)), nil
}

func NewService(cfg config.LedgerServiceConfig, l Ledger) *Service {
	return &Service{ledger: l, config: cfg}
}

func (s Service) Anchor(ctx context.Context, hash, ref string) error {
	logrus.Debugf("anchoring hash<%s> to ref<%s>", hash, ref)
	return s.ledger.Anchor(ctx, hash, ref)
}

func (s Service) Lookup(ctx context.Context, hash string) (*Anchor, error) {
	logrus.Debugf("looking up hash: %s", hash)
	return s.ledger.Lookup(ctx, hash)
}

func (s Service) Revoke(ctx context.Context, hash, reason string) error {
	logrus.Debugf("revoking hash<%s>: %s", hash, reason)
	return s.ledger.Revoke(ctx, hash, reason)
}
