package ledger

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

const namespace = "ledger"

// StorageLedger is an append-mostly anchor registry kept in the service database. Every mutation runs in a
// storage transaction watching the anchor's key.
type StorageLedger struct {
	db    storage.ServiceStorage
	clock clock.Clock
}

func NewStorageLedger(db storage.ServiceStorage) (*StorageLedger, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	return &StorageLedger{db: db, clock: clock.New()}, nil
}

// WithClock replaces the clock timestamps are taken from.
func (l *StorageLedger) WithClock(c clock.Clock) *StorageLedger {
	l.clock = c
	return l
}

func (l *StorageLedger) Anchor(ctx context.Context, hash, ref string) error {
	if hash == "" || ref == "" {
		return framework.NewError(framework.CodeMissingRequiredField, "hash and ref are required")
	}
	_, err := l.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		existing, err := readAnchor(ctx, tx, hash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Ref == ref {
				return nil, nil
			}
			return nil, framework.NewErrorf(framework.CodeAnchorConflict, "hash<%s> is anchored to a different reference", hash)
		}
		return nil, writeAnchor(ctx, tx, Anchor{
			Hash:       hash,
			Ref:        ref,
			Exists:     true,
			AnchoredAt: credential.FormatTime(l.clock.Now()),
		})
	}, []storage.WatchKey{{Namespace: namespace, Key: hash}})
	return err
}

func (l *StorageLedger) Lookup(ctx context.Context, hash string) (*Anchor, error) {
	b, err := l.db.Read(ctx, namespace, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "reading anchor<%s>", hash)
	}
	if b == nil {
		return &Anchor{Hash: hash}, nil
	}
	var a Anchor
	if err = json.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling anchor<%s>", hash)
	}
	return &a, nil
}

// Revoke marks an anchor revoked. Revoking twice keeps the first reason and time.
func (l *StorageLedger) Revoke(ctx context.Context, hash, reason string) error {
	_, err := l.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		existing, err := readAnchor(ctx, tx, hash)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, framework.NewErrorf(framework.CodeAnchorNotFound, "hash<%s>", hash)
		}
		if existing.Revoked {
			return nil, nil
		}
		existing.Revoked = true
		existing.RevokedReason = reason
		existing.RevokedAt = credential.FormatTime(l.clock.Now())
		return nil, writeAnchor(ctx, tx, *existing)
	}, []storage.WatchKey{{Namespace: namespace, Key: hash}})
	return err
}

func readAnchor(ctx context.Context, tx storage.Tx, hash string) (*Anchor, error) {
	b, err := tx.Read(ctx, namespace, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "reading anchor<%s>", hash)
	}
	if b == nil {
		return nil, nil
	}
	var a Anchor
	if err = json.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling anchor<%s>", hash)
	}
	return &a, nil
}

func writeAnchor(ctx context.Context, tx storage.Tx, a Anchor) error {
	b, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshalling anchor")
	}
	return tx.Write(ctx, namespace, a.Hash, b)
}
