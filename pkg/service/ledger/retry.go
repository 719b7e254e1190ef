package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

// RetryingLedger retries transient failures of the wrapped ledger with exponential backoff. Every attempt gets
// its own timeout. Errors that carry a service error code are never retried. Anything still failing after the
// last attempt is reported as LedgerFailure.
type RetryingLedger struct {
	ledger     Ledger
	timeout    time.Duration
	maxRetries uint64

	// newBackOff is replaceable for tests
	newBackOff func() backoff.BackOff
}

func NewRetryingLedger(l Ledger, timeout time.Duration, maxRetries uint64) *RetryingLedger {
	return &RetryingLedger{
		ledger:     l,
		timeout:    timeout,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (r *RetryingLedger) Anchor(ctx context.Context, hash, ref string) error {
	return r.do(ctx, "anchor", func(ctx context.Context) error {
		return r.ledger.Anchor(ctx, hash, ref)
	})
}

func (r *RetryingLedger) Lookup(ctx context.Context, hash string) (*Anchor, error) {
	var anchor *Anchor
	err := r.do(ctx, "lookup", func(ctx context.Context) error {
		a, err := r.ledger.Lookup(ctx, hash)
		if err != nil {
			return err
		}
		anchor = a
		return nil
	})
	return anchor, err
}

func (r *RetryingLedger) Revoke(ctx context.Context, hash, reason string) error {
	return r.do(ctx, "revoke", func(ctx context.Context) error {
		return r.ledger.Revoke(ctx, hash, reason)
	})
}

func (r *RetryingLedger) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if _, ok := framework.AsError(err); ok {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logrus.WithError(err).Warnf("ledger %s failed, retrying in %s", op, next)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	err := backoff.RetryNotify(attempt, b, notify)
	if err == nil {
		return nil
	}
	if _, ok := framework.AsError(err); ok {
		return err
	}
	return framework.WrapError(framework.CodeLedgerFailure, err, "ledger "+op)
}
