package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/testutil"
)

func TestStorageLedger(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()
			mock := clock.NewMock()
			mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

			registry, err := NewStorageLedger(test.ServiceStorage(t))
			require.NoError(t, err)
			service := NewService(config.LedgerServiceConfig{}, registry.WithClock(mock))
			assert.True(t, service.Status().IsReady())

			t.Run("unknown hash does not exist", func(t *testing.T) {
				a, err := service.Lookup(ctx, "feed")
				require.NoError(t, err)
				assert.False(t, a.Exists)
				assert.False(t, a.Revoked)
			})

			t.Run("anchor is idempotent for the same ref", func(t *testing.T) {
				require.NoError(t, service.Anchor(ctx, "abcd", "zRef1"))
				require.NoError(t, service.Anchor(ctx, "abcd", "zRef1"))

				a, err := service.Lookup(ctx, "abcd")
				require.NoError(t, err)
				assert.True(t, a.Exists)
				assert.Equal(t, "zRef1", a.Ref)
				assert.Equal(t, "2024-01-01T00:00:00.000Z", a.AnchoredAt)
			})

			t.Run("anchor conflicts for a different ref", func(t *testing.T) {
				err := service.Anchor(ctx, "abcd", "zRef2")
				assert.ErrorIs(t, err, framework.ErrAnchorConflict)
			})

			t.Run("revoke", func(t *testing.T) {
				err := service.Revoke(ctx, "missing", "why")
				assert.ErrorIs(t, err, framework.ErrAnchorNotFound)

				mock.Add(time.Hour)
				require.NoError(t, service.Revoke(ctx, "abcd", "superseded"))
				mock.Add(time.Hour)
				require.NoError(t, service.Revoke(ctx, "abcd", "again"))

				a, err := service.Lookup(ctx, "abcd")
				require.NoError(t, err)
				assert.True(t, a.Exists)
				assert.True(t, a.Revoked)
				assert.Equal(t, "superseded", a.RevokedReason)
				assert.Equal(t, "2024-01-01T01:00:00.000Z", a.RevokedAt)
			})

			t.Run("missing fields", func(t *testing.T) {
				assert.ErrorIs(t, service.Anchor(ctx, "", "zRef"), framework.ErrMissingRequiredField)
			})
		})
	}
}

type flakyLedger struct {
	failures int32
	calls    int32
	err      error
}

func (f *flakyLedger) Anchor(ctx context.Context, _, _ string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline on ledger call")
	}
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyLedger) Lookup(_ context.Context, hash string) (*Anchor, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return nil, f.err
	}
	return &Anchor{Hash: hash, Exists: true}, nil
}

func (f *flakyLedger) Revoke(_ context.Context, _, _ string) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func immediateRetries(r *RetryingLedger) *RetryingLedger {
	r.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r
}

func TestRetryingLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures are retried", func(t *testing.T) {
		flaky := &flakyLedger{failures: 2, err: errors.New("connection refused")}
		r := immediateRetries(NewRetryingLedger(flaky, time.Second, 3))
		assert.NoError(t, r.Anchor(ctx, "h", "r"))
		assert.EqualValues(t, 3, flaky.calls)
	})

	t.Run("exhausted retries become a ledger failure", func(t *testing.T) {
		flaky := &flakyLedger{failures: 100, err: errors.New("connection refused")}
		r := immediateRetries(NewRetryingLedger(flaky, time.Second, 2))
		_, err := r.Lookup(ctx, "h")
		assert.ErrorIs(t, err, framework.ErrLedgerFailure)
		assert.EqualValues(t, 3, flaky.calls)
	})

	t.Run("service errors are not retried", func(t *testing.T) {
		flaky := &flakyLedger{err: framework.NewError(framework.CodeAnchorNotFound, "h")}
		r := immediateRetries(NewRetryingLedger(flaky, time.Second, 5))
		err := r.Revoke(ctx, "h", "reason")
		assert.ErrorIs(t, err, framework.ErrAnchorNotFound)
		assert.EqualValues(t, 1, flaky.calls)
	})

	t.Run("lookup result is passed through", func(t *testing.T) {
		r := immediateRetries(NewRetryingLedger(&flakyLedger{}, time.Second, 0))
		a, err := r.Lookup(ctx, "h")
		require.NoError(t, err)
		assert.True(t, a.Exists)
	})
}

func TestNewLedgerService(t *testing.T) {
	db := testutil.TestDatabases[0].ServiceStorage(t)
	service, err := NewLedgerService(config.LedgerServiceConfig{Timeout: time.Second, MaxRetries: 1}, db)
	require.NoError(t, err)
	assert.Equal(t, framework.Ledger, service.Type())
	require.NoError(t, service.Anchor(context.Background(), "h", "r"))
	err = service.Anchor(context.Background(), "h", "other")
	assert.ErrorIs(t, err, framework.ErrAnchorConflict)
}
