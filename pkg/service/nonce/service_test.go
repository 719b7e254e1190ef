package nonce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
	"github.com/tbd54566975/ssi-vc-service/pkg/testutil"
)

const (
	holderDID     = "did:ethr:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
	holderAddress = "0x2C7536E3605D9C16A7A3D7B1898E529396A65C23"
)

type fixture struct {
	clock    *clock.Mock
	db       storage.ServiceStorage
	requests *request.Service
	nonces   *Service
}

func newFixture(t *testing.T, db storage.ServiceStorage) fixture {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	requests, err := request.NewRequestService(config.RequestServiceConfig{}, db, mock)
	require.NoError(t, err)
	nonces, err := NewNonceService(config.NonceServiceConfig{ProtocolName: "Test Protocol"}, db, requests, mock)
	require.NoError(t, err)
	return fixture{clock: mock, db: db, requests: requests, nonces: nonces}
}

func (f fixture) newRequest(t *testing.T) *request.CredentialRequest {
	r, err := f.requests.Create(context.Background(), request.CreateRequest{HolderDID: holderDID, CredentialType: msgvec.StudentID})
	require.NoError(t, err)
	return r
}

func TestBuildMessage(t *testing.T) {
	expires := time.Date(2024, 5, 6, 7, 13, 9, 0, time.UTC)
	msg := BuildMessage("SSI VC Service", "ab12", "req-1", holderDID, expires)
	expected := "SSI VC Service DID Ownership Proof\n\n" +
		"Nonce: ab12\n" +
		"Request ID: req-1\n" +
		"Action: Prove DID Ownership\n" +
		"Expires: 2024-05-06T07:13:09.000Z\n\n" +
		"Sign this message to verify you own: " + holderDID
	assert.Equal(t, expected, msg)
}

func TestNonceService(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("issue", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)

				c, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID, HolderDID: holderDID})
				require.NoError(t, err)
				assert.Len(t, c.Nonce, 2*NonceSize)
				assert.Equal(t, f.clock.Now().UTC().Add(config.DefaultNonceTTL), c.ExpiresAt)
				assert.True(t, strings.HasPrefix(c.Message, "Test Protocol DID Ownership Proof"))
				assert.Contains(t, c.Message, "Nonce: "+c.Nonce)
				assert.Contains(t, c.Message, "Request ID: "+r.ID)
				assert.Contains(t, c.Message, "Expires: 2024-05-06T07:13:09.000Z")

				stored, err := f.requests.Get(ctx, request.GetRequest{ID: r.ID})
				require.NoError(t, err)
				assert.Equal(t, c.ID, stored.NonceID)
				assert.Equal(t, request.StatusPending, stored.Status)

				got, err := f.nonces.Get(ctx, c.ID)
				require.NoError(t, err)
				assert.Equal(t, c.Message, got.Message)

				_, err = f.nonces.Issue(ctx, IssueRequest{RequestID: "missing"})
				assert.ErrorIs(t, err, framework.ErrRequestNotFound)

				_, err = f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID, HolderDID: "did:ethr:0x1111111111111111111111111111111111111111"})
				assert.ErrorIs(t, err, framework.ErrMalformedDID)

				_, err = f.nonces.Get(ctx, "missing")
				assert.ErrorIs(t, err, framework.ErrNonceNotFound)
			})

			t.Run("consume once", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				consumed, err := f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, Signature: "0xsig", RecoveredAddress: holderAddress})
				require.NoError(t, err)
				assert.True(t, consumed.Used)
				assert.Equal(t, "0xsig", consumed.Signature)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, Signature: "0xsig", RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrNonceAlreadyUsed)
			})

			t.Run("concurrent consumers", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				const n = 8
				errs := make([]error, n)
				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, errs[i] = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, RecoveredAddress: holderAddress})
					}(i)
				}
				wg.Wait()

				succeeded := 0
				for _, err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					assert.ErrorIs(t, err, framework.ErrNonceAlreadyUsed)
				}
				assert.Equal(t, 1, succeeded)
			})

			t.Run("rejections leave the challenge usable", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				other := f.newRequest(t)
				c, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: "missing", RequestID: r.ID, RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrNonceNotFound)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: "missing", RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrRequestNotFound)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: other.ID, RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrNonceRequestMismatch)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, RecoveredAddress: "0x1111111111111111111111111111111111111111"})
				assert.ErrorIs(t, err, framework.ErrOwnershipMismatch)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, RecoveredAddress: holderAddress})
				assert.NoError(t, err)
			})

			t.Run("expiry wins over a valid signer", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				f.clock.Add(config.DefaultNonceTTL)
				f.clock.Add(time.Millisecond)
				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: c.ID, RequestID: r.ID, RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrNonceExpired)
			})

			t.Run("a new challenge supersedes the old one", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				old, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)
				current, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)
				assert.NotEqual(t, old.Nonce, current.Nonce)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: old.ID, RequestID: r.ID, RecoveredAddress: holderAddress})
				assert.ErrorIs(t, err, framework.ErrNonceSuperseded)

				_, err = f.nonces.Consume(ctx, ConsumeRequest{NonceID: current.ID, RequestID: r.ID, RecoveredAddress: holderAddress})
				assert.NoError(t, err)
			})

			t.Run("only pending requests get challenges", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				_, err := f.requests.Transition(ctx, request.TransitionRequest{ID: r.ID, Status: request.StatusVerified})
				require.NoError(t, err)

				_, err = f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				assert.ErrorIs(t, err, framework.ErrInvalidState)
			})

			t.Run("sweep", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				expiring, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				f.clock.Add(3 * time.Minute)
				fresh, err := f.nonces.Issue(ctx, IssueRequest{RequestID: r.ID})
				require.NoError(t, err)

				removed, err := f.nonces.SweepExpired(ctx)
				require.NoError(t, err)
				assert.Zero(t, removed)

				f.clock.Add(2*time.Minute + time.Second)
				removed, err = f.nonces.SweepExpired(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, removed)

				_, err = f.nonces.Get(ctx, expiring.ID)
				assert.ErrorIs(t, err, framework.ErrNonceNotFound)
				_, err = f.nonces.Get(ctx, fresh.ID)
				assert.NoError(t, err)
			})
		})
	}
}

func TestStartSweeper(t *testing.T) {
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))
	r := f.newRequest(t)
	c, err := f.nonces.Issue(context.Background(), IssueRequest{RequestID: r.ID})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := f.nonces.StartSweeper(ctx)

	f.clock.Add(config.DefaultNonceSweepInterval)
	assert.Eventually(t, func() bool {
		_, err := f.nonces.Get(context.Background(), c.ID)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
