package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/did"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/nonce"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
	"github.com/tbd54566975/ssi-vc-service/pkg/testutil"
)

type fixture struct {
	clock     *clock.Mock
	requests  *request.Service
	ownership *Service
	holderKey *secp256k1.PrivateKey
	holderDID string
}

func newFixture(t *testing.T, db storage.ServiceStorage) fixture {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	requests, err := request.NewRequestService(config.RequestServiceConfig{}, db, mock)
	require.NoError(t, err)
	nonces, err := nonce.NewNonceService(config.NonceServiceConfig{}, db, requests, mock)
	require.NoError(t, err)
	ownership, err := NewOwnershipService(db, requests, nonces, mock)
	require.NoError(t, err)

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return fixture{
		clock:     mock,
		requests:  requests,
		ownership: ownership,
		holderKey: key,
		holderDID: "did:ethr:" + did.PublicKeyToAddress(key.PubKey()),
	}
}

func (f fixture) newRequest(t *testing.T) *request.CredentialRequest {
	r, err := f.requests.Create(context.Background(), request.CreateRequest{HolderDID: f.holderDID, CredentialType: msgvec.StudentID})
	require.NoError(t, err)
	return r
}

func TestOwnershipProtocol(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("happy path then replay", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)

				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID, HolderDID: f.holderDID})
				require.NoError(t, err)
				sig := did.SignPersonalMessage(f.holderKey, c.Message)

				verified, err := f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID, Signature: sig})
				require.NoError(t, err)
				assert.Equal(t, request.StatusVerified, verified.Status)
				assert.Equal(t, "2024-05-06T07:08:09.000Z", verified.VerifiedAt)
				assert.True(t, did.SameAddress(verified.HolderAddress, verified.RecoveredAddress))
				assert.Equal(t, sig, verified.Signature)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID, Signature: sig})
				assert.ErrorIs(t, err, framework.ErrNonceAlreadyUsed)
			})

			t.Run("wrong signer leaves the request pending and retryable", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)

				intruder, err := secp256k1.GeneratePrivateKey()
				require.NoError(t, err)
				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   c.ID,
					Signature: did.SignPersonalMessage(intruder, c.Message),
				})
				assert.ErrorIs(t, err, framework.ErrOwnershipMismatch)

				stored, err := f.requests.Get(ctx, request.GetRequest{ID: r.ID})
				require.NoError(t, err)
				assert.Equal(t, request.StatusPending, stored.Status)
				assert.Empty(t, stored.RecoveredAddress)

				// the same challenge still works for the real holder
				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   c.ID,
					Signature: did.SignPersonalMessage(f.holderKey, c.Message),
				})
				assert.NoError(t, err)
			})

			t.Run("signature over a different message", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   c.ID,
					Signature: did.SignPersonalMessage(f.holderKey, c.Message+" "),
				})
				assert.ErrorIs(t, err, framework.ErrOwnershipMismatch)
			})

			t.Run("malformed signature", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID, Signature: "0xdeadbeef"})
				assert.ErrorIs(t, err, framework.ErrInvalidSignature)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID})
				assert.ErrorIs(t, err, framework.ErrMissingRequiredField)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: "missing", Signature: "0x00"})
				assert.ErrorIs(t, err, framework.ErrNonceNotFound)
			})

			t.Run("used challenge with an unreadable signature", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)
				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   c.ID,
					Signature: did.SignPersonalMessage(f.holderKey, c.Message),
				})
				require.NoError(t, err)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID, Signature: "0xdeadbeef"})
				assert.ErrorIs(t, err, framework.ErrNonceAlreadyUsed)
				assert.NotErrorIs(t, err, framework.ErrInvalidSignature)
			})

			t.Run("expired challenge", func(t *testing.T) {
				f := newFixture(t, test.ServiceStorage(t))
				r := f.newRequest(t)
				c, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)

				f.clock.Add(config.DefaultNonceTTL + time.Second)
				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   c.ID,
					Signature: did.SignPersonalMessage(f.holderKey, c.Message),
				})
				assert.ErrorIs(t, err, framework.ErrNonceExpired)

				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{RequestID: r.ID, NonceID: c.ID, Signature: "0xdeadbeef"})
				assert.ErrorIs(t, err, framework.ErrNonceExpired)

				// a fresh challenge recovers the request
				fresh, err := f.ownership.RequestChallenge(ctx, RequestChallengeRequest{RequestID: r.ID})
				require.NoError(t, err)
				_, err = f.ownership.VerifyOwnership(ctx, VerifyOwnershipRequest{
					RequestID: r.ID,
					NonceID:   fresh.ID,
					Signature: did.SignPersonalMessage(f.holderKey, fresh.Message),
				})
				assert.NoError(t, err)
			})
		})
	}
}
