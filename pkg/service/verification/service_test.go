package verification

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/internal/signing"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/blob"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/disclosure"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/issuance"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/keystore"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ledger"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
	"github.com/tbd54566975/ssi-vc-service/pkg/testutil"
)

type fixture struct {
	keyStore     *keystore.Service
	blobs        *blob.Service
	ledger       *ledger.Service
	issuance     *issuance.Service
	disclosure   *disclosure.Service
	verification *Service
}

func newKeyStore(t *testing.T, db storage.ServiceStorage) *keystore.Service {
	keyStore, err := keystore.NewKeyStoreService(config.KeyStoreServiceConfig{
		BaseServiceConfig:  &config.BaseServiceConfig{Name: "keystore"},
		ServiceKeyPassword: "test-password",
	}, db)
	require.NoError(t, err)
	return keyStore
}

func newFixture(t *testing.T, db storage.ServiceStorage) fixture {
	ctx := context.Background()
	keyStore := newKeyStore(t, db)
	blobs, err := blob.NewBlobService(ctx, config.BlobServiceConfig{}, db)
	require.NoError(t, err)
	l, err := ledger.NewLedgerService(config.LedgerServiceConfig{}, db)
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	issuer, err := issuance.NewIssuanceService(config.IssuanceServiceConfig{IssuerDID: "did:web:uni.example"}, keyStore, blobs, l, mock)
	require.NoError(t, err)
	d, err := disclosure.NewDisclosureService(config.DisclosureServiceConfig{}, keyStore, blobs, mock)
	require.NoError(t, err)
	v, err := NewVerificationService(config.VerificationServiceConfig{}, keyStore, blobs, l, d)
	require.NoError(t, err)
	return fixture{keyStore: keyStore, blobs: blobs, ledger: l, issuance: issuer, disclosure: d, verification: v}
}

func (f fixture) issue(t *testing.T) *issuance.IssueResponse {
	return f.issueArtifact(t, []byte("transcript"))
}

func (f fixture) issueArtifact(t *testing.T, artifact []byte) *issuance.IssueResponse {
	issued, err := f.issuance.Issue(context.Background(), issuance.IssueRequest{
		CredentialType: msgvec.StudentID,
		Subject: map[string]any{
			"id":          "did:ethr:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23",
			"name":        "Ann",
			"rollNumber":  "R1",
			"dateOfBirth": "2001-01-01",
			"department":  "Physics",
		},
		Artifact: artifact,
	})
	require.NoError(t, err)
	return issued
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestVerifyCredential(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, test.ServiceStorage(t))
			issued := f.issue(t)

			t.Run("by reference", func(t *testing.T) {
				result, err := f.verification.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef})
				require.NoError(t, err)
				assert.Equal(t, credential.KindCredential, result.Kind)
				assert.True(t, result.StorageValid)
				assert.True(t, result.StructureValid)
				assert.True(t, result.SignatureChecked)
				assert.True(t, result.SignatureValid)
				assert.True(t, result.LedgerValid)
				assert.True(t, result.HashMatch)
				assert.False(t, result.Revoked)
				assert.True(t, result.Verified, result.Reasons)
				assert.Equal(t, issued.DocumentHash, result.DocumentHash)
				require.NotNil(t, result.Credential)
				assert.Equal(t, "R1", result.Credential.CredentialSubject["rollNumber"])
			})

			t.Run("unknown reference", func(t *testing.T) {
				result, err := f.verification.Verify(ctx, VerifyRequest{Ref: blob.Ref([]byte("nothing"))})
				require.NoError(t, err)
				assert.False(t, result.StorageValid)
				assert.False(t, result.Verified)
				assert.NotEmpty(t, result.Reasons)
			})

			t.Run("tampered subject", func(t *testing.T) {
				tampered := issued.Credential
				tampered.CredentialSubject = map[string]any{}
				for k, v := range issued.Credential.CredentialSubject {
					tampered.CredentialSubject[k] = v
				}
				tampered.CredentialSubject["department"] = "Chemistry"

				result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, tampered)})
				require.NoError(t, err)
				assert.True(t, result.StructureValid)
				assert.True(t, result.LedgerValid)
				assert.True(t, result.SignatureChecked)
				assert.False(t, result.SignatureValid)
				assert.False(t, result.Verified)
			})

			t.Run("supplied key from another issuer", func(t *testing.T) {
				other, _, err := signing.GenerateKeyPair()
				require.NoError(t, err)
				result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, issued.Credential), PublicKey: other})
				require.NoError(t, err)
				assert.False(t, result.SignatureValid)
				assert.False(t, result.Verified)
			})

			t.Run("supplied hash must match", func(t *testing.T) {
				result, err := f.verification.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef, DocumentHash: "00ff"})
				require.NoError(t, err)
				assert.False(t, result.HashMatch)
				assert.False(t, result.Verified)
			})

			t.Run("revoked", func(t *testing.T) {
				require.NoError(t, f.issuance.Revoke(ctx, issuance.RevokeRequest{DocumentHash: issued.DocumentHash, Reason: "withdrawn"}))
				result, err := f.verification.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef})
				require.NoError(t, err)
				assert.True(t, result.SignatureValid)
				assert.True(t, result.Revoked)
				assert.Equal(t, "withdrawn", result.RevokedReason)
				assert.False(t, result.Verified)
			})
		})
	}
}

func TestVerifyInputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))

	_, err := f.verification.Verify(ctx, VerifyRequest{})
	assert.ErrorIs(t, err, framework.ErrMissingRequiredField)

	result, err := f.verification.Verify(ctx, VerifyRequest{Credential: json.RawMessage(`{"type":["VerifiableCredential"]}`)})
	require.NoError(t, err)
	assert.True(t, result.StorageValid)
	assert.False(t, result.StructureValid)
	assert.False(t, result.Verified)

	result, err = f.verification.Verify(ctx, VerifyRequest{Credential: json.RawMessage(`not json`)})
	require.NoError(t, err)
	assert.False(t, result.Verified)
}

func TestVerifyUnanchored(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDatabases[0].ServiceStorage(t)
	f := newFixture(t, db)
	issued := f.issue(t)

	// a second ledger on a fresh database has never seen the hash
	empty, err := ledger.NewLedgerService(config.LedgerServiceConfig{}, testutil.TestDatabases[0].ServiceStorage(t))
	require.NoError(t, err)
	v, err := NewVerificationService(config.VerificationServiceConfig{}, f.keyStore, f.blobs, empty, f.disclosure)
	require.NoError(t, err)

	result, err := v.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef})
	require.NoError(t, err)
	assert.True(t, result.SignatureValid)
	assert.False(t, result.LedgerValid)
	assert.False(t, result.HashMatch)
	assert.False(t, result.Verified)
}

func TestVerifySignatureGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))
	issued := f.issue(t)

	// a verifier whose key store does not know the issuer
	stranger := newKeyStore(t, testutil.TestDatabases[0].ServiceStorage(t))

	permissive, err := NewVerificationService(config.VerificationServiceConfig{}, stranger, f.blobs, f.ledger, f.disclosure)
	require.NoError(t, err)
	result, err := permissive.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef})
	require.NoError(t, err)
	assert.False(t, result.SignatureChecked)
	assert.True(t, result.Verified)

	strict, err := NewVerificationService(config.VerificationServiceConfig{RequireSignature: true}, stranger, f.blobs, f.ledger, f.disclosure)
	require.NoError(t, err)
	result, err = strict.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef})
	require.NoError(t, err)
	assert.False(t, result.SignatureChecked)
	assert.False(t, result.Verified)

	pub, err := f.keyStore.GetPublicKey(ctx, issued.Credential.Proof.VerificationMethod)
	require.NoError(t, err)
	result, err = strict.Verify(ctx, VerifyRequest{Ref: issued.CredentialRef, PublicKey: pub})
	require.NoError(t, err)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.Verified)
}

func TestVerifyFallbackSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))
	issued := f.issue(t)

	cred := issued.Credential
	secret, err := f.keyStore.HMACSecret(ctx, cred.Proof.VerificationMethod)
	require.NoError(t, err)
	vec, err := cred.Encode()
	require.NoError(t, err)
	sig, err := signing.SignFallback(vec.Messages, secret)
	require.NoError(t, err)
	proof := *cred.Proof
	proof.Type = sig.Type()
	proof.ProofValue = signing.EncodeProofValue(sig)
	cred.Proof = &proof

	result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, cred)})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, result.SignatureValid)
	assert.True(t, result.Verified)
	assert.Equal(t, signing.FallbackSignatureType, result.ProofMetadata.Type)
}

func TestVerifyPresentation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))
	issued := f.issue(t)

	p, err := f.disclosure.Derive(ctx, disclosure.DeriveRequest{CredentialRef: issued.CredentialRef, DisclosedFields: []string{"name", "department"}})
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, p)})
		require.NoError(t, err)
		assert.Equal(t, credential.KindPresentation, result.Kind)
		assert.True(t, result.SignatureValid)
		assert.True(t, result.LedgerValid)
		assert.True(t, result.Verified, result.Reasons)
		assert.Nil(t, result.Credential)
		assert.Equal(t, map[string]any{"name": "Ann", "department": "Physics", "documentHash": issued.DocumentHash}, result.Disclosed)
		assert.Equal(t, []string{"name", "department", "documentHash"}, result.ProofMetadata.DisclosedFields)

		out := string(mustJSON(t, result))
		for _, hidden := range []string{"rollNumber", "2001-01-01", "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"} {
			assert.NotContains(t, out, hidden)
		}
	})

	t.Run("smuggled attribute is never echoed", func(t *testing.T) {
		var padded credential.Presentation
		require.NoError(t, json.Unmarshal(mustJSON(t, p), &padded))
		padded.VerifiableCredential.CredentialSubject["rollNumber"] = "R1"

		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, padded)})
		require.NoError(t, err)
		assert.False(t, result.SignatureValid)
		assert.False(t, result.Verified)
		assert.NotContains(t, result.Disclosed, "rollNumber")
	})

	t.Run("stored by reference", func(t *testing.T) {
		ref, err := f.blobs.Put(ctx, mustJSON(t, p))
		require.NoError(t, err)
		result, err := f.verification.Verify(ctx, VerifyRequest{Ref: ref})
		require.NoError(t, err)
		assert.True(t, result.Verified, result.Reasons)
	})
}

func TestVerifyPresentationRevocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.TestDatabases[0].ServiceStorage(t))
	revoked := f.issueArtifact(t, []byte("transcript 2023"))
	current := f.issueArtifact(t, []byte("transcript 2024"))
	require.NotEqual(t, revoked.DocumentHash, current.DocumentHash)
	require.NoError(t, f.issuance.Revoke(ctx, issuance.RevokeRequest{DocumentHash: revoked.DocumentHash, Reason: "withdrawn"}))

	p, err := f.disclosure.Derive(ctx, disclosure.DeriveRequest{CredentialRef: revoked.CredentialRef, DisclosedFields: []string{"name", "department"}})
	require.NoError(t, err)
	assert.Equal(t, revoked.DocumentHash, p.VerifiableCredential.DocumentHash)

	t.Run("revoked original", func(t *testing.T) {
		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, p)})
		require.NoError(t, err)
		assert.True(t, result.SignatureValid)
		assert.True(t, result.Revoked)
		assert.False(t, result.Verified)
	})

	t.Run("original reference pointed at another credential", func(t *testing.T) {
		swapped := *p
		vc := *p.VerifiableCredential
		proof := *vc.Proof
		proof.OriginalRef = current.CredentialRef
		vc.Proof = &proof
		swapped.VerifiableCredential = &vc

		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, swapped)})
		require.NoError(t, err)
		assert.Equal(t, revoked.DocumentHash, result.DocumentHash)
		assert.True(t, result.Revoked)
		assert.False(t, result.Verified)
	})

	t.Run("document hash swapped for another credential", func(t *testing.T) {
		swapped := *p
		vc := *p.VerifiableCredential
		vc.DocumentHash = current.DocumentHash
		swapped.VerifiableCredential = &vc

		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, swapped)})
		require.NoError(t, err)
		assert.False(t, result.SignatureValid)
		assert.False(t, result.Verified)
	})

	t.Run("hidden document hash", func(t *testing.T) {
		hidden := *p
		vc := *p.VerifiableCredential
		proof := *vc.Proof
		proof.DisclosedFields = []string{"name", "department"}
		vc.Proof = &proof
		vc.DocumentHash = ""
		hidden.VerifiableCredential = &vc

		result, err := f.verification.Verify(ctx, VerifyRequest{Credential: mustJSON(t, hidden)})
		require.NoError(t, err)
		assert.False(t, result.LedgerValid)
		assert.False(t, result.Verified)
	})
}
