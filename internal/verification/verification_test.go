package verification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/canonical"
	"certledger/internal/document/textdoc"
	"certledger/internal/issuance"
	keyservice "certledger/internal/keys/service"
	keystore "certledger/internal/keys/store"
	ledgermodels "certledger/internal/ledger/models"
	ledgerstore "certledger/internal/ledger/store"
	"certledger/internal/payload"
	"certledger/internal/signature"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
)

type fixture struct {
	verifier *Service
	issuer   *issuance.Service
	keys     *keyservice.Service
	ledger   *ledgerstore.InMemory
	issuerID id.IssuerID
	seed     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ks := keystore.NewInMemory()
	keys, err := keyservice.New(ks)
	require.NoError(t, err)
	ledger := ledgerstore.NewInMemory(ks)

	issuerID := id.IssuerID(uuid.New())
	rotation, err := keys.Rotate(context.Background(), issuerID, "initial")
	require.NoError(t, err)

	issuer, err := issuance.New(keys, ledger, textdoc.New(), "https://verify.example.com/check")
	require.NoError(t, err)
	verifier, err := New(ledger, textdoc.New())
	require.NoError(t, err)

	return &fixture{
		verifier: verifier,
		issuer:   issuer,
		keys:     keys,
		ledger:   ledger,
		issuerID: issuerID,
		seed:     rotation.PrivateKeySeed,
	}
}

func certData(certID string) map[string]any {
	return map[string]any{
		"certificateId": certID,
		"issuer":        "Acme",
		"studentName":   "Jane",
		"role":          "Intern",
		"startDate":     "2024-01-01",
		"endDate":       "2024-06-01",
		"issuedOn":      "2024-06-02",
	}
}

func (f *fixture) sign(t *testing.T, data map[string]any) string {
	t.Helper()
	priv, err := signature.PrivateKeyFromSeed(f.seed)
	require.NoError(t, err)
	canonicalBytes, err := canonical.Bytes(data)
	require.NoError(t, err)
	sig, err := signature.Sign(canonicalBytes, priv, signature.KeyTypeEd25519)
	require.NoError(t, err)
	return sig
}

func (f *fixture) issue(t *testing.T, certID string) []byte {
	t.Helper()
	data := certData(certID)
	result, err := f.issuer.Issue(context.Background(), f.issuerID, issuance.IssueRequest{
		CertificateData: data,
		Signature:       f.sign(t, data),
	})
	require.NoError(t, err)
	return result.Document
}

// embed builds a standalone document around an arbitrary payload, bypassing
// issuance. Used to simulate tampered or re-embedded documents.
func embed(t *testing.T, data map[string]any, sig, surrounding string) []byte {
	t.Helper()
	encoded, err := payload.Encode(data, sig)
	require.NoError(t, err)
	return []byte(surrounding + "\n" + payload.Wrap(encoded) + "\n")
}

func TestIssueVerifyRevokeRoundTrip(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t, "CERT-1")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictAuthentic, result.Verdict)
	assert.Empty(t, result.Reason)
	assert.Equal(t, Checks{HashMatch: true, SignatureValid: true, StatusValid: true, DocumentHashMatch: true}, result.Checks)
	require.NotNil(t, result.Record)
	assert.Equal(t, ledgermodels.StatusValid, result.Record.Status)

	_, err = f.ledger.UpdateStatus(context.Background(), "CERT-1", ledgermodels.StatusRevoked, ledgermodels.StatusChange{Reason: "withdrawn"})
	require.NoError(t, err)

	result, err = f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictCounterfeit, result.Verdict)
	assert.Equal(t, ReasonStatusNotValid, result.Reason)
	assert.Equal(t, Checks{HashMatch: true, SignatureValid: true, StatusValid: false, DocumentHashMatch: true}, result.Checks)
}

func TestVerifySurvivesKeyRotation(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t, "CERT-1")

	_, err := f.keys.Rotate(context.Background(), f.issuerID, "scheduled rotation")
	require.NoError(t, err)

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictAuthentic, result.Verdict)
	assert.True(t, result.Checks.HashMatch)
	assert.True(t, result.Checks.SignatureValid)
}

func TestVerifyTamperedDataFailsHashCheckFirst(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "CERT-1")

	tampered := certData("CERT-1")
	tampered["studentName"] = "Impostor"
	doc := embed(t, tampered, f.sign(t, certData("CERT-1")), "Certificate of Completion")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictCounterfeit, result.Verdict)
	assert.Equal(t, ReasonHashMismatch, result.Reason)
	assert.False(t, result.Checks.HashMatch)
}

func TestVerifyForgedSignature(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "CERT-1")

	// Same data as the ledger record, so the hash check passes and the
	// signature check is the first to fail.
	doc := embed(t, certData("CERT-1"), "Zm9yZ2VkLXNpZ25hdHVyZQ==", "Certificate of Completion")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictCounterfeit, result.Verdict)
	assert.Equal(t, ReasonSignatureInvalid, result.Reason)
	assert.True(t, result.Checks.HashMatch)
	assert.False(t, result.Checks.SignatureValid)
}

func TestVerifyReembeddedPayloadFailsDocumentHashCheck(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "CERT-1")

	doc := embed(t, certData("CERT-1"), f.sign(t, certData("CERT-1")), "A different surrounding document")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictCounterfeit, result.Verdict)
	assert.Equal(t, ReasonDocumentTampering, result.Reason)
	assert.Equal(t, Checks{HashMatch: true, SignatureValid: true, StatusValid: true, DocumentHashMatch: false}, result.Checks)
}

func TestVerifyPartialPayloadFallsBackToRecordSignature(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "CERT-1")

	// Payload recovered the certificate data but not the signature line.
	// The record's stored signature fills the gap, so the signature check
	// still passes and only the document-hash check fails.
	doc := embed(t, certData("CERT-1"), "", "Certificate of Completion")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, result.Checks.HashMatch)
	assert.True(t, result.Checks.SignatureValid)
	assert.True(t, result.Checks.StatusValid)
	assert.Equal(t, ReasonDocumentTampering, result.Reason)
}

func TestVerifyUnknownCertificateIsCounterfeit(t *testing.T) {
	f := newFixture(t)

	doc := embed(t, certData("CERT-GHOST"), "c2ln", "Never issued")

	result, err := f.verifier.VerifyDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictCounterfeit, result.Verdict)
	assert.Equal(t, ReasonNotFound, result.Reason)
	assert.Nil(t, result.Record)
}

func TestVerifyWithoutMaterialIsClientError(t *testing.T) {
	f := newFixture(t)

	t.Run("no payload in document", func(t *testing.T) {
		_, err := f.verifier.VerifyDocument(context.Background(), []byte("just some prose, no payload"))
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
	t.Run("empty document", func(t *testing.T) {
		_, err := f.verifier.VerifyDocument(context.Background(), nil)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}

func TestVerifyExactBytesFoundByDocumentHash(t *testing.T) {
	f := newFixture(t)
	doc := f.issue(t, "CERT-1")

	// Sanity: the exact rendered bytes resolve by document hash alone.
	rec, err := f.ledger.FindByDocumentHash(context.Background(), canonical.HashBytes(doc))
	require.NoError(t, err)
	assert.Equal(t, "CERT-1", rec.CertificateID)
}
