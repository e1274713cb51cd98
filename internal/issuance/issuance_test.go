package issuance

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/canonical"
	"certledger/internal/document/textdoc"
	keyservice "certledger/internal/keys/service"
	keystore "certledger/internal/keys/store"
	ledgermodels "certledger/internal/ledger/models"
	ledgerstore "certledger/internal/ledger/store"
	"certledger/internal/payload"
	"certledger/internal/signature"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
)

const verifyBase = "https://verify.example.com/check"

type fixture struct {
	svc      *Service
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

	svc, err := New(keys, ledger, textdoc.New(), verifyBase)
	require.NoError(t, err)

	return &fixture{svc: svc, keys: keys, ledger: ledger, issuerID: issuerID, seed: rotation.PrivateKeySeed}
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

func TestIssueRendersDocumentAndAppendsRecord(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT-1")

	result, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
		CertificateData: data,
		Signature:       f.sign(t, data),
	})
	require.NoError(t, err)

	assert.Equal(t, verifyBase+"?certificateId=CERT-1", result.VerificationURL)
	assert.Equal(t, canonical.HashBytes(result.Document), result.DocumentHash)

	// The rendered document carries a recoverable payload.
	p := payload.Extract(string(result.Document))
	require.NotNil(t, p)
	assert.Equal(t, "CERT-1", p.CertificateData["certificateId"])

	// The record is bound to the key current at issuance.
	rec, err := f.ledger.FindByID(context.Background(), "CERT-1")
	require.NoError(t, err)
	assert.Equal(t, ledgermodels.StatusValid, rec.Status)
	assert.False(t, rec.IssuerKeyID.IsNil())
	assert.Equal(t, result.DocumentHash, rec.DocumentHash)
}

func TestIssueAugmentsUploadedDocument(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT-2")

	result, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
		CertificateData:  data,
		Signature:        f.sign(t, data),
		OriginalDocument: []byte("Official transcript body"),
	})
	require.NoError(t, err)

	text := string(result.Document)
	assert.True(t, strings.HasPrefix(text, "Official transcript body"))
	require.NotNil(t, payload.Extract(text))
}

func TestIssueRejectsSchemaViolations(t *testing.T) {
	f := newFixture(t)

	cases := map[string]map[string]any{
		"missing field": func() map[string]any {
			d := certData("CERT-3")
			delete(d, "studentName")
			return d
		}(),
		"non-string field": func() map[string]any {
			d := certData("CERT-3")
			d["role"] = 42
			return d
		}(),
		"extra field": func() map[string]any {
			d := certData("CERT-3")
			d["grade"] = "A"
			return d
		}(),
		"metadata not object": func() map[string]any {
			d := certData("CERT-3")
			d["metadata"] = "notes"
			return d
		}(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
				CertificateData: data,
				Signature:       "c2ln",
			})
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))
		})
	}
}

func TestIssueAllowsMetadataObject(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT-4")
	data["metadata"] = map[string]any{"cohort": "2024-spring"}

	_, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
		CertificateData: data,
		Signature:       f.sign(t, data),
	})
	require.NoError(t, err)
}

func TestIssueRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT-5")
	sig := f.sign(t, data)
	data["studentName"] = "Someone Else"

	_, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
		CertificateData: data,
		Signature:       sig,
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	// The failed issuance left no ledger trace.
	_, err = f.ledger.FindByID(context.Background(), "CERT-5")
	require.Error(t, err)
}

func TestIssueDuplicateCertificateIDConflicts(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT-6")
	req := IssueRequest{CertificateData: data, Signature: f.sign(t, data)}

	_, err := f.svc.Issue(context.Background(), f.issuerID, req)
	require.NoError(t, err)

	_, err = f.svc.Issue(context.Background(), f.issuerID, req)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
}

func TestIssueEscapesCertificateIDInVerificationURL(t *testing.T) {
	f := newFixture(t)
	data := certData("CERT 7/a")

	result, err := f.svc.Issue(context.Background(), f.issuerID, IssueRequest{
		CertificateData: data,
		Signature:       f.sign(t, data),
	})
	require.NoError(t, err)
	assert.Equal(t, verifyBase+"?certificateId=CERT+7%2Fa", result.VerificationURL)
}
