//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	issuermodels "certledger/internal/issuer/models"
	issuerstore "certledger/internal/issuer/store"
	keymodels "certledger/internal/keys/models"
	keystore "certledger/internal/keys/store"
	"certledger/internal/ledger/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
	"certledger/pkg/testutil/containers"
)

type LedgerStorePostgresSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	keys     *keystore.Postgres
	store    *Postgres
	issuers  *issuerstore.Postgres
	ctx      context.Context
	issuerID id.IssuerID
	keyID    id.KeyID
}

func TestLedgerStorePostgresSuite(t *testing.T) {
	suite.Run(t, new(LedgerStorePostgresSuite))
}

func (s *LedgerStorePostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.keys = keystore.NewPostgres(s.pg.DB)
	s.store = NewPostgres(s.pg.DB, s.keys)
	s.issuers = issuerstore.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *LedgerStorePostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "certificate_events", "certificates", "issuer_keys", "issuers"))

	s.issuerID = s.createIssuer("Integration University")
	s.keyID = id.KeyID(uuid.New())
	s.Require().NoError(s.keys.SetCurrent(s.ctx, &keymodels.IssuerKey{
		ID:        s.keyID,
		IssuerID:  s.issuerID,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----\n",
		KeyType:   "ed25519",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func (s *LedgerStorePostgresSuite) createIssuer(name string) id.IssuerID {
	issuerID := id.IssuerID(uuid.New())
	issuer, err := issuermodels.NewIssuer(issuerID, name, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.issuers.Create(s.ctx, issuer))
	return issuerID
}

func (s *LedgerStorePostgresSuite) appendParams(certID string) AppendParams {
	return AppendParams{
		CertificateID:   certID,
		IssuerID:        s.issuerID,
		IssuerKeyID:     s.keyID,
		CertificateData: map[string]any{"certificateId": certID, "studentName": "Jane"},
		CanonicalHash:   "hash-" + certID,
		DocumentHash:    "dochash-" + certID,
		Signature:       "sig-" + certID,
		IssuedAt:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		VerificationURL: "https://verify.example.com?certificateId=" + certID,
		EventPayload:    map[string]any{"status": "VALID"},
	}
}

func (s *LedgerStorePostgresSuite) TestAppendCreatesRecordWithIssuedEvent() {
	view, err := s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().NoError(err)

	s.Equal(models.StatusValid, view.Status)
	s.Equal(s.keyID, view.IssuerKeyID)
	s.Contains(view.IssuerPublicKey, "stub")
	s.Equal("Jane", view.CertificateData["studentName"])

	events, err := s.store.ListEvents(s.ctx, "CERT-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(models.EventIssued, events[0].EventType)
	s.Empty(events[0].PrevEventHash)
	s.Equal(EventHash("CERT-1", models.EventIssued, events[0].CreatedAt, "", events[0].Payload), events[0].EventHash)
}

func (s *LedgerStorePostgresSuite) TestAppendDuplicateIDConflicts() {
	_, err := s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().NoError(err)

	_, err = s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// The losing append rolls back; no second ISSUED event.
	events, err := s.store.ListEvents(s.ctx, "CERT-1")
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *LedgerStorePostgresSuite) TestUpdateStatusRevokesAndChainsEvents() {
	_, err := s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	view, err := s.store.UpdateStatus(later, "CERT-1", models.StatusRevoked, models.StatusChange{Reason: "credential withdrawn"})
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, view.Status)
	s.Require().NotNil(view.RevokedAt)
	s.Equal("credential withdrawn", view.RevocationReason)

	events, err := s.store.ListEvents(s.ctx, "CERT-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(models.EventRevoked, events[1].EventType)
	s.Equal(events[0].EventHash, events[1].PrevEventHash)
	s.Equal(EventHash("CERT-1", models.EventRevoked, events[1].CreatedAt, events[0].EventHash, events[1].Payload), events[1].EventHash)
}

func (s *LedgerStorePostgresSuite) TestUpdateStatusGuards() {
	_, err := s.store.UpdateStatus(s.ctx, "CERT-MISSING", models.StatusRevoked, models.StatusChange{})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().NoError(err)
	_, err = s.store.UpdateStatus(s.ctx, "CERT-1", models.Status("SUSPENDED"), models.StatusChange{})
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *LedgerStorePostgresSuite) TestFindByHashes() {
	_, err := s.store.Append(s.ctx, s.appendParams("CERT-1"))
	s.Require().NoError(err)

	byDoc, err := s.store.FindByDocumentHash(s.ctx, "dochash-CERT-1")
	s.Require().NoError(err)
	s.Equal("CERT-1", byDoc.CertificateID)

	byCanonical, err := s.store.FindByCanonicalHash(s.ctx, "hash-CERT-1")
	s.Require().NoError(err)
	s.Equal("CERT-1", byCanonical.CertificateID)

	_, err = s.store.FindByDocumentHash(s.ctx, "")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerStorePostgresSuite) TestListByIssuerNewestFirst() {
	first := s.appendParams("CERT-1")
	second := s.appendParams("CERT-2")
	second.IssuedAt = first.IssuedAt.Add(time.Hour)
	_, err := s.store.Append(s.ctx, first)
	s.Require().NoError(err)
	_, err = s.store.Append(s.ctx, second)
	s.Require().NoError(err)

	otherIssuer := s.createIssuer("Other College")
	otherKey := id.KeyID(uuid.New())
	s.Require().NoError(s.keys.SetCurrent(s.ctx, &keymodels.IssuerKey{
		ID:        otherKey,
		IssuerID:  otherIssuer,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nother\n-----END PUBLIC KEY-----\n",
		KeyType:   "ed25519",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	other := s.appendParams("CERT-OTHER")
	other.IssuerID = otherIssuer
	other.IssuerKeyID = otherKey
	_, err = s.store.Append(s.ctx, other)
	s.Require().NoError(err)

	views, err := s.store.ListByIssuer(s.ctx, s.issuerID)
	s.Require().NoError(err)
	s.Require().Len(views, 2)
	s.Equal("CERT-2", views[0].CertificateID)
	s.Equal("CERT-1", views[1].CertificateID)
}

func (s *LedgerStorePostgresSuite) TestLegacyRecordFallsBackToKeyValidAtIssuance() {
	params := s.appendParams("CERT-LEGACY")
	params.IssuerKeyID = id.KeyID{}
	_, err := s.store.Append(s.ctx, params)
	s.Require().NoError(err)

	s.Require().NoError(s.keys.SetCurrent(s.ctx, &keymodels.IssuerKey{
		ID:        id.KeyID(uuid.New()),
		IssuerID:  s.issuerID,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nrotated\n-----END PUBLIC KEY-----\n",
		KeyType:   "ed25519",
		CreatedAt: params.IssuedAt.Add(time.Hour),
	}))

	view, err := s.store.FindByID(s.ctx, "CERT-LEGACY")
	s.Require().NoError(err)
	s.Contains(view.IssuerPublicKey, "stub")
}
