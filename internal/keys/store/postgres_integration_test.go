//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	issuermodels "certledger/internal/issuer/models"
	issuerstore "certledger/internal/issuer/store"
	"certledger/internal/keys/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil/containers"
)

type KeyStorePostgresSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	store    *Postgres
	ctx      context.Context
	issuerID id.IssuerID
}

func TestKeyStorePostgresSuite(t *testing.T) {
	suite.Run(t, new(KeyStorePostgresSuite))
}

func (s *KeyStorePostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *KeyStorePostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "certificate_events", "certificates", "issuer_keys", "issuers"))

	s.issuerID = id.IssuerID(uuid.New())
	issuer, err := issuermodels.NewIssuer(s.issuerID, "Integration University", time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(issuerstore.NewPostgres(s.pg.DB).Create(s.ctx, issuer))
}

func (s *KeyStorePostgresSuite) newKey(createdAt time.Time) *models.IssuerKey {
	return &models.IssuerKey{
		ID:        id.KeyID(uuid.New()),
		IssuerID:  s.issuerID,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----\n",
		KeyType:   "ed25519",
		CreatedAt: createdAt,
	}
}

func (s *KeyStorePostgresSuite) TestSetCurrentAndLookup() {
	key := s.newKey(time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.SetCurrent(s.ctx, key))

	current, err := s.store.Current(s.ctx, s.issuerID)
	s.Require().NoError(err)
	s.Equal(key.ID, current.ID)
	s.False(current.Rotated)

	byID, err := s.store.ByID(s.ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(key.PublicKey, byID.PublicKey)
}

func (s *KeyStorePostgresSuite) TestCurrentNotFound() {
	_, err := s.store.Current(s.ctx, s.issuerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *KeyStorePostgresSuite) TestRotationFlipsPriorKey() {
	first := s.newKey(time.Now().UTC().Add(-time.Hour))
	second := s.newKey(time.Now().UTC())
	s.Require().NoError(s.store.SetCurrent(s.ctx, first))
	s.Require().NoError(s.store.SetCurrent(s.ctx, second))

	current, err := s.store.Current(s.ctx, s.issuerID)
	s.Require().NoError(err)
	s.Equal(second.ID, current.ID)

	old, err := s.store.ByID(s.ctx, first.ID)
	s.Require().NoError(err)
	s.True(old.Rotated)
}

func (s *KeyStorePostgresSuite) TestConcurrentRotationsLeaveOneCurrentKey() {
	base := time.Now().UTC().Add(-time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			key := s.newKey(base.Add(time.Duration(offset) * time.Second))
			// Racing rotations may retry on the partial unique index; all
			// must eventually succeed.
			s.NoError(s.store.SetCurrent(s.ctx, key))
		}(i)
	}
	wg.Wait()

	var count int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM issuer_keys WHERE issuer_id = $1 AND NOT rotated`,
		uuid.UUID(s.issuerID),
	).Scan(&count))
	s.Equal(1, count)
}

func (s *KeyStorePostgresSuite) TestValidAtPicksMostRecentAtOrBefore() {
	jan := s.newKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	jun := s.newKey(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.SetCurrent(s.ctx, jan))
	s.Require().NoError(s.store.SetCurrent(s.ctx, jun))

	got, err := s.store.ValidAt(s.ctx, s.issuerID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal(jan.ID, got.ID)

	got, err = s.store.ValidAt(s.ctx, s.issuerID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal(jun.ID, got.ID)

	_, err = s.store.ValidAt(s.ctx, s.issuerID, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
