package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certledger/internal/keys/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

type KeyStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *KeyStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestKeyStoreSuite(t *testing.T) {
	suite.Run(t, new(KeyStoreSuite))
}

func (s *KeyStoreSuite) newKey(issuerID id.IssuerID, createdAt time.Time) *models.IssuerKey {
	return &models.IssuerKey{
		ID:        id.KeyID(uuid.New()),
		IssuerID:  issuerID,
		PublicKey: "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----\n",
		KeyType:   "ed25519",
		CreatedAt: createdAt,
	}
}

func (s *KeyStoreSuite) TestSetCurrentAndLookup() {
	issuerID := id.IssuerID(uuid.New())
	key := s.newKey(issuerID, time.Now())
	s.Require().NoError(s.store.SetCurrent(s.ctx, key))

	current, err := s.store.Current(s.ctx, issuerID)
	s.Require().NoError(err)
	s.Equal(key.ID, current.ID)
	s.False(current.Rotated)

	byID, err := s.store.ByID(s.ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(key.ID, byID.ID)
}

func (s *KeyStoreSuite) TestCurrentNotFound() {
	_, err := s.store.Current(s.ctx, id.IssuerID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *KeyStoreSuite) TestRotationFlipsPriorKeysForwardOnly() {
	issuerID := id.IssuerID(uuid.New())
	first := s.newKey(issuerID, time.Now().Add(-time.Hour))
	s.Require().NoError(s.store.SetCurrent(s.ctx, first))

	second := s.newKey(issuerID, time.Now())
	s.Require().NoError(s.store.SetCurrent(s.ctx, second))

	current, err := s.store.Current(s.ctx, issuerID)
	s.Require().NoError(err)
	s.Equal(second.ID, current.ID)

	// The prior key is still retrievable by id, now rotated.
	old, err := s.store.ByID(s.ctx, first.ID)
	s.Require().NoError(err)
	s.True(old.Rotated)

	s.Equal(1, s.store.CountCurrent(issuerID))
}

func (s *KeyStoreSuite) TestConcurrentRotationsLeaveOneCurrentKey() {
	issuerID := id.IssuerID(uuid.New())
	const rotations = 50

	var wg sync.WaitGroup
	for i := 0; i < rotations; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := s.newKey(issuerID, time.Now().Add(time.Duration(n)*time.Millisecond))
			s.Require().NoError(s.store.SetCurrent(s.ctx, key))
		}(i)
	}
	wg.Wait()

	s.Equal(1, s.store.CountCurrent(issuerID))
}

func (s *KeyStoreSuite) TestValidAtPicksMostRecentAtOrBefore() {
	issuerID := id.IssuerID(uuid.New())
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	t2 := t0.Add(48 * time.Hour)

	k0 := s.newKey(issuerID, t0)
	k1 := s.newKey(issuerID, t1)
	s.Require().NoError(s.store.SetCurrent(s.ctx, k0))
	s.Require().NoError(s.store.SetCurrent(s.ctx, k1))

	got, err := s.store.ValidAt(s.ctx, issuerID, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(k0.ID, got.ID)

	got, err = s.store.ValidAt(s.ctx, issuerID, t2)
	s.Require().NoError(err)
	s.Equal(k1.ID, got.ID)

	_, err = s.store.ValidAt(s.ctx, issuerID, t0.Add(-time.Minute))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
