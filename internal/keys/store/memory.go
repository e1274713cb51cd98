package store

import (
	"context"
	"sync"
	"time"

	"certledger/internal/keys/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

// InMemory keeps issuer keys in process memory. It favors clarity over
// performance and doubles as the store fake in unit tests. A single lock
// serializes SetCurrent across all issuers, which trivially satisfies the
// per-issuer serialization requirement.
type InMemory struct {
	mu   sync.RWMutex
	keys map[id.IssuerID][]*models.IssuerKey
	byID map[id.KeyID]*models.IssuerKey
}

func NewInMemory() *InMemory {
	return &InMemory{
		keys: make(map[id.IssuerID][]*models.IssuerKey),
		byID: make(map[id.KeyID]*models.IssuerKey),
	}
}

func (s *InMemory) SetCurrent(_ context.Context, key *models.IssuerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys[key.IssuerID] {
		existing.Rotated = true
	}
	cp := *key
	cp.Rotated = false
	s.keys[key.IssuerID] = append(s.keys[key.IssuerID], &cp)
	s.byID[cp.ID] = &cp
	return nil
}

func (s *InMemory) Current(_ context.Context, issuerID id.IssuerID) (*models.IssuerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.IssuerKey
	for _, k := range s.keys[issuerID] {
		if k.Rotated {
			continue
		}
		if latest == nil || k.CreatedAt.After(latest.CreatedAt) {
			latest = k
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemory) ByID(_ context.Context, keyID id.KeyID) (*models.IssuerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byID[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *InMemory) ValidAt(_ context.Context, issuerID id.IssuerID, ts time.Time) (*models.IssuerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.IssuerKey
	for _, k := range s.keys[issuerID] {
		if k.CreatedAt.After(ts) {
			continue
		}
		if best == nil || k.CreatedAt.After(best.CreatedAt) {
			best = k
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// CountCurrent reports how many non-rotated keys the issuer has. Exposed
// for tests asserting the single-current-key invariant.
func (s *InMemory) CountCurrent(issuerID id.IssuerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, k := range s.keys[issuerID] {
		if !k.Rotated {
			n++
		}
	}
	return n
}
