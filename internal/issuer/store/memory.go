package store

import (
	"context"
	"sync"

	"certledger/internal/issuer/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.IssuerID]*models.Issuer
	byName map[string]*models.Issuer
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.IssuerID]*models.Issuer),
		byName: make(map[string]*models.Issuer),
	}
}

func (s *InMemory) Create(_ context.Context, issuer *models.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[issuer.Name]; exists {
		return sentinel.ErrConflict
	}
	cp := *issuer
	s.byID[cp.ID] = &cp
	s.byName[cp.Name] = &cp
	return nil
}

func (s *InMemory) ByID(_ context.Context, issuerID id.IssuerID) (*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuer, ok := s.byID[issuerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *issuer
	return &cp, nil
}

func (s *InMemory) ByName(_ context.Context, name string) (*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuer, ok := s.byName[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *issuer
	return &cp, nil
}
