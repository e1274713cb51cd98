package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certledger/internal/issuer/models"
	id "certledger/pkg/domain"
)

// SeedBootstrapIssuer creates a default issuer for local development and
// tests so the service is usable without an enrollment step.
func SeedBootstrapIssuer(s *InMemory) *models.Issuer {
	now := time.Now().UTC()
	issuer := &models.Issuer{
		ID:        id.IssuerID(uuid.New()),
		Name:      "default",
		Domain:    "localhost",
		Verified:  true,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = s.Create(context.Background(), issuer)
	return issuer
}
