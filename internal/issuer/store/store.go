// Package store persists issuer records.
package store

import (
	"context"

	"certledger/internal/issuer/models"
	id "certledger/pkg/domain"
)

type Store interface {
	// Create inserts the issuer. A duplicate name yields
	// sentinel.ErrConflict.
	Create(ctx context.Context, issuer *models.Issuer) error
	ByID(ctx context.Context, issuerID id.IssuerID) (*models.Issuer, error)
	ByName(ctx context.Context, name string) (*models.Issuer, error)
}
