// Package store persists issuer keys. Implementations must enforce the
// single-current-key invariant inside SetCurrent: marking every existing key
// rotated and inserting the new current key is one atomic operation,
// serialized per issuer.
package store

import (
	"context"
	"time"

	"certledger/internal/keys/models"
	id "certledger/pkg/domain"
)

type Store interface {
	// SetCurrent atomically marks all of the issuer's keys rotated and
	// inserts key as the new current key. Two concurrent calls for the same
	// issuer must not both observe "no current key"; exactly one insert wins
	// per round.
	SetCurrent(ctx context.Context, key *models.IssuerKey) error

	// Current returns the issuer's single non-rotated key, or
	// sentinel.ErrNotFound when the issuer has none.
	Current(ctx context.Context, issuerID id.IssuerID) (*models.IssuerKey, error)

	// ByID returns a key regardless of rotation state.
	ByID(ctx context.Context, keyID id.KeyID) (*models.IssuerKey, error)

	// ValidAt returns the most recent key created at or before ts. Forensic
	// lookup only; issuance binds records to key IDs instead.
	ValidAt(ctx context.Context, issuerID id.IssuerID, ts time.Time) (*models.IssuerKey, error)
}
