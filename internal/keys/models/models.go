// Package models defines issuer key records for the key registry.
package models

import (
	"time"

	id "certledger/pkg/domain"
)

// IssuerKey is one signing key registered for an issuer. Keys are never
// deleted; rotation flips Rotated from false to true exactly once and never
// back. At any instant at most one key per issuer has Rotated=false; that
// key is the issuer's current key. The invariant is enforced by the store
// transactionally, not by schema alone.
type IssuerKey struct {
	ID        id.KeyID
	IssuerID  id.IssuerID
	PublicKey string // PKIX PEM
	KeyType   string // "ed25519" or "rsa"
	Rotated   bool
	Reason    string // why this key was installed, empty for the first key
	CreatedAt time.Time
}

// RotationResult carries a freshly rotated key plus its private seed. The
// seed exists only in this value on its way back to the caller; it is never
// persisted.
type RotationResult struct {
	Key            *IssuerKey
	PrivateKeySeed string
}
