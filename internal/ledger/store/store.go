// Package store persists certificate records and their event trail.
// Append and UpdateStatus pair the record write with its event insert in
// one transaction: partial visibility (record without event, or event
// without record) is never acceptable.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"certledger/internal/canonical"
	keymodels "certledger/internal/keys/models"
	"certledger/internal/ledger/models"
	id "certledger/pkg/domain"
)

// AppendParams carries everything needed to create a record plus its
// ISSUED event.
type AppendParams struct {
	CertificateID   string
	IssuerID        id.IssuerID
	IssuerKeyID     id.KeyID
	CertificateData map[string]any
	CanonicalHash   string
	DocumentHash    string
	Signature       string
	IssuedAt        time.Time
	VerificationURL string
	EventPayload    map[string]any
}

type Store interface {
	// Append inserts the record and its ISSUED event atomically. A
	// duplicate CertificateID yields sentinel.ErrConflict.
	Append(ctx context.Context, params AppendParams) (*models.RecordView, error)

	// UpdateStatus mutates the record's status and appends the matching
	// event atomically. Unknown id yields sentinel.ErrNotFound; a status
	// outside the enum yields sentinel.ErrInvalidState.
	UpdateStatus(ctx context.Context, certificateID string, status models.Status, change models.StatusChange) (*models.RecordView, error)

	FindByID(ctx context.Context, certificateID string) (*models.RecordView, error)
	FindByDocumentHash(ctx context.Context, documentHash string) (*models.RecordView, error)
	FindByCanonicalHash(ctx context.Context, canonicalHash string) (*models.RecordView, error)
	ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.RecordView, error)

	// ListEvents returns a certificate's events oldest first.
	ListEvents(ctx context.Context, certificateID string) ([]*models.CertificateEvent, error)
}

// KeyLookup resolves issuer keys when building RecordViews. The key
// registry's store satisfies it; the ledger depends on the key registry,
// never the reverse.
type KeyLookup interface {
	ByID(ctx context.Context, keyID id.KeyID) (*keymodels.IssuerKey, error)
	ValidAt(ctx context.Context, issuerID id.IssuerID, ts time.Time) (*keymodels.IssuerKey, error)
}

// EventHash derives the tamper-evident hash of an event from its identity,
// its canonicalized payload, and the previous event's hash, chaining the
// trail per certificate. Covering the payload keeps a stored payload edit
// detectable by rehashing the chain.
func EventHash(certificateID string, eventType models.EventType, createdAt time.Time, prevHash string, eventPayload map[string]any) string {
	var payloadBytes []byte
	if len(eventPayload) > 0 {
		payloadBytes, _ = canonical.Bytes(eventPayload)
	}
	sum := sha256.Sum256([]byte(certificateID + ":" + string(eventType) + ":" + createdAt.UTC().Format(time.RFC3339Nano) + ":" + prevHash + ":" + string(payloadBytes)))
	return hex.EncodeToString(sum[:])
}
