// Package models defines the durable certificate ledger records: one
// CertificateRecord per issued certificate plus an append-only trail of
// CertificateEvents documenting every status transition.
package models

import (
	"time"

	id "certledger/pkg/domain"
)

// Status is the lifecycle state of a certificate record.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// Known reports whether s is a member of the status enum. The status engine
// does not forbid semantically odd transitions (REVOKED -> EXPIRED); guard
// logic belongs to callers.
func (s Status) Known() bool {
	switch s {
	case StatusValid, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// EventType labels a ledger event.
type EventType string

const (
	EventIssued  EventType = "ISSUED"
	EventRevoked EventType = "REVOKED"
	EventExpired EventType = "EXPIRED"
)

// CertificateRecord is the durable record of one issued certificate.
// CanonicalHash is immutable once set; IssuerKeyID is fixed at creation and
// names the key that must verify this record's signature forever, no matter
// how many rotations happen later. Records are never physically deleted.
type CertificateRecord struct {
	CertificateID    string
	IssuerID         id.IssuerID
	IssuerKeyID      id.KeyID // nil UUID on legacy rows that predate key binding
	CertificateData  map[string]any
	CanonicalHash    string
	DocumentHash     string // empty when the record was created without a rendered document
	Signature        string
	Status           Status
	IssuedAt         time.Time
	RevokedAt        *time.Time
	RevocationReason string
	ExpiredAt        *time.Time
	VerificationURL  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CertificateEvent is one row of the append-only audit trail, created in
// the same transaction as the record mutation it documents. Events are
// hash-chained per certificate: EventHash covers PrevEventHash, so altering
// any historical event breaks every later hash.
type CertificateEvent struct {
	CertificateID string
	IssuerID      id.IssuerID
	EventType     EventType
	Payload       map[string]any
	EventHash     string
	PrevEventHash string // empty for the ISSUED event
	CreatedAt     time.Time
}

// RecordView is a CertificateRecord joined with the issuer key active at
// issuance. For legacy rows without an explicit key reference the store
// falls back to the issuer's latest known key.
type RecordView struct {
	CertificateRecord
	IssuerPublicKey string
	IssuerKeyType   string
}

// StatusChange carries the optional fields of a status transition.
type StatusChange struct {
	Reason    string
	ExpiredAt *time.Time
}
