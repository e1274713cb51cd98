// Package models defines the issuing institution aggregate. An issuer owns
// its signing keys and every ledger record it appends; revocation authority
// follows ownership.
package models

import (
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Issuer is an institution allowed to issue and revoke certificates. The
// record is created by onboarding and read-only here.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - An inactive issuer can still be referenced by historical records;
//     deactivation blocks new issuance, never existing verification
type Issuer struct {
	ID        id.IssuerID `json:"id"`
	Name      string      `json:"name"`
	Domain    string      `json:"domain"`
	Verified  bool        `json:"verified"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (i *Issuer) IsActive() bool {
	return i.Status == StatusActive
}

func NewIssuer(issuerID id.IssuerID, name string, now time.Time) (*Issuer, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer name must be 128 characters or less")
	}
	return &Issuer{
		ID:        issuerID,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
