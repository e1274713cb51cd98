// Package domain holds small shared domain value types. Typed UUIDs keep
// issuer and key identifiers from being swapped at call sites; the compiler
// enforces the distinction.
package domain

import (
	"github.com/google/uuid"

	dErrors "certledger/pkg/domain-errors"
)

// IssuerID identifies a signing organization.
type IssuerID uuid.UUID

// KeyID identifies one issuer signing key.
type KeyID uuid.UUID

func (i IssuerID) String() string { return uuid.UUID(i).String() }
func (i IssuerID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (k KeyID) String() string { return uuid.UUID(k).String() }
func (k KeyID) IsNil() bool    { return uuid.UUID(k) == uuid.Nil }

// Text marshaling keeps the ids as canonical UUID strings in JSON and logs.

func (i IssuerID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (k KeyID) MarshalText() ([]byte, error)    { return []byte(k.String()), nil }

func (i *IssuerID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*i = IssuerID(u)
	return nil
}

func (k *KeyID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*k = KeyID(u)
	return nil
}

// ParseIssuerID constructs an IssuerID from external input. IDs must be
// valid, non-nil UUIDs; construct via this function at trust boundaries.
func ParseIssuerID(s string) (IssuerID, error) {
	u, err := parseUUID(s, "issuer id")
	return IssuerID(u), err
}

// ParseKeyID constructs a KeyID from external input.
func ParseKeyID(s string) (KeyID, error) {
	u, err := parseUUID(s, "key id")
	return KeyID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, label+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be the nil UUID")
	}
	return u, nil
}
