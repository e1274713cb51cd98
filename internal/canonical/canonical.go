// Package canonical produces the deterministic byte serialization that is
// the sole input to certificate hashing and signing. Two structurally equal
// values serialize to identical bytes regardless of object key order, so a
// verifier rebuilding the certificate independently computes the same hash
// the signer did. Never hash or sign transport bytes directly.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Bytes returns the canonical serialization of v: object keys sorted by
// code-unit order, array order preserved, scalars passed through, numbers
// kept as their original JSON text. Output is compact UTF-8 JSON.
func Bytes(v any) ([]byte, error) {
	raw, err := marshalCompact(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	// Round-trip through a generic value. Go maps marshal with sorted keys,
	// which performs the recursive key ordering; json.Number preserves the
	// exact numeric text so signer and verifier cannot diverge on floats.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var norm any
	if err := dec.Decode(&norm); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	out, err := marshalCompact(norm)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes. Used for
// document hashing, where the input is already a fixed byte stream.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// marshalCompact marshals without HTML escaping so canonical output matches
// other implementations of this serialization byte for byte.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
