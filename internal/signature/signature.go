// Package signature signs and verifies certificate data over its canonical
// byte form. Two key types are supported: ed25519 (detached signature over
// the raw canonical bytes, the default) and RSA with a SHA-256 digest under
// PKCS#1 v1.5, kept for issuers with pre-existing RSA keys.
package signature

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"certledger/internal/canonical"
)

const (
	KeyTypeEd25519 = "ed25519"
	KeyTypeRSA     = "rsa"
)

// KeyMaterial is a freshly generated keypair. PrivateKeySeed is handed to
// the caller exactly once and is never persisted server-side.
type KeyMaterial struct {
	PublicKeyPEM   string
	PrivateKeySeed string
	KeyType        string
}

// Generate produces a fresh ed25519 keypair. The public key is returned as
// a PKIX PEM block, the private key as the base64 ed25519 seed.
func Generate() (KeyMaterial, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("generate keypair: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("encode public key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return KeyMaterial{
		PublicKeyPEM:   string(pemBytes),
		PrivateKeySeed: base64.StdEncoding.EncodeToString(priv.Seed()),
		KeyType:        KeyTypeEd25519,
	}, nil
}

// PrivateKeyFromSeed reconstructs an ed25519 private key from the base64
// seed returned by Generate. Callers (issuers) hold the seed; the server
// only ever sees public keys.
func PrivateKeyFromSeed(seedB64 string) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("decode private key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Sign produces a base64 signature over canonical bytes with the given
// signer. The signer's concrete type must match keyType.
func Sign(canonicalBytes []byte, priv crypto.Signer, keyType string) (string, error) {
	switch keyType {
	case KeyTypeRSA:
		rsaKey, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return "", fmt.Errorf("key type %q requires an RSA private key", keyType)
		}
		digest := sha256.Sum256(canonicalBytes)
		sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
		if err != nil {
			return "", fmt.Errorf("rsa sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil
	case KeyTypeEd25519, "":
		edKey, ok := priv.(ed25519.PrivateKey)
		if !ok {
			return "", fmt.Errorf("key type %q requires an ed25519 private key", keyType)
		}
		return base64.StdEncoding.EncodeToString(ed25519.Sign(edKey, canonicalBytes)), nil
	default:
		return "", fmt.Errorf("unsupported key type: %s", keyType)
	}
}

// Verify re-canonicalizes value and checks signatureB64 against the PEM
// public key. It never returns an error: malformed keys, malformed
// signature encodings, and crypto library failures all yield false, so the
// verdict machinery always gets a boolean.
func Verify(value any, signatureB64, publicKeyPEM, keyType string) bool {
	canonicalBytes, err := canonical.Bytes(value)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return false
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}

	if keyType == KeyTypeEd25519 || keyType == "" {
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return false
		}
		return ed25519.Verify(edPub, canonicalBytes, sig)
	}

	// Anything other than ed25519 takes the RSA-SHA256 path.
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(canonicalBytes)
	return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig) == nil
}

// EncodePublicKey renders any supported public key as a PKIX PEM block.
func EncodePublicKey(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
