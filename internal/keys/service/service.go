// Package service implements the issuer key registry: generation, atomic
// rotation, and current/historical lookup. Private key material passes
// through Rotate exactly once on its way to the caller and is never stored.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certledger/internal/keys/models"
	"certledger/internal/keys/store"
	"certledger/internal/signature"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

type Service struct {
	store  store.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store store.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("key store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate produces fresh key material without touching the store. Callers
// that sign client-side use this to mint a keypair and then register the
// public half via SetCurrent.
func (s *Service) Generate() (signature.KeyMaterial, error) {
	km, err := signature.Generate()
	if err != nil {
		return signature.KeyMaterial{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate keypair")
	}
	return km, nil
}

// SetCurrent installs publicKey as the issuer's current key, rotating every
// prior key in the same store transaction.
func (s *Service) SetCurrent(ctx context.Context, issuerID id.IssuerID, publicKeyPEM, keyType, reason string) (*models.IssuerKey, error) {
	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer id is required")
	}
	if publicKeyPEM == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "public key is required")
	}
	if keyType == "" {
		keyType = signature.KeyTypeEd25519
	}

	key := &models.IssuerKey{
		ID:        id.KeyID(uuid.New()),
		IssuerID:  issuerID,
		PublicKey: publicKeyPEM,
		KeyType:   keyType,
		Reason:    reason,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.SetCurrent(ctx, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to install current key")
	}
	return key, nil
}

// Rotate generates a new keypair and installs it as the issuer's current
// key. The returned private seed is the only copy that will ever exist
// server-side; it is handed back and forgotten.
func (s *Service) Rotate(ctx context.Context, issuerID id.IssuerID, reason string) (*models.RotationResult, error) {
	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer id is required")
	}

	km, err := s.Generate()
	if err != nil {
		return nil, err
	}
	key, err := s.SetCurrent(ctx, issuerID, km.PublicKeyPEM, km.KeyType, reason)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "issuer key rotated",
		"issuer_id", issuerID,
		"key_id", key.ID,
		"key_type", key.KeyType,
	)

	return &models.RotationResult{Key: key, PrivateKeySeed: km.PrivateKeySeed}, nil
}

// Current returns the issuer's single non-rotated key.
func (s *Service) Current(ctx context.Context, issuerID id.IssuerID) (*models.IssuerKey, error) {
	key, err := s.store.Current(ctx, issuerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "issuer has no active signing key")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current key")
	}
	return key, nil
}

// ByID returns a key by its id, rotated or not. Verification uses this to
// resolve the key bound to a record at issuance.
func (s *Service) ByID(ctx context.Context, keyID id.KeyID) (*models.IssuerKey, error) {
	key, err := s.store.ByID(ctx, keyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "signing key not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key")
	}
	return key, nil
}

// ValidAt returns the key that was most recently installed at or before ts.
// Forensic use only; records carry their key id from issuance.
func (s *Service) ValidAt(ctx context.Context, issuerID id.IssuerID, ts time.Time) (*models.IssuerKey, error) {
	key, err := s.store.ValidAt(ctx, issuerID, ts)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no key existed at that time")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key")
	}
	return key, nil
}
