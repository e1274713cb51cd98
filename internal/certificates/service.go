// Package certificates implements issuer-facing certificate management:
// revocation, listing, and export. Issuance and verification have their own
// packages; this one covers what an issuer does with records it already owns.
package certificates

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ledgermodels "certledger/internal/ledger/models"
	ledgerstore "certledger/internal/ledger/store"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
)

const (
	OutcomeRevoked        = "revoked"
	OutcomeAlreadyRevoked = "already_revoked"
)

// RevokeResult reports a revocation. Outcome distinguishes a fresh
// revocation from the no-op repeat case.
type RevokeResult struct {
	Record  *ledgermodels.RecordView
	Outcome string
}

type Service struct {
	ledger ledgerstore.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(ledger ledgerstore.Store, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	svc := &Service{ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Revoke marks the certificate REVOKED. Only the owning issuer may revoke;
// revoking an already-revoked record succeeds without a second transition.
func (s *Service) Revoke(ctx context.Context, issuerID id.IssuerID, certificateID, reason string) (*RevokeResult, error) {
	if certificateID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	}

	record, err := s.ledger.FindByID(ctx, certificateID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "certificate not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	if record.IssuerID != issuerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller does not own this certificate")
	}
	if record.Status == ledgermodels.StatusRevoked {
		return &RevokeResult{Record: record, Outcome: OutcomeAlreadyRevoked}, nil
	}

	updated, err := s.ledger.UpdateStatus(ctx, certificateID, ledgermodels.StatusRevoked, ledgermodels.StatusChange{Reason: reason})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke certificate")
	}

	s.logger.InfoContext(ctx, "certificate revoked",
		"certificate_id", certificateID,
		"issuer_id", issuerID,
		"reason", reason,
	)
	return &RevokeResult{Record: updated, Outcome: OutcomeRevoked}, nil
}

// ListByIssuer returns the issuer's records, newest first.
func (s *Service) ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*ledgermodels.RecordView, error) {
	records, err := s.ledger.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

// Events returns a certificate's audit trail, owner-checked.
func (s *Service) Events(ctx context.Context, issuerID id.IssuerID, certificateID string) ([]*ledgermodels.CertificateEvent, error) {
	record, err := s.ledger.FindByID(ctx, certificateID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "certificate not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	if record.IssuerID != issuerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller does not own this certificate")
	}

	events, err := s.ledger.ListEvents(ctx, certificateID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

var csvHeader = []string{
	"certificateId", "status", "studentName", "role",
	"issuedAt", "revokedAt", "revocationReason",
	"canonicalHash", "documentHash", "verificationUrl",
}

// ExportCSV renders the issuer's records as CSV for offline bookkeeping.
func (s *Service) ExportCSV(ctx context.Context, issuerID id.IssuerID) ([]byte, error) {
	records, err := s.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write csv")
	}
	for _, rec := range records {
		revokedAt := ""
		if rec.RevokedAt != nil {
			revokedAt = rec.RevokedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			rec.CertificateID,
			string(rec.Status),
			dataString(rec.CertificateData, "studentName"),
			dataString(rec.CertificateData, "role"),
			rec.IssuedAt.UTC().Format(time.RFC3339),
			revokedAt,
			rec.RevocationReason,
			rec.CanonicalHash,
			rec.DocumentHash,
			rec.VerificationURL,
		}
		if err := w.Write(row); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write csv")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write csv")
	}
	return buf.Bytes(), nil
}

func dataString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
