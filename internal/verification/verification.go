// Package verification turns an uploaded document into an AUTHENTIC or
// COUNTERFEIT verdict through a fixed, ordered decision procedure: hash the
// bytes, locate the ledger record (by document hash first, then by the
// certificate id carried in the embedded payload), recompute the canonical
// hash, re-verify the signature against the key bound to the record at
// issuance, and check ledger status and document consistency.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certledger/internal/canonical"
	"certledger/internal/document"
	ledgermodels "certledger/internal/ledger/models"
	ledgerstore "certledger/internal/ledger/store"
	"certledger/internal/payload"
	"certledger/internal/signature"
	"certledger/internal/verification/metrics"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
)

type Verdict string

const (
	VerdictAuthentic   Verdict = "AUTHENTIC"
	VerdictCounterfeit Verdict = "COUNTERFEIT"
)

// Reason strings are part of the response contract; clients match on them.
const (
	ReasonNotFound          = "certificate not found in ledger"
	ReasonHashMismatch      = "certificate payload hash mismatch"
	ReasonSignatureInvalid  = "digital signature invalid"
	ReasonStatusNotValid    = "ledger status is not VALID"
	ReasonDocumentTampering = "document bytes do not match ledger record"
)

// Checks are the four booleans behind every verdict. All four are always
// reported, regardless of which one decided the outcome.
type Checks struct {
	HashMatch         bool `json:"hashMatch"`
	SignatureValid    bool `json:"signatureValid"`
	StatusValid       bool `json:"statusValid"`
	DocumentHashMatch bool `json:"documentHashMatch"`
}

// Result is the outcome of one verification. Record is nil only when no
// ledger record was located; Certificate echoes the data the checks ran
// against.
type Result struct {
	Verdict     Verdict                  `json:"verdict"`
	Reason      string                   `json:"reason,omitempty"`
	Checks      Checks                   `json:"checks"`
	Record      *ledgermodels.RecordView `json:"-"`
	Certificate map[string]any           `json:"-"`
}

type Service struct {
	ledger    ledgerstore.Store
	extractor document.TextExtractor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(ledger ledgerstore.Store, extractor document.TextExtractor, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("text extractor is required")
	}
	svc := &Service{ledger: ledger, extractor: extractor, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// VerifyDocument runs the decision procedure over raw document bytes. It
// returns an error only for client errors (no certificate material locatable
// by any means) and storage failures; every other condition is a verdict.
func (s *Service) VerifyDocument(ctx context.Context, doc []byte) (*Result, error) {
	start := time.Now()
	defer s.metrics.ObserveVerify(start)

	if len(doc) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document is empty")
	}
	documentHash := canonical.HashBytes(doc)

	record, err := s.findByDocumentHash(ctx, documentHash)
	if err != nil {
		return nil, err
	}

	// Text extraction is best effort; a failure means no payload, never a
	// verification error.
	var p *payload.Payload
	if text, extractErr := s.extractor.Extract(ctx, doc); extractErr == nil {
		p = payload.Extract(text)
	} else {
		s.logger.DebugContext(ctx, "document text extraction failed", "error", extractErr)
	}

	if record == nil && p != nil {
		if certID, ok := p.CertificateData["certificateId"].(string); ok && certID != "" {
			record, err = s.findByID(ctx, certID)
			if err != nil {
				return nil, err
			}
		}
	}

	if record == nil {
		if p == nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "no certificate material found in document")
		}
		s.metrics.IncrementVerdict(string(VerdictCounterfeit))
		return &Result{
			Verdict:     VerdictCounterfeit,
			Reason:      ReasonNotFound,
			Certificate: p.CertificateData,
		}, nil
	}

	// The embedded payload is the primary evidence, field by field; the
	// stored record fills in whatever the payload omits, so a partially
	// recovered payload does not fail checks the record can still answer.
	certData := record.CertificateData
	sig := record.Signature
	if p != nil {
		if len(p.CertificateData) > 0 {
			certData = p.CertificateData
		}
		if p.Signature != "" {
			sig = p.Signature
		}
	}

	checks := Checks{
		StatusValid:       record.Status == ledgermodels.StatusValid,
		DocumentHashMatch: record.DocumentHash == "" || record.DocumentHash == documentHash,
	}
	if canonicalHash, hashErr := canonical.Hash(certData); hashErr == nil {
		checks.HashMatch = canonicalHash == record.CanonicalHash
	}
	checks.SignatureValid = signature.Verify(certData, sig, record.IssuerPublicKey, record.IssuerKeyType)

	result := &Result{
		Checks:      checks,
		Record:      record,
		Certificate: certData,
	}
	result.Verdict, result.Reason = s.decide(checks)

	s.metrics.IncrementVerdict(string(result.Verdict))
	s.logger.InfoContext(ctx, "document verified",
		"certificate_id", record.CertificateID,
		"verdict", result.Verdict,
		"reason", result.Reason,
	)
	return result, nil
}

// decide applies the fixed priority order hashMatch, signatureValid,
// statusValid, documentHashMatch. The reason names the first failing check.
func (s *Service) decide(checks Checks) (Verdict, string) {
	switch {
	case !checks.HashMatch:
		s.metrics.IncrementCheckFailure("hashMatch")
		return VerdictCounterfeit, ReasonHashMismatch
	case !checks.SignatureValid:
		s.metrics.IncrementCheckFailure("signatureValid")
		return VerdictCounterfeit, ReasonSignatureInvalid
	case !checks.StatusValid:
		s.metrics.IncrementCheckFailure("statusValid")
		return VerdictCounterfeit, ReasonStatusNotValid
	case !checks.DocumentHashMatch:
		s.metrics.IncrementCheckFailure("documentHashMatch")
		return VerdictCounterfeit, ReasonDocumentTampering
	}
	return VerdictAuthentic, ""
}

func (s *Service) findByDocumentHash(ctx context.Context, documentHash string) (*ledgermodels.RecordView, error) {
	record, err := s.ledger.FindByDocumentHash(ctx, documentHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query ledger")
	}
	return record, nil
}

func (s *Service) findByID(ctx context.Context, certificateID string) (*ledgermodels.RecordView, error) {
	record, err := s.ledger.FindByID(ctx, certificateID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query ledger")
	}
	return record, nil
}
