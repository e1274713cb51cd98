// Package issuance orchestrates the write path: validate the certificate
// data, check the caller's signature against the issuer's current key,
// render or augment a document with the embedded payload, hash the final
// bytes, and append to the ledger. The ledger append is the single
// durability point; a failure before it leaves no trace.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"certledger/internal/canonical"
	"certledger/internal/document"
	"certledger/internal/issuance/metrics"
	issuermodels "certledger/internal/issuer/models"
	keymodels "certledger/internal/keys/models"
	ledgermodels "certledger/internal/ledger/models"
	ledgerstore "certledger/internal/ledger/store"
	"certledger/internal/payload"
	"certledger/internal/signature"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

// KeyRegistry is the slice of the key service issuance needs.
type KeyRegistry interface {
	Current(ctx context.Context, issuerID id.IssuerID) (*keymodels.IssuerKey, error)
}

// IssuerDirectory resolves issuer identities. When configured, issuance
// requires the caller to be a known, active issuer.
type IssuerDirectory interface {
	ByID(ctx context.Context, issuerID id.IssuerID) (*issuermodels.Issuer, error)
}

// IssueRequest carries one issuance. A nil OriginalDocument renders a fresh
// document; otherwise the verification material is appended to the caller's
// document.
type IssueRequest struct {
	CertificateData  map[string]any
	Signature        string
	OriginalDocument []byte
}

// IssueResult is the outcome of a successful issuance.
type IssueResult struct {
	Record          *ledgermodels.RecordView
	Document        []byte
	DocumentHash    string
	CanonicalHash   string
	VerificationURL string
}

type Service struct {
	keys          KeyRegistry
	ledger        ledgerstore.Store
	renderer      document.Renderer
	issuers       IssuerDirectory
	verifyBaseURL string
	logger        *slog.Logger
	metrics       *metrics.Metrics
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

func WithIssuerDirectory(dir IssuerDirectory) Option {
	return func(s *Service) {
		s.issuers = dir
	}
}

func New(keys KeyRegistry, ledger ledgerstore.Store, renderer document.Renderer, verifyBaseURL string, opts ...Option) (*Service, error) {
	if keys == nil {
		return nil, fmt.Errorf("key registry is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("document renderer is required")
	}
	if verifyBaseURL == "" {
		return nil, fmt.Errorf("verification base url is required")
	}
	svc := &Service{
		keys:          keys,
		ledger:        ledger,
		renderer:      renderer,
		verifyBaseURL: verifyBaseURL,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue runs the full write path for issuerID. The caller canonicalizes and
// signs client-side; the server only ever sees the public half of the key.
func (s *Service) Issue(ctx context.Context, issuerID id.IssuerID, req IssueRequest) (*IssueResult, error) {
	start := time.Now()
	defer s.metrics.ObserveIssue(start)

	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "issuer identity is required")
	}
	if err := ValidateCertificateData(req.CertificateData); err != nil {
		s.metrics.IncrementRejected("schema")
		return nil, err
	}
	if req.Signature == "" {
		s.metrics.IncrementRejected("signature")
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signature is required")
	}
	certificateID := req.CertificateData["certificateId"].(string)

	if s.issuers != nil {
		issuer, err := s.issuers.ByID(ctx, issuerID)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRejected("unknown_issuer")
			return nil, dErrors.Wrap(err, dErrors.CodeForbidden, "unknown issuer")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer")
		}
		if !issuer.IsActive() {
			s.metrics.IncrementRejected("inactive_issuer")
			return nil, dErrors.New(dErrors.CodeForbidden, "issuer is not active")
		}
	}

	key, err := s.keys.Current(ctx, issuerID)
	if err != nil {
		s.metrics.IncrementRejected("no_key")
		return nil, err
	}
	if !signature.Verify(req.CertificateData, req.Signature, key.PublicKey, key.KeyType) {
		s.metrics.IncrementRejected("signature")
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signature does not verify against the issuer's current key")
	}

	canonicalHash, err := canonical.Hash(req.CertificateData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize certificate data")
	}

	encoded, err := payload.Encode(req.CertificateData, req.Signature)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode payload")
	}
	qrImage, err := payload.QRImage(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render payload qr")
	}
	verificationURL := s.verifyBaseURL + "?certificateId=" + url.QueryEscape(certificateID)

	input := document.RenderInput{
		Certificate:     req.CertificateData,
		CanonicalHash:   canonicalHash,
		VerificationURL: verificationURL,
		EncodedPayload:  encoded,
		WrappedPayload:  payload.Wrap(encoded),
		QRImagePNG:      qrImage,
	}

	mode := "template"
	var doc []byte
	if len(req.OriginalDocument) > 0 {
		mode = "upload"
		doc, err = s.renderer.Augment(ctx, req.OriginalDocument, input)
	} else {
		doc, err = s.renderer.Render(ctx, input)
	}
	if err != nil {
		s.metrics.IncrementRejected("render")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to render certificate document")
	}
	documentHash := canonical.HashBytes(doc)

	record, err := s.ledger.Append(ctx, ledgerstore.AppendParams{
		CertificateID:   certificateID,
		IssuerID:        issuerID,
		IssuerKeyID:     key.ID,
		CertificateData: req.CertificateData,
		CanonicalHash:   canonicalHash,
		DocumentHash:    documentHash,
		Signature:       req.Signature,
		IssuedAt:        parseIssuedOn(req.CertificateData["issuedOn"].(string), requestcontext.Now(ctx)),
		VerificationURL: verificationURL,
		EventPayload: map[string]any{
			"status":       string(ledgermodels.StatusValid),
			"documentHash": documentHash,
		},
	})
	if errors.Is(err, sentinel.ErrConflict) {
		s.metrics.IncrementRejected("duplicate_id")
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "certificate id already exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append to ledger")
	}

	s.metrics.IncrementIssued(mode)
	s.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", certificateID,
		"issuer_id", issuerID,
		"key_id", key.ID,
		"mode", mode,
	)

	return &IssueResult{
		Record:          record,
		Document:        doc,
		DocumentHash:    documentHash,
		CanonicalHash:   canonicalHash,
		VerificationURL: verificationURL,
	}, nil
}
