package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	keymodels "certledger/internal/keys/models"
	"certledger/internal/ledger/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

// InMemory keeps the ledger in process memory. A single lock covers the
// record-plus-event pair, giving the same atomicity the Postgres store gets
// from a transaction.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.CertificateRecord
	events  map[string][]*models.CertificateEvent
	keys    KeyLookup
}

func NewInMemory(keys KeyLookup) *InMemory {
	return &InMemory{
		records: make(map[string]*models.CertificateRecord),
		events:  make(map[string][]*models.CertificateEvent),
		keys:    keys,
	}
}

func (s *InMemory) Append(ctx context.Context, params AppendParams) (*models.RecordView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[params.CertificateID]; exists {
		return nil, sentinel.ErrConflict
	}

	now := requestcontext.Now(ctx).UTC()
	rec := &models.CertificateRecord{
		CertificateID:   params.CertificateID,
		IssuerID:        params.IssuerID,
		IssuerKeyID:     params.IssuerKeyID,
		CertificateData: params.CertificateData,
		CanonicalHash:   params.CanonicalHash,
		DocumentHash:    params.DocumentHash,
		Signature:       params.Signature,
		Status:          models.StatusValid,
		IssuedAt:        params.IssuedAt,
		VerificationURL: params.VerificationURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.records[rec.CertificateID] = rec

	event := &models.CertificateEvent{
		CertificateID: rec.CertificateID,
		IssuerID:      rec.IssuerID,
		EventType:     models.EventIssued,
		Payload:       params.EventPayload,
		PrevEventHash: "",
		CreatedAt:     now,
	}
	event.EventHash = EventHash(event.CertificateID, event.EventType, event.CreatedAt, event.PrevEventHash, event.Payload)
	s.events[rec.CertificateID] = append(s.events[rec.CertificateID], event)

	return s.view(ctx, rec)
}

func (s *InMemory) UpdateStatus(ctx context.Context, certificateID string, status models.Status, change models.StatusChange) (*models.RecordView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !status.Known() {
		return nil, sentinel.ErrInvalidState
	}
	rec, ok := s.records[certificateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	now := requestcontext.Now(ctx).UTC()
	rec.Status = status
	rec.UpdatedAt = now
	switch status {
	case models.StatusRevoked:
		t := now
		rec.RevokedAt = &t
		rec.RevocationReason = change.Reason
	case models.StatusExpired:
		if change.ExpiredAt != nil {
			rec.ExpiredAt = change.ExpiredAt
		} else {
			t := now
			rec.ExpiredAt = &t
		}
	}

	eventType := models.EventType(status)
	payload := map[string]any{"status": string(status)}
	if change.Reason != "" {
		payload["reason"] = change.Reason
	}
	prev := ""
	if trail := s.events[certificateID]; len(trail) > 0 {
		prev = trail[len(trail)-1].EventHash
	}
	event := &models.CertificateEvent{
		CertificateID: certificateID,
		IssuerID:      rec.IssuerID,
		EventType:     eventType,
		Payload:       payload,
		PrevEventHash: prev,
		CreatedAt:     now,
	}
	event.EventHash = EventHash(event.CertificateID, event.EventType, event.CreatedAt, event.PrevEventHash, event.Payload)
	s.events[certificateID] = append(s.events[certificateID], event)

	return s.view(ctx, rec)
}

func (s *InMemory) FindByID(ctx context.Context, certificateID string) (*models.RecordView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[certificateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.view(ctx, rec)
}

func (s *InMemory) FindByDocumentHash(ctx context.Context, documentHash string) (*models.RecordView, error) {
	if documentHash == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLatest(ctx, func(r *models.CertificateRecord) bool {
		return r.DocumentHash == documentHash
	})
}

func (s *InMemory) FindByCanonicalHash(ctx context.Context, canonicalHash string) (*models.RecordView, error) {
	if canonicalHash == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLatest(ctx, func(r *models.CertificateRecord) bool {
		return r.CanonicalHash == canonicalHash
	})
}

func (s *InMemory) ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.RecordView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var views []*models.RecordView
	for _, rec := range s.records {
		if rec.IssuerID != issuerID {
			continue
		}
		v, err := s.view(ctx, rec)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].IssuedAt.After(views[j].IssuedAt)
	})
	return views, nil
}

func (s *InMemory) ListEvents(_ context.Context, certificateID string) ([]*models.CertificateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.events[certificateID]
	out := make([]*models.CertificateEvent, 0, len(trail))
	for _, e := range trail {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// findLatest picks the most recently issued matching record, keeping the
// answer deterministic when independently issued certificates share a hash.
func (s *InMemory) findLatest(ctx context.Context, match func(*models.CertificateRecord) bool) (*models.RecordView, error) {
	var best *models.CertificateRecord
	for _, rec := range s.records {
		if !match(rec) {
			continue
		}
		if best == nil || rec.IssuedAt.After(best.IssuedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.view(ctx, best)
}

func (s *InMemory) view(ctx context.Context, rec *models.CertificateRecord) (*models.RecordView, error) {
	cp := *rec
	v := &models.RecordView{CertificateRecord: cp}

	key, err := s.lookupKey(ctx, rec)
	if errors.Is(err, sentinel.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	v.IssuerPublicKey = key.PublicKey
	v.IssuerKeyType = key.KeyType
	return v, nil
}

func (s *InMemory) lookupKey(ctx context.Context, rec *models.CertificateRecord) (*keymodels.IssuerKey, error) {
	if !rec.IssuerKeyID.IsNil() {
		return s.keys.ByID(ctx, rec.IssuerKeyID)
	}
	// Legacy rows carry no key reference; fall back to the key that was
	// active when the certificate was issued.
	return s.keys.ValidAt(ctx, rec.IssuerID, rec.IssuedAt)
}
