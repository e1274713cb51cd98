package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	keymodels "certledger/internal/keys/models"
	"certledger/internal/ledger/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	txcontext "certledger/pkg/platform/tx"
	"certledger/pkg/requestcontext"
)

const recordColumns = `certificate_id, issuer_id, issuer_key_id, certificate_data,
	canonical_hash, document_hash, signature, status, issued_at,
	revoked_at, revocation_reason, expired_at, verification_url, created_at, updated_at`

// Postgres persists the ledger in PostgreSQL. The record write and its
// event insert share one transaction; certificate_id carries a unique
// constraint so a duplicate append surfaces as sentinel.ErrConflict.
type Postgres struct {
	db   *sql.DB
	keys KeyLookup
}

func NewPostgres(db *sql.DB, keys KeyLookup) *Postgres {
	return &Postgres{db: db, keys: keys}
}

// begin joins an ambient transaction from the context when one exists;
// otherwise it opens its own, and owned reports which case applies.
func (s *Postgres) begin(ctx context.Context) (tx *sql.Tx, owned bool, err error) {
	if ambient, ok := txcontext.From(ctx); ok {
		return ambient, false, nil
	}
	tx, err = s.db.BeginTx(ctx, nil)
	return tx, true, err
}

type dbQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier routes reads through the ambient transaction when one exists so
// a joined append can see its own uncommitted rows.
func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Append(ctx context.Context, params AppendParams) (*models.RecordView, error) {
	now := requestcontext.Now(ctx).UTC()

	data, err := json.Marshal(params.CertificateData)
	if err != nil {
		return nil, fmt.Errorf("marshal certificate data: %w", err)
	}
	eventPayload, err := json.Marshal(params.EventPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	tx, owned, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	if owned {
		defer func() { _ = tx.Rollback() }()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO certificates (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, NULL, $10, $11, $11)`,
		params.CertificateID,
		uuid.UUID(params.IssuerID),
		nullUUID(uuid.UUID(params.IssuerKeyID)),
		data,
		params.CanonicalHash,
		nullString(params.DocumentHash),
		params.Signature,
		models.StatusValid,
		params.IssuedAt,
		params.VerificationURL,
		now,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert certificate: %w", err)
	}

	hash := EventHash(params.CertificateID, models.EventIssued, now, "", params.EventPayload)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO certificate_events (certificate_id, issuer_id, event_type, payload, event_hash, prev_event_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, '', $6)`,
		params.CertificateID,
		uuid.UUID(params.IssuerID),
		models.EventIssued,
		eventPayload,
		hash,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert issued event: %w", err)
	}

	if owned {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit append: %w", err)
		}
	}
	return s.FindByID(ctx, params.CertificateID)
}

func (s *Postgres) UpdateStatus(ctx context.Context, certificateID string, status models.Status, change models.StatusChange) (*models.RecordView, error) {
	if !status.Known() {
		return nil, sentinel.ErrInvalidState
	}
	now := requestcontext.Now(ctx).UTC()

	tx, owned, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	if owned {
		defer func() { _ = tx.Rollback() }()
	}

	var issuerID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT issuer_id FROM certificates WHERE certificate_id = $1 FOR UPDATE`,
		certificateID,
	).Scan(&issuerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock certificate: %w", err)
	}

	switch status {
	case models.StatusRevoked:
		_, err = tx.ExecContext(ctx,
			`UPDATE certificates
			 SET status = $2, revoked_at = $3, revocation_reason = $4, updated_at = $3
			 WHERE certificate_id = $1`,
			certificateID, status, now, nullString(change.Reason),
		)
	case models.StatusExpired:
		expiredAt := now
		if change.ExpiredAt != nil {
			expiredAt = *change.ExpiredAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE certificates
			 SET status = $2, expired_at = $3, updated_at = $4
			 WHERE certificate_id = $1`,
			certificateID, status, expiredAt, now,
		)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE certificates SET status = $2, updated_at = $3 WHERE certificate_id = $1`,
			certificateID, status, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update certificate status: %w", err)
	}

	var prev string
	err = tx.QueryRowContext(ctx,
		`SELECT event_hash FROM certificate_events
		 WHERE certificate_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		certificateID,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read last event hash: %w", err)
	}

	payload := map[string]any{"status": string(status)}
	if change.Reason != "" {
		payload["reason"] = change.Reason
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	hash := EventHash(certificateID, models.EventType(status), now, prev, payload)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO certificate_events (certificate_id, issuer_id, event_type, payload, event_hash, prev_event_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		certificateID, issuerID, models.EventType(status), payloadJSON, hash, prev, now,
	); err != nil {
		return nil, fmt.Errorf("insert status event: %w", err)
	}

	if owned {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit status update: %w", err)
		}
	}
	return s.FindByID(ctx, certificateID)
}

func (s *Postgres) FindByID(ctx context.Context, certificateID string) (*models.RecordView, error) {
	return s.queryOne(ctx,
		`SELECT `+recordColumns+` FROM certificates WHERE certificate_id = $1`,
		certificateID,
	)
}

func (s *Postgres) FindByDocumentHash(ctx context.Context, documentHash string) (*models.RecordView, error) {
	if documentHash == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.queryOne(ctx,
		`SELECT `+recordColumns+` FROM certificates
		 WHERE document_hash = $1
		 ORDER BY issued_at DESC
		 LIMIT 1`,
		documentHash,
	)
}

func (s *Postgres) FindByCanonicalHash(ctx context.Context, canonicalHash string) (*models.RecordView, error) {
	if canonicalHash == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.queryOne(ctx,
		`SELECT `+recordColumns+` FROM certificates
		 WHERE canonical_hash = $1
		 ORDER BY issued_at DESC
		 LIMIT 1`,
		canonicalHash,
	)
}

func (s *Postgres) ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.RecordView, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+recordColumns+` FROM certificates
		 WHERE issuer_id = $1
		 ORDER BY issued_at DESC`,
		uuid.UUID(issuerID),
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var views []*models.RecordView
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		v, err := s.view(ctx, rec)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return views, nil
}

func (s *Postgres) ListEvents(ctx context.Context, certificateID string) ([]*models.CertificateEvent, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT certificate_id, issuer_id, event_type, payload, event_hash, prev_event_hash, created_at
		 FROM certificate_events
		 WHERE certificate_id = $1
		 ORDER BY created_at ASC, id ASC`,
		certificateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.CertificateEvent
	for rows.Next() {
		var (
			e        models.CertificateEvent
			issuerID uuid.UUID
			payload  []byte
		)
		if err := rows.Scan(&e.CertificateID, &issuerID, &e.EventType, &payload, &e.EventHash, &e.PrevEventHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.IssuerID = id.IssuerID(issuerID)
		if len(payload) > 0 {
			if err := decodeJSONMap(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) queryOne(ctx context.Context, query string, args ...any) (*models.RecordView, error) {
	rec, err := scanRecord(s.querier(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.view(ctx, rec)
}

func scanRecord(row rowScanner) (*models.CertificateRecord, error) {
	var (
		rec          models.CertificateRecord
		issuerID     uuid.UUID
		keyID        uuid.NullUUID
		data         []byte
		documentHash sql.NullString
		reason       sql.NullString
		revokedAt    sql.NullTime
		expiredAt    sql.NullTime
	)
	err := row.Scan(
		&rec.CertificateID, &issuerID, &keyID, &data,
		&rec.CanonicalHash, &documentHash, &rec.Signature, &rec.Status, &rec.IssuedAt,
		&revokedAt, &reason, &expiredAt, &rec.VerificationURL, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	rec.IssuerID = id.IssuerID(issuerID)
	if keyID.Valid {
		rec.IssuerKeyID = id.KeyID(keyID.UUID)
	}
	rec.DocumentHash = documentHash.String
	rec.RevocationReason = reason.String
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	if expiredAt.Valid {
		t := expiredAt.Time
		rec.ExpiredAt = &t
	}
	if err := decodeJSONMap(data, &rec.CertificateData); err != nil {
		return nil, fmt.Errorf("decode certificate data: %w", err)
	}
	return &rec, nil
}

func (s *Postgres) view(ctx context.Context, rec *models.CertificateRecord) (*models.RecordView, error) {
	v := &models.RecordView{CertificateRecord: *rec}

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

func (s *Postgres) lookupKey(ctx context.Context, rec *models.CertificateRecord) (*keymodels.IssuerKey, error) {
	if !rec.IssuerKeyID.IsNil() {
		return s.keys.ByID(ctx, rec.IssuerKeyID)
	}
	return s.keys.ValidAt(ctx, rec.IssuerID, rec.IssuedAt)
}

// decodeJSONMap parses stored JSON with UseNumber so numeric metadata keeps
// its original text through later re-canonicalization.
func decodeJSONMap(raw []byte, dst *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dst)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
