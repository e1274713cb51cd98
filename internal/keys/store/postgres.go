package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"certledger/internal/keys/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

// Postgres persists issuer keys in PostgreSQL. A partial unique index on
// (issuer_id) WHERE NOT rotated backs the single-current-key invariant: if
// two rotations race, one transaction hits a unique violation after the
// other commits, and SetCurrent retries so both callers end up with the
// mark-rotated-then-insert semantics applied in some serial order.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const setCurrentRetries = 3

func (s *Postgres) SetCurrent(ctx context.Context, key *models.IssuerKey) error {
	var err error
	for attempt := 0; attempt < setCurrentRetries; attempt++ {
		err = s.setCurrentOnce(ctx, key)
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("set current key: %w", err)
}

func (s *Postgres) setCurrentOnce(ctx context.Context, key *models.IssuerKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current key: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE issuer_keys SET rotated = TRUE WHERE issuer_id = $1 AND NOT rotated`,
		uuid.UUID(key.IssuerID),
	); err != nil {
		return fmt.Errorf("mark keys rotated: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO issuer_keys (id, issuer_id, public_key, key_type, rotated, reason, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		uuid.UUID(key.ID),
		uuid.UUID(key.IssuerID),
		key.PublicKey,
		key.KeyType,
		nullString(key.Reason),
		key.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert current key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set current key: %w", err)
	}
	return nil
}

func (s *Postgres) Current(ctx context.Context, issuerID id.IssuerID) (*models.IssuerKey, error) {
	return s.queryOne(ctx,
		`SELECT id, issuer_id, public_key, key_type, rotated, reason, created_at
		 FROM issuer_keys
		 WHERE issuer_id = $1 AND NOT rotated
		 ORDER BY created_at DESC
		 LIMIT 1`,
		uuid.UUID(issuerID),
	)
}

func (s *Postgres) ByID(ctx context.Context, keyID id.KeyID) (*models.IssuerKey, error) {
	return s.queryOne(ctx,
		`SELECT id, issuer_id, public_key, key_type, rotated, reason, created_at
		 FROM issuer_keys
		 WHERE id = $1`,
		uuid.UUID(keyID),
	)
}

func (s *Postgres) ValidAt(ctx context.Context, issuerID id.IssuerID, ts time.Time) (*models.IssuerKey, error) {
	return s.queryOne(ctx,
		`SELECT id, issuer_id, public_key, key_type, rotated, reason, created_at
		 FROM issuer_keys
		 WHERE issuer_id = $1 AND created_at <= $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		uuid.UUID(issuerID), ts,
	)
}

func (s *Postgres) queryOne(ctx context.Context, query string, args ...any) (*models.IssuerKey, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var (
		key      models.IssuerKey
		keyID    uuid.UUID
		issuerID uuid.UUID
		reason   sql.NullString
	)
	err := row.Scan(&keyID, &issuerID, &key.PublicKey, &key.KeyType, &key.Rotated, &reason, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query issuer key: %w", err)
	}
	key.ID = id.KeyID(keyID)
	key.IssuerID = id.IssuerID(issuerID)
	key.Reason = reason.String
	return &key, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
