package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"certledger/internal/issuer/models"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, issuer *models.Issuer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issuers (id, name, domain, verified, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(issuer.ID), issuer.Name, issuer.Domain, issuer.Verified, issuer.Status, issuer.CreatedAt, issuer.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert issuer: %w", err)
	}
	return nil
}

func (s *Postgres) ByID(ctx context.Context, issuerID id.IssuerID) (*models.Issuer, error) {
	return s.queryOne(ctx,
		`SELECT id, name, domain, verified, status, created_at, updated_at FROM issuers WHERE id = $1`,
		uuid.UUID(issuerID),
	)
}

func (s *Postgres) ByName(ctx context.Context, name string) (*models.Issuer, error) {
	return s.queryOne(ctx,
		`SELECT id, name, domain, verified, status, created_at, updated_at FROM issuers WHERE name = $1`,
		name,
	)
}

func (s *Postgres) queryOne(ctx context.Context, query string, args ...any) (*models.Issuer, error) {
	var (
		issuer   models.Issuer
		issuerID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&issuerID, &issuer.Name, &issuer.Domain, &issuer.Verified, &issuer.Status, &issuer.CreatedAt, &issuer.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query issuer: %w", err)
	}
	issuer.ID = id.IssuerID(issuerID)
	return &issuer, nil
}
