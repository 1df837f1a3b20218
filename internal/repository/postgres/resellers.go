package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

type ResellerRepo struct {
	DB DBTX
}

const resellerColumns = `id, name, contact_info, active, created_at,
	creds_ciphertext, creds_nonce, creds_salt,
	bearer_ciphertext, bearer_nonce, bearer_salt, bearer_retrieved_at, bearer_expires_at`

const createReseller = `-- name: CreateReseller
INSERT INTO resellers (id, name, contact_info, active)
VALUES ($1, $2, $3, $4)
RETURNING ` + resellerColumns

func (r *ResellerRepo) Create(ctx context.Context, reseller models.Reseller) (models.Reseller, error) {
	rows, _ := r.DB.Query(ctx, createReseller, reseller.ID, reseller.Name, reseller.ContactInfo, reseller.Active)
	created, err := pgx.CollectOneRow(rows, rowToReseller)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, fmt.Errorf("repo error: reseller %q exists already", reseller.ID)
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getReseller = `-- name: GetReseller
SELECT ` + resellerColumns + `
FROM resellers
WHERE id = $1
`

func (r *ResellerRepo) GetByID(ctx context.Context, id string) (models.Reseller, error) {
	rows, _ := r.DB.Query(ctx, getReseller, id)
	reseller, err := pgx.CollectOneRow(rows, rowToReseller)

	switch {
	case err == nil:
		return reseller, nil
	case errors.Is(err, pgx.ErrNoRows):
		return reseller, fmt.Errorf("repo error: %w", apperrors.ErrResellerNotFound)
	default:
		return reseller, fmt.Errorf("db error: %w", err)
	}
}

const listResellers = `-- name: ListResellers
SELECT ` + resellerColumns + `
FROM resellers
ORDER BY id
`

func (r *ResellerRepo) List(ctx context.Context) ([]models.Reseller, error) {
	rows, _ := r.DB.Query(ctx, listResellers)
	resellers, err := pgx.CollectRows(rows, rowToReseller)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return resellers, nil
}

const setResellerActive = `-- name: SetResellerActive
UPDATE resellers
SET active = $2
WHERE id = $1
`

func (r *ResellerRepo) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.DB.Exec(ctx, setResellerActive, id, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrResellerNotFound)
	}
	return nil
}

const setResellerCredentials = `-- name: SetResellerCredentials
UPDATE resellers
SET creds_ciphertext = $2, creds_nonce = $3, creds_salt = $4
WHERE id = $1
`

func (r *ResellerRepo) SetCredentials(ctx context.Context, id string, blob models.SealedBlob) error {
	tag, err := r.DB.Exec(ctx, setResellerCredentials, id, blob.Ciphertext, blob.Nonce, blob.Salt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrResellerNotFound)
	}
	return nil
}

const saveResellerBearer = `-- name: SaveResellerBearer
UPDATE resellers
SET bearer_ciphertext = $2, bearer_nonce = $3, bearer_salt = $4,
    bearer_retrieved_at = $5, bearer_expires_at = $6
WHERE id = $1
`

func (r *ResellerRepo) SaveBearer(ctx context.Context, id string, bearer models.CachedBearer) error {
	tag, err := r.DB.Exec(ctx, saveResellerBearer, id,
		bearer.Sealed.Ciphertext, bearer.Sealed.Nonce, bearer.Sealed.Salt,
		bearer.RetrievedAt, bearer.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrResellerNotFound)
	}
	return nil
}

const listRefreshCandidates = `-- name: ListRefreshCandidates
SELECT ` + resellerColumns + `
FROM resellers
WHERE active
  AND creds_ciphertext IS NOT NULL
  AND (bearer_expires_at IS NULL OR bearer_expires_at < $1)
ORDER BY bearer_expires_at NULLS FIRST
`

func (r *ResellerRepo) ListRefreshCandidates(ctx context.Context, deadline time.Time) ([]models.Reseller, error) {
	rows, _ := r.DB.Query(ctx, listRefreshCandidates, deadline)
	resellers, err := pgx.CollectRows(rows, rowToReseller)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return resellers, nil
}

func rowToReseller(row pgx.CollectableRow) (models.Reseller, error) {
	var (
		r                models.Reseller
		credsCiphertext  []byte
		credsNonce       []byte
		credsSalt        []byte
		bearerCiphertext []byte
		bearerNonce      []byte
		bearerSalt       []byte
		retrievedAt      *time.Time
		expiresAt        *time.Time
	)

	err := row.Scan(
		&r.ID, &r.Name, &r.ContactInfo, &r.Active, &r.CreatedAt,
		&credsCiphertext, &credsNonce, &credsSalt,
		&bearerCiphertext, &bearerNonce, &bearerSalt, &retrievedAt, &expiresAt,
	)
	if err != nil {
		return r, err
	}

	if credsCiphertext != nil {
		r.Credentials = &models.SealedBlob{Ciphertext: credsCiphertext, Nonce: credsNonce, Salt: credsSalt}
	}
	if bearerCiphertext != nil && retrievedAt != nil && expiresAt != nil {
		r.Bearer = &models.CachedBearer{
			Sealed:      models.SealedBlob{Ciphertext: bearerCiphertext, Nonce: bearerNonce, Salt: bearerSalt},
			RetrievedAt: *retrievedAt,
			ExpiresAt:   *expiresAt,
		}
	}

	return r, nil
}
