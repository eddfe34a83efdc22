package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/cryptox"
	"github.com/mpetrenko/postqueue/internal/models"
)

// CredentialRepo persists connected accounts. Access and refresh tokens are
// sealed with Box on the way in and opened on the way out, so callers always
// see plaintext and the table never does.
type CredentialRepo struct {
	DB  DBTX
	Box *cryptox.Box
}

const upsertCredential = `-- name: UpsertCredential
INSERT INTO credentials (id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9)
ON CONFLICT (user_id, platform, account_id) DO UPDATE SET
	access_token  = EXCLUDED.access_token,
	refresh_token = COALESCE(EXCLUDED.refresh_token, credentials.refresh_token),
	expires_at    = EXCLUDED.expires_at,
	account_name  = EXCLUDED.account_name,
	is_active     = TRUE,
	updated_at    = EXCLUDED.updated_at
RETURNING id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at
`

func (r *CredentialRepo) Upsert(ctx context.Context, cred models.Credential) (models.Credential, error) {
	now := time.Now()
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}

	access, err := r.Box.Seal(cred.AccessToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.Box.Seal(cred.RefreshToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("seal refresh token: %w", err)
	}

	rows, _ := r.DB.Query(ctx, upsertCredential,
		cred.ID, cred.UserID, cred.Platform, access, nullString(refresh),
		cred.ExpiresAt, cred.AccountID, cred.AccountName, now,
	)
	stored, err := pgx.CollectOneRow(rows, r.rowToCredential)
	if err != nil {
		return stored, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

const getCredentialByID = `-- name: GetCredentialByID
SELECT id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at
FROM credentials
WHERE id = $1
`

func (r *CredentialRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Credential, error) {
	rows, _ := r.DB.Query(ctx, getCredentialByID, id)
	cred, err := pgx.CollectOneRow(rows, r.rowToCredential)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return cred, fmt.Errorf("repo error: %w", apperrors.ErrCredentialNotFound)
	case err != nil:
		return cred, fmt.Errorf("db error: %w", err)
	default:
		return cred, nil
	}
}

const getActiveCredential = `-- name: GetActiveCredential
SELECT id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at
FROM credentials
WHERE user_id = $1 AND platform = $2 AND is_active
ORDER BY updated_at DESC
LIMIT 1
`

func (r *CredentialRepo) GetActive(ctx context.Context, userID uuid.UUID, platform models.Platform) (models.Credential, error) {
	rows, _ := r.DB.Query(ctx, getActiveCredential, userID, platform)
	cred, err := pgx.CollectOneRow(rows, r.rowToCredential)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return cred, fmt.Errorf("repo error: %w", apperrors.ErrCredentialNotFound)
	case err != nil:
		return cred, fmt.Errorf("db error: %w", err)
	default:
		return cred, nil
	}
}

const listCredentialsForUser = `-- name: ListCredentialsForUser
SELECT id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at
FROM credentials
WHERE user_id = $1 AND platform = $2
ORDER BY updated_at DESC
`

func (r *CredentialRepo) ListForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) ([]models.Credential, error) {
	rows, _ := r.DB.Query(ctx, listCredentialsForUser, userID, platform)
	creds, err := pgx.CollectRows(rows, r.rowToCredential)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return creds, nil
}

const updateCredentialTokens = `-- name: UpdateCredentialTokens
UPDATE credentials
SET access_token  = $2,
    refresh_token = COALESCE($3, refresh_token),
    expires_at    = $4,
    updated_at    = $5
WHERE id = $1
RETURNING id, user_id, platform, access_token, refresh_token, expires_at, account_id, account_name, is_active, created_at, updated_at
`

// UpdateTokens rotates the access token. The refresh token column is only
// touched when the platform issued a new one (refreshToken != ""): COALESCE
// keeps the stored value otherwise.
func (r *CredentialRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken string, expiresAt *time.Time) (models.Credential, error) {
	access, err := r.Box.Seal(accessToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.Box.Seal(refreshToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("seal refresh token: %w", err)
	}

	rows, _ := r.DB.Query(ctx, updateCredentialTokens, id, access, nullString(refresh), expiresAt, time.Now())
	cred, err := pgx.CollectOneRow(rows, r.rowToCredential)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return cred, fmt.Errorf("repo error: %w", apperrors.ErrCredentialNotFound)
	case err != nil:
		return cred, fmt.Errorf("db error: %w", err)
	default:
		return cred, nil
	}
}

const deactivateCredential = `-- name: DeactivateCredential
UPDATE credentials
SET is_active = FALSE, updated_at = $2
WHERE id = $1
`

func (r *CredentialRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deactivateCredential, id, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrCredentialNotFound)
	}
	return nil
}

const deleteCredentialsForUser = `-- name: DeleteCredentialsForUser
DELETE FROM credentials
WHERE user_id = $1 AND platform = $2
`

func (r *CredentialRepo) DeleteForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteCredentialsForUser, userID, platform)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CredentialRepo) rowToCredential(row pgx.CollectableRow) (models.Credential, error) {
	var c models.Credential
	var refresh *string

	err := row.Scan(
		&c.ID, &c.UserID, &c.Platform, &c.AccessToken, &refresh, &c.ExpiresAt,
		&c.AccountID, &c.AccountName, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}

	if c.AccessToken, err = r.Box.Open(c.AccessToken); err != nil {
		return c, fmt.Errorf("open access token: %w", err)
	}
	if refresh != nil {
		if c.RefreshToken, err = r.Box.Open(*refresh); err != nil {
			return c, fmt.Errorf("open refresh token: %w", err)
		}
	}
	return c, nil
}
