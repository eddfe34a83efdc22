package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const deleteSessionForUser = `-- name: DeleteSessionForUser
DELETE FROM oauth_sessions
WHERE user_id = $1 AND platform = $2
`

const insertSession = `-- name: InsertSession
INSERT INTO oauth_sessions (state, user_id, platform, code_verifier, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Replace drops the pending session for (user, platform) and stores the new
// one in a single transaction, so starting a new authorization invalidates
// the previous state.
func (r *SessionRepo) Replace(ctx context.Context, session models.OAuthSession) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteSessionForUser, session.UserID, session.Platform); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	_, err = tx.Exec(ctx, insertSession,
		session.State, session.UserID, session.Platform,
		nullString(session.CodeVerifier), session.CreatedAt, session.ExpiresAt,
	)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		// Lost the race with a concurrent Begin for the pair (or a state
		// collision, which crypto/rand makes moot)
		return fmt.Errorf("repo error: %w", apperrors.ErrSessionExists)
	default:
		return fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}
	return nil
}

const consumeSession = `-- name: ConsumeSession
DELETE FROM oauth_sessions
WHERE state = $1
RETURNING state, user_id, platform, code_verifier, created_at, expires_at
`

// Consume deletes the session by state and returns it. Delete-returning makes
// the lookup single use: a second call with the same state finds nothing.
func (r *SessionRepo) Consume(ctx context.Context, state string, now time.Time) (models.OAuthSession, error) {
	rows, _ := r.DB.Query(ctx, consumeSession, state)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	case err != nil:
		return session, fmt.Errorf("db error: %w", err)
	case session.Expired(now):
		// Row is gone already, the caller only learns it came too late
		return models.OAuthSession{}, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return session, nil
	}
}

func (r *SessionRepo) DeleteForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) error {
	if _, err := r.DB.Exec(ctx, deleteSessionForUser, userID, platform); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToSession(row pgx.CollectableRow) (models.OAuthSession, error) {
	var s models.OAuthSession
	var verifier *string

	err := row.Scan(&s.State, &s.UserID, &s.Platform, &verifier, &s.CreatedAt, &s.ExpiresAt)
	if verifier != nil {
		s.CodeVerifier = *verifier
	}
	return s, err
}

// nullString maps "" to NULL for optional text columns
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
