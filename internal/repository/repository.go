package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/postqueue/internal/models"
)

// OAuth session repository interface
type SessionRepo interface {
	// Replace deletes any pending session for (session.UserID, session.Platform)
	// and stores the new one. At most one session per pair may exist.
	Replace(ctx context.Context, session models.OAuthSession) error

	// Consume looks the session up by state and deletes it in the same
	// statement, so a state can be consumed at most once.
	// Expired sessions are deleted too but returned as apperrors.ErrSessionNotFound.
	Consume(ctx context.Context, state string, now time.Time) (models.OAuthSession, error)

	// DeleteForUser removes a pending session for the pair if any. Idempotent.
	DeleteForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) error
}

// Credential repository interface
type CredentialRepo interface {
	// Upsert creates the credential or, when the same external account is
	// connected again, updates tokens and identity of the existing row.
	Upsert(ctx context.Context, cred models.Credential) (models.Credential, error)

	// GetByID returns the credential or apperrors.ErrCredentialNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Credential, error)

	// GetActive returns the most recently updated active credential for the
	// pair or apperrors.ErrCredentialNotFound
	GetActive(ctx context.Context, userID uuid.UUID, platform models.Platform) (models.Credential, error)

	// ListForUser returns all credentials for the pair, newest first
	ListForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) ([]models.Credential, error)

	// UpdateTokens rotates the access token and expiry.
	// Empty refreshToken keeps the stored one: platforms that don't rotate the
	// refresh token must not lose it.
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken string, expiresAt *time.Time) (models.Credential, error)

	// Deactivate soft deletes the credential (is_active = false)
	Deactivate(ctx context.Context, id uuid.UUID) error

	// DeleteForUser hard deletes all credentials for the pair, returns the
	// number of rows removed. Idempotent.
	DeleteForUser(ctx context.Context, userID uuid.UUID, platform models.Platform) (int64, error)
}

// Scheduled post repository interface
type PostRepo interface {
	Create(ctx context.Context, post models.ScheduledPost) (models.ScheduledPost, error)

	// GetByID returns the post or apperrors.ErrPostNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.ScheduledPost, error)

	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ScheduledPost, error)

	// ListDue returns posts in 'scheduled' status with scheduled_at <= now,
	// oldest first
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledPost, error)

	// Claim transitions 'scheduled' -> 'processing' as a single conditional
	// update. If another worker got there first it returns
	// apperrors.ErrPostAlreadyClaimed. This is the at-most-once guard.
	Claim(ctx context.Context, id uuid.UUID) (models.ScheduledPost, error)

	// MarkPublished finishes a claimed post: 'processing' -> 'published'
	MarkPublished(ctx context.Context, id uuid.UUID, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error)

	// MarkFailed finishes a claimed post: 'processing' -> 'failed'.
	// Partial per-platform successes are preserved in the maps.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error)

	// Reschedule returns a claimed post to the queue with a new due time and
	// incremented retry count: 'processing' -> 'scheduled'
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time, retryCount int, errMsg string, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error)

	// Cancel transitions 'scheduled' -> 'cancelled' conditionally. A post
	// already claimed by the dispatcher returns apperrors.ErrPostNotCancellable,
	// a missing or foreign post apperrors.ErrPostNotFound.
	Cancel(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.ScheduledPost, error)
}

// Storage aggregates repositories sharing one connection or transaction
type Storage interface {
	Sessions() SessionRepo
	Credentials() CredentialRepo
	Posts() PostRepo

	// InTx runs fn with a Storage bound to a single transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
