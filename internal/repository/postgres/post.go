package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/models"
)

type PostRepo struct {
	DB DBTX
}

const postColumns = `id, user_id, content, platforms, media_urls, options, scheduled_at, status, external_post_ids, external_urls, error_message, retry_count, created_at, updated_at`

const createPost = `-- name: CreatePost
INSERT INTO scheduled_posts (id, user_id, content, platforms, media_urls, options, scheduled_at, status, external_post_ids, external_urls, retry_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', '{}', 0, $9, $9)
RETURNING ` + postColumns

func (r *PostRepo) Create(ctx context.Context, post models.ScheduledPost) (models.ScheduledPost, error) {
	now := time.Now()
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.Status == "" {
		post.Status = models.PostStatusScheduled
	}
	if post.Options == nil {
		post.Options = map[string]string{}
	}
	if post.MediaURLs == nil {
		post.MediaURLs = []string{}
	}

	rows, _ := r.DB.Query(ctx, createPost,
		post.ID, post.UserID, post.Content, platformStrings(post.Platforms),
		post.MediaURLs, post.Options, post.ScheduledAt, post.Status, now,
	)
	created, err := pgx.CollectOneRow(rows, rowToPost)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getPostByID = `-- name: GetPostByID
SELECT ` + postColumns + `
FROM scheduled_posts
WHERE id = $1
`

func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, getPostByID, id)
	post, err := pgx.CollectOneRow(rows, rowToPost)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return post, fmt.Errorf("repo error: %w", apperrors.ErrPostNotFound)
	case err != nil:
		return post, fmt.Errorf("db error: %w", err)
	default:
		return post, nil
	}
}

const listPostsForUser = `-- name: ListPostsForUser
SELECT ` + postColumns + `
FROM scheduled_posts
WHERE user_id = $1
ORDER BY scheduled_at DESC
`

func (r *PostRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, listPostsForUser, userID)
	posts, err := pgx.CollectRows(rows, rowToPost)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return posts, nil
}

const listDuePosts = `-- name: ListDuePosts
SELECT ` + postColumns + `
FROM scheduled_posts
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
LIMIT $2
`

func (r *PostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, listDuePosts, now, limit)
	posts, err := pgx.CollectRows(rows, rowToPost)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return posts, nil
}

const claimPost = `-- name: ClaimPost
UPDATE scheduled_posts
SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'scheduled'
RETURNING ` + postColumns

// Claim is the single-flight guard: the conditional update succeeds for
// exactly one concurrent worker, everyone else gets no row back.
func (r *PostRepo) Claim(ctx context.Context, id uuid.UUID) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, claimPost, id, time.Now())
	post, err := pgx.CollectOneRow(rows, rowToPost)

	switch {
	case err == nil:
		return post, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either claimed by another worker or gone, tell them apart
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return post, getErr
		}
		return post, fmt.Errorf("repo error: %w", apperrors.ErrPostAlreadyClaimed)
	default:
		return post, fmt.Errorf("db error: %w", err)
	}
}

const markPostPublished = `-- name: MarkPostPublished
UPDATE scheduled_posts
SET status = 'published', external_post_ids = $2, external_urls = $3, error_message = NULL, updated_at = $4
WHERE id = $1 AND status = 'processing'
RETURNING ` + postColumns

func (r *PostRepo) MarkPublished(ctx context.Context, id uuid.UUID, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, markPostPublished, id, orEmpty(externalIDs), orEmpty(externalURLs), time.Now())
	return collectClaimed(rows)
}

const markPostFailed = `-- name: MarkPostFailed
UPDATE scheduled_posts
SET status = 'failed', error_message = $2, external_post_ids = $3, external_urls = $4, updated_at = $5
WHERE id = $1 AND status = 'processing'
RETURNING ` + postColumns

func (r *PostRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, markPostFailed, id, errMsg, orEmpty(externalIDs), orEmpty(externalURLs), time.Now())
	return collectClaimed(rows)
}

const reschedulePost = `-- name: ReschedulePost
UPDATE scheduled_posts
SET status = 'scheduled', scheduled_at = $2, retry_count = $3, error_message = $4, external_post_ids = $5, external_urls = $6, updated_at = $7
WHERE id = $1 AND status = 'processing'
RETURNING ` + postColumns

func (r *PostRepo) Reschedule(ctx context.Context, id uuid.UUID, at time.Time, retryCount int, errMsg string, externalIDs, externalURLs map[string]string) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, reschedulePost, id, at, retryCount, errMsg, orEmpty(externalIDs), orEmpty(externalURLs), time.Now())
	return collectClaimed(rows)
}

const cancelPost = `-- name: CancelPost
UPDATE scheduled_posts
SET status = 'cancelled', updated_at = $3
WHERE id = $1 AND user_id = $2 AND status = 'scheduled'
RETURNING ` + postColumns

// Cancel races with the dispatcher's Claim on purpose: whichever conditional
// update runs first wins, the loser sees no rows.
func (r *PostRepo) Cancel(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.ScheduledPost, error) {
	rows, _ := r.DB.Query(ctx, cancelPost, id, userID, time.Now())
	post, err := pgx.CollectOneRow(rows, rowToPost)

	switch {
	case err == nil:
		return post, nil
	case errors.Is(err, pgx.ErrNoRows):
		current, getErr := r.GetByID(ctx, id)
		switch {
		case getErr != nil:
			return post, getErr
		case current.UserID != userID:
			return post, fmt.Errorf("repo error: %w", apperrors.ErrPostNotFound)
		default:
			return current, fmt.Errorf("repo error: %w", apperrors.ErrPostNotCancellable)
		}
	default:
		return post, fmt.Errorf("db error: %w", err)
	}
}

// collectClaimed maps the no-row result of a 'WHERE status=processing' update.
// Only the worker holding the claim may finish the post, so no row means the
// caller never claimed it (or the post vanished).
func collectClaimed(rows pgx.Rows) (models.ScheduledPost, error) {
	post, err := pgx.CollectOneRow(rows, rowToPost)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return post, fmt.Errorf("repo error: %w", apperrors.ErrPostNotFound)
	case err != nil:
		return post, fmt.Errorf("db error: %w", err)
	default:
		return post, nil
	}
}

func rowToPost(row pgx.CollectableRow) (models.ScheduledPost, error) {
	var p models.ScheduledPost
	var platforms []string
	var errMsg *string

	err := row.Scan(
		&p.ID, &p.UserID, &p.Content, &platforms, &p.MediaURLs, &p.Options,
		&p.ScheduledAt, &p.Status, &p.ExternalPostIDs, &p.ExternalURLs,
		&errMsg, &p.RetryCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	p.Platforms = make([]models.Platform, 0, len(platforms))
	for _, s := range platforms {
		p.Platforms = append(p.Platforms, models.Platform(s))
	}
	if errMsg != nil {
		p.ErrorMessage = *errMsg
	}
	return p, nil
}

func platformStrings(platforms []models.Platform) []string {
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, p.String())
	}
	return out
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
