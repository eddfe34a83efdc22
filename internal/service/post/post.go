// Package post is the scheduling surface: create, list and cancel queued
// posts. Publishing itself is the dispatcher's job.
package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/repository"
)

var ErrNoPlatforms = errors.New("post must target at least one platform")
var ErrEmptyContent = errors.New("post content must not be empty")

type Service struct {
	posts  repository.PostRepo
	logger logger.Logger
}

func NewService(posts repository.PostRepo, logger logger.Logger) *Service {
	return &Service{posts: posts, logger: logger}
}

// ScheduleOpts is everything the authoring surface provides
type ScheduleOpts struct {
	UserID      uuid.UUID
	Content     string
	Platforms   []string
	MediaURLs   []string
	Options     map[string]string
	ScheduledAt time.Time
}

func (s *Service) Schedule(ctx context.Context, opts ScheduleOpts) (models.ScheduledPost, error) {
	if opts.Content == "" {
		return models.ScheduledPost{}, ErrEmptyContent
	}
	if len(opts.Platforms) == 0 {
		return models.ScheduledPost{}, ErrNoPlatforms
	}

	platforms := make([]models.Platform, 0, len(opts.Platforms))
	for _, raw := range opts.Platforms {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			return models.ScheduledPost{}, err
		}
		platforms = append(platforms, p)
	}

	created, err := s.posts.Create(ctx, models.ScheduledPost{
		UserID:      opts.UserID,
		Content:     opts.Content,
		Platforms:   platforms,
		MediaURLs:   opts.MediaURLs,
		Options:     opts.Options,
		ScheduledAt: opts.ScheduledAt,
		Status:      models.PostStatusScheduled,
	})
	if err != nil {
		return created, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("post scheduled",
		"post_id", created.ID, "user_id", created.UserID,
		"platforms", opts.Platforms, "scheduled_at", created.ScheduledAt)
	return created, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.ScheduledPost, error) {
	return s.posts.ListForUser(ctx, userID)
}

// Cancel marks a still-scheduled post cancelled. The conditional update in
// the repository settles the race with the dispatcher: a post already being
// processed returns apperrors.ErrPostNotCancellable and its outcome is up to
// the in-flight attempt.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.ScheduledPost, error) {
	cancelled, err := s.posts.Cancel(ctx, id, userID)
	if err != nil {
		return cancelled, err
	}

	s.logger.Info("post cancelled", "post_id", id, "user_id", userID)
	return cancelled, nil
}
