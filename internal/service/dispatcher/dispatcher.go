// Package dispatcher polls for due posts and publishes them. Safe to run in
// several instances at once: the conditional claim in the post repository
// guarantees each post is processed by exactly one of them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/publisher"
	"github.com/mpetrenko/postqueue/internal/repository"
)

const (
	defaultInterval  = 15 * time.Second
	defaultBatchSize = 50

	// Pause between posts within one tick, a deliberate throughput throttle
	// for platform rate limits
	defaultPostDelay = time.Second

	defaultMaxRetries  = 3
	defaultBackoffBase = time.Minute
)

type credentialResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, platform models.Platform) (models.Credential, error)
}

type publisherRegistry interface {
	For(platform models.Platform) (publisher.Publisher, error)
}

type Config struct {
	Interval    time.Duration
	PostDelay   time.Duration
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
}

type Dispatcher struct {
	interval    time.Duration
	postDelay   time.Duration
	batchSize   int
	maxRetries  int
	backoffBase time.Duration

	posts       repository.PostRepo
	credentials credentialResolver
	publishers  publisherRegistry
	logger      logger.Logger

	now func() time.Time
}

func New(cfg Config, posts repository.PostRepo, credentials credentialResolver, publishers publisherRegistry, logger logger.Logger) *Dispatcher {
	d := &Dispatcher{
		interval:    cfg.Interval,
		postDelay:   cfg.PostDelay,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		posts:       posts,
		credentials: credentials,
		publishers:  publishers,
		logger:      logger,
		now:         time.Now,
	}

	if d.interval <= 0 {
		d.interval = defaultInterval
	}
	if d.postDelay < 0 {
		d.postDelay = defaultPostDelay
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultBatchSize
	}
	if d.maxRetries <= 0 {
		d.maxRetries = defaultMaxRetries
	}
	if d.backoffBase <= 0 {
		d.backoffBase = defaultBackoffBase
	}

	return d
}

// Run starts the polling loop and returns a channel that closes once the
// loop has fully stopped after ctx cancellation. Started explicitly by the
// process entry point, never as an import side effect.
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	d.logger.Info("dispatcher starting", "interval", d.interval, "batch_size", d.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.logger.Debug("dispatcher stopped by context")
				return
			case <-ticker.C:
				d.RunOnce(ctx)
			}
		}
	}()

	return idleStopped
}

// RunOnce is one tick: select due posts oldest first, claim and publish each.
// Idempotent and safe to invoke concurrently, posts another run claimed first
// are skipped silently.
func (d *Dispatcher) RunOnce(ctx context.Context) {
	due, err := d.posts.ListDue(ctx, d.now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to list due posts", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	d.logger.Debug("due posts found", "count", len(due))

	for i, p := range due {
		if ctx.Err() != nil {
			return
		}

		claimed, err := d.posts.Claim(ctx, p.ID)
		switch {
		case errors.Is(err, apperrors.ErrPostAlreadyClaimed), errors.Is(err, apperrors.ErrPostNotFound):
			continue
		case err != nil:
			d.logger.Error("failed to claim post", "error", err, "post_id", p.ID)
			continue
		}

		d.process(ctx, claimed)

		if i < len(due)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.postDelay):
			}
		}
	}
}

// outcome of one platform attempt within a post
type attemptError struct {
	platform  models.Platform
	err       error
	retryable bool
}

func (d *Dispatcher) process(ctx context.Context, post models.ScheduledPost) {
	externalIDs := cloneMap(post.ExternalPostIDs)
	externalURLs := cloneMap(post.ExternalURLs)

	var failures []attemptError
	for _, platform := range post.Platforms {
		if post.PublishedOn(platform) {
			continue
		}

		if fail, ok := d.publishOne(ctx, post, platform, externalIDs, externalURLs); !ok {
			failures = append(failures, fail)
		}
	}

	switch {
	case len(failures) == 0:
		if _, err := d.posts.MarkPublished(ctx, post.ID, externalIDs, externalURLs); err != nil {
			d.logger.Error("failed to mark post published", "error", err, "post_id", post.ID)
			return
		}
		d.logger.Info("post published", "post_id", post.ID, "platforms", len(post.Platforms))

	case retryableAny(failures) && post.RetryCount+1 < d.maxRetries:
		// maxRetries caps total failed attempts: the n-th failure is terminal
		retryCount := post.RetryCount + 1
		nextAttempt := d.now().Add(d.backoff(post.RetryCount))

		_, err := d.posts.Reschedule(ctx, post.ID, nextAttempt, retryCount, joinFailures(failures), externalIDs, externalURLs)
		if err != nil {
			d.logger.Error("failed to reschedule post", "error", err, "post_id", post.ID)
			return
		}
		d.logger.Warn("post publish failed, rescheduled",
			"post_id", post.ID, "retry_count", retryCount, "next_attempt", nextAttempt)

	default:
		// Configuration problems (no credential, missing media) and exhausted
		// retries both end here
		if _, err := d.posts.MarkFailed(ctx, post.ID, joinFailures(failures), externalIDs, externalURLs); err != nil {
			d.logger.Error("failed to mark post failed", "error", err, "post_id", post.ID)
			return
		}
		d.logger.Warn("post failed permanently", "post_id", post.ID, "error", joinFailures(failures))
	}
}

// publishOne attempts a single platform. On success the external id maps are
// updated in place, on failure the classified error is returned.
func (d *Dispatcher) publishOne(ctx context.Context, post models.ScheduledPost, platform models.Platform, externalIDs, externalURLs map[string]string) (attemptError, bool) {
	cred, err := d.credentials.Resolve(ctx, post.UserID, platform)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoValidCredential) {
			// A configuration gap, not a transient fault: retrying can't help
			// and must not count against the retry budget
			return attemptError{platform: platform, err: apperrors.ErrNoValidCredential, retryable: false}, false
		}
		return attemptError{platform: platform, err: err, retryable: true}, false
	}

	pub, err := d.publishers.For(platform)
	if err != nil {
		return attemptError{platform: platform, err: err, retryable: false}, false
	}

	result, err := pub.Publish(ctx, publisher.Request{
		Content:     post.Content,
		MediaURLs:   post.MediaURLs,
		AccessToken: cred.AccessToken,
		AccountID:   cred.AccountID,
		Options:     post.Options,
	})
	if err != nil {
		retryable := true
		var pubErr *publisher.Error
		if errors.As(err, &pubErr) {
			retryable = pubErr.Retryable()
		}
		d.logger.Warn("publish attempt failed",
			"post_id", post.ID, "platform", platform, "error", err, "retryable", retryable)
		return attemptError{platform: platform, err: err, retryable: retryable}, false
	}

	externalIDs[platform.String()] = result.PostID
	if result.URL != "" {
		externalURLs[platform.String()] = result.URL
	}
	return attemptError{}, true
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (d *Dispatcher) backoff(retryCount int) time.Duration {
	return d.backoffBase << retryCount
}

func retryableAny(failures []attemptError) bool {
	for _, f := range failures {
		if f.retryable {
			return true
		}
	}
	return false
}

func joinFailures(failures []attemptError) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.platform, f.err))
	}
	return strings.Join(parts, "; ")
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
