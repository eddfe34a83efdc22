package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusProcessing = "processing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

// ScheduledPost is one queued publication. A post may target several
// platforms; ExternalPostIDs records which of them already succeeded so a
// retry never publishes to the same platform twice.
type ScheduledPost struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Content   string
	Platforms []Platform
	MediaURLs []string

	// Options carries platform specific parameters, e.g. the target
	// subreddit for reddit
	Options map[string]string

	ScheduledAt     time.Time
	Status          string
	ExternalPostIDs map[string]string
	ExternalURLs    map[string]string
	ErrorMessage    string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublishedOn reports whether the post already went out on the platform.
func (p ScheduledPost) PublishedOn(platform Platform) bool {
	_, ok := p.ExternalPostIDs[platform.String()]
	return ok
}
