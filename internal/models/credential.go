package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds the tokens and account identity for one connected external
// account. A user may connect several accounts on the same platform: each gets
// its own row and is refreshed independently.
type Credential struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Platform     Platform
	AccessToken  string
	RefreshToken string

	// ExpiresAt is nil for tokens the platform never expires
	ExpiresAt *time.Time

	AccountID   string
	AccountName string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExpiresWithin reports whether the access token expires within d.
// Non-expiring tokens never do.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.Add(d).After(*c.ExpiresAt)
}
