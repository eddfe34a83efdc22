package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuthSession is the short lived state of one authorization attempt.
// Created when the user is redirected to the platform, consumed exactly once
// by the callback. CodeVerifier is empty for platforms that don't use PKCE.
type OAuthSession struct {
	State        string
	UserID       uuid.UUID
	Platform     Platform
	CodeVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (s OAuthSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
