package models

import (
	"fmt"

	"github.com/mpetrenko/postqueue/internal/apperrors"
)

// Platform is the closed set of social networks posts can be published to.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformReddit    Platform = "reddit"
)

// Platforms lists every supported platform.
// Keep in sync with the publisher registry: one adapter per entry.
var Platforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformReddit,
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("platform %q: %w", s, apperrors.ErrUnsupportedPlatform)
}

func (p Platform) String() string {
	return string(p)
}
