package apperrors

import (
	"errors"
)

var (
	ErrUnsupportedPlatform = errors.New("platform is not supported")

	ErrSessionNotFound = errors.New("authorization session not found")
	ErrSessionExists   = errors.New("authorization session already exists")

	// The callback state is unknown, already consumed or expired.
	// The user has to restart the connect flow.
	ErrInvalidState = errors.New("authorization state is invalid or expired")

	ErrTokenExchangeFailed = errors.New("platform rejected the code exchange")
	ErrRefreshFailed       = errors.New("platform rejected the refresh token")

	ErrCredentialNotFound = errors.New("credential not found")
	ErrNoValidCredential  = errors.New("no valid credential")

	ErrMediaRequired = errors.New("platform requires media attachment")

	ErrPostNotFound       = errors.New("post not found")
	ErrPostAlreadyClaimed = errors.New("post already claimed for processing")
	ErrPostNotCancellable = errors.New("post already processing, cannot cancel")
)
