// Package publisher hides each social network's posting API behind one
// capability: publish content for a connected account, return the external
// post id. One adapter per platform, registered in Registry.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

const (
	// Platform answered non-2xx: the body is kept for diagnostics
	CodePlatform = "platform-rejected"
	// Request never got a usable answer (network, timeout, bad payload)
	CodeNetwork = "network"
	// The platform has no text-only path and no media was supplied
	CodeMediaRequired = "media-required"
	// Required platform option missing (e.g. reddit subreddit)
	CodeOptionMissing = "option-missing"
)

// Error is the publish failure with everything the retry policy and the user
// facing error message need.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, status: %d, message: %s", e.Code, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can possibly succeed.
// Missing media or options won't fix themselves.
func (e *Error) Retryable() bool {
	return e.Code != CodeMediaRequired && e.Code != CodeOptionMissing
}

func newPlatformError(status int, body []byte) *Error {
	return &Error{Code: CodePlatform, StatusCode: status, Message: string(body)}
}

// Request carries already validated content plus the credential parts a
// platform call needs. AccountID matters for graph-style APIs that post "as"
// an account.
type Request struct {
	Content     string
	MediaURLs   []string
	AccessToken string
	AccountID   string
	Options     map[string]string
}

func (r Request) firstMedia() string {
	if len(r.MediaURLs) == 0 {
		return ""
	}
	return r.MediaURLs[0]
}

// Result of a successful publish
type Result struct {
	PostID string
	URL    string
}

// Account is the minimal identity fetched after a successful authorization
type Account struct {
	ID   string
	Name string
}

// Publisher is the uniform capability every platform adapter implements
type Publisher interface {
	Platform() models.Platform

	// Publish posts the content with the account's access token.
	// Fails with *Error.
	Publish(ctx context.Context, req Request) (Result, error)

	// Identity fetches id and display name of the token's account
	Identity(ctx context.Context, accessToken string) (Account, error)
}

// Registry holds one adapter per supported platform
type Registry struct {
	publishers map[models.Platform]Publisher
}

func NewRegistry(client *http.Client, logger logger.Logger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	r := &Registry{publishers: make(map[models.Platform]Publisher)}
	for _, p := range []Publisher{
		NewTwitter(client, logger),
		NewLinkedIn(client, logger),
		NewFacebook(client, logger),
		NewInstagram(client, logger),
		NewReddit(client, logger),
	} {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) For(platform models.Platform) (Publisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("publisher for %q: %w", platform, apperrors.ErrUnsupportedPlatform)
	}
	return p, nil
}

// Identity resolves the adapter and fetches the account identity in one go,
// which is all the authorization flow needs.
func (r *Registry) Identity(ctx context.Context, platform models.Platform, accessToken string) (Account, error) {
	p, err := r.For(platform)
	if err != nil {
		return Account{}, err
	}
	return p.Identity(ctx, accessToken)
}

// doJSON sends the request, decodes a 2xx JSON body into out and turns any
// other outcome into *Error. Shared by all adapters.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newPlatformError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Code: CodeNetwork, StatusCode: resp.StatusCode, Message: "unexpected response body", Err: err}
	}
	return nil
}
