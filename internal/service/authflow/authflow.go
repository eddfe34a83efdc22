// Package authflow drives the OAuth authorization code flow against each
// platform: it issues the redirect, tracks the pending session, exchanges the
// callback code for tokens and owns every token endpoint interaction
// (including refresh).
package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/publisher"
	"github.com/mpetrenko/postqueue/internal/repository"
)

const (
	// Pending sessions live this long, the platform consent screen included
	defaultSessionTTL = 10 * time.Minute

	// 32 random bytes, 43 chars base64: both state and verifier sizes the
	// RFCs ask for
	stateEntropy = 32
)

// Config for the authorization flow.
// Endpoints overrides token/auth URLs, used by tests.
type Config struct {
	PublicBaseURL string
	Clients       map[models.Platform]ClientCredentials
	Endpoints     map[models.Platform]oauth2.Endpoint
	SessionTTL    time.Duration
}

type identityFetcher interface {
	Identity(ctx context.Context, platform models.Platform, accessToken string) (publisher.Account, error)
}

type Service struct {
	providers   map[models.Platform]*provider
	sessions    repository.SessionRepo
	credentials repository.CredentialRepo
	identities  identityFetcher
	sessionTTL  time.Duration
	logger      logger.Logger

	now func() time.Time
}

func NewService(cfg Config, sessions repository.SessionRepo, credentials repository.CredentialRepo, identities identityFetcher, logger logger.Logger) *Service {
	ttl := cfg.SessionTTL
	if ttl == 0 {
		ttl = defaultSessionTTL
	}

	return &Service{
		providers:   newProviders(cfg),
		sessions:    sessions,
		credentials: credentials,
		identities:  identities,
		sessionTTL:  ttl,
		logger:      logger,
		now:         time.Now,
	}
}

// Begin starts the authorization flow: stores a pending session (replacing
// any previous one for the pair) and returns the platform's consent URL.
func (s *Service) Begin(ctx context.Context, userID uuid.UUID, platform models.Platform) (string, error) {
	p, ok := s.providers[platform]
	if !ok {
		return "", fmt.Errorf("begin authorization: %w", apperrors.ErrUnsupportedPlatform)
	}

	state, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	session := models.OAuthSession{
		State:     state,
		UserID:    userID,
		Platform:  platform,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.sessionTTL),
	}

	opts := append([]oauth2.AuthCodeOption{}, p.authParams...)
	if p.usesPKCE {
		verifier := oauth2.GenerateVerifier()
		session.CodeVerifier = verifier
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	if err := s.sessions.Replace(ctx, session); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	s.logger.Info("authorization started", "user_id", userID, "platform", platform)
	return p.oauth.AuthCodeURL(state, opts...), nil
}

// Complete consumes the session behind state, exchanges the code for tokens,
// fetches the account identity and stores the credential. Reconnecting the
// same external account updates the stored credential instead of duplicating.
func (s *Service) Complete(ctx context.Context, code string, state string) (models.Credential, error) {
	session, err := s.sessions.Consume(ctx, state, s.now())
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return models.Credential{}, fmt.Errorf("consume session: %w", apperrors.ErrInvalidState)
	}
	if err != nil {
		return models.Credential{}, fmt.Errorf("consume session: %w", err)
	}

	p := s.providers[session.Platform]

	var opts []oauth2.AuthCodeOption
	if session.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(session.CodeVerifier))
	}

	token, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return models.Credential{}, exchangeError(err, apperrors.ErrTokenExchangeFailed)
	}

	account, err := s.identities.Identity(ctx, session.Platform, token.AccessToken)
	if err != nil {
		return models.Credential{}, fmt.Errorf("fetch account identity: %w", err)
	}

	cred, err := s.credentials.Upsert(ctx, models.Credential{
		UserID:       session.UserID,
		Platform:     session.Platform,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    tokenExpiry(token),
		AccountID:    account.ID,
		AccountName:  account.Name,
	})
	if err != nil {
		return models.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	s.logger.Info("account connected",
		"user_id", session.UserID, "platform", session.Platform, "account", account.Name)
	return cred, nil
}

// Refresh exchanges a refresh token for a fresh access token on the
// platform's token endpoint. The returned token keeps the old refresh token
// when the platform doesn't rotate it.
// A rejection by the platform maps to apperrors.ErrRefreshFailed; transient
// transport errors stay plain so callers can tell them apart.
func (s *Service) Refresh(ctx context.Context, platform models.Platform, refreshToken string) (*oauth2.Token, error) {
	p, ok := s.providers[platform]
	if !ok {
		return nil, fmt.Errorf("refresh: %w", apperrors.ErrUnsupportedPlatform)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w", apperrors.ErrRefreshFailed)
	}

	// TokenSource carries the old refresh token over when the response has none
	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, exchangeError(err, apperrors.ErrRefreshFailed)
	}

	return token, nil
}

// exchangeError keeps the platform's error body for diagnostics but only maps
// definite rejections (oauth2.RetrieveError) to the sentinel
func exchangeError(err error, sentinel error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: platform answered %d: %s", sentinel, re.Response.StatusCode, re.Body)
	}
	return fmt.Errorf("token endpoint: %w", err)
}

func tokenExpiry(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	expiry := token.Expiry
	return &expiry
}

func randomToken() (string, error) {
	buf := make([]byte, stateEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
