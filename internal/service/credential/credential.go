// Package credential decides which connected account the pipeline may use and
// keeps its tokens fresh.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/repository"
)

// A token this close to expiry is refreshed before use
const expiryMargin = 60 * time.Second

type tokenRefresher interface {
	Refresh(ctx context.Context, platform models.Platform, refreshToken string) (*oauth2.Token, error)
}

type Service struct {
	credentials repository.CredentialRepo
	sessions    repository.SessionRepo
	refresher   tokenRefresher
	logger      logger.Logger

	// collapses concurrent refreshes of the same credential so refresh token
	// rotations aren't wasted
	refreshGroup singleflight.Group

	now func() time.Time
}

func NewService(credentials repository.CredentialRepo, sessions repository.SessionRepo, refresher tokenRefresher, logger logger.Logger) *Service {
	return &Service{
		credentials: credentials,
		sessions:    sessions,
		refresher:   refresher,
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve returns a usable credential for the pair, refreshing synchronously
// when the access token is about to expire. Every failure a new attempt can't
// fix maps to apperrors.ErrNoValidCredential so the dispatcher can mark the
// post failed without burning retries.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID, platform models.Platform) (models.Credential, error) {
	cred, err := s.credentials.GetActive(ctx, userID, platform)
	if errors.Is(err, apperrors.ErrCredentialNotFound) {
		return models.Credential{}, fmt.Errorf("resolve credential: %w", apperrors.ErrNoValidCredential)
	}
	if err != nil {
		return models.Credential{}, fmt.Errorf("resolve credential: %w", err)
	}

	if !cred.ExpiresWithin(s.now(), expiryMargin) {
		return cred, nil
	}

	refreshed, err := s.RefreshCredential(ctx, cred)
	if errors.Is(err, apperrors.ErrRefreshFailed) {
		return models.Credential{}, fmt.Errorf("resolve credential: %w", apperrors.ErrNoValidCredential)
	}
	if err != nil {
		return models.Credential{}, fmt.Errorf("resolve credential: %w", err)
	}
	return refreshed, nil
}

// RefreshCredential rotates the credential's access token. Safe to call on a
// still-valid credential. When the platform rejects the refresh token the
// credential is deactivated (the user must reconnect) and
// apperrors.ErrRefreshFailed is returned.
func (s *Service) RefreshCredential(ctx context.Context, cred models.Credential) (models.Credential, error) {
	v, err, _ := s.refreshGroup.Do(cred.ID.String(), func() (any, error) {
		token, err := s.refresher.Refresh(ctx, cred.Platform, cred.RefreshToken)
		if errors.Is(err, apperrors.ErrRefreshFailed) {
			// Definite rejection: the refresh token is dead, keep the row for
			// history but stop using it
			if deactivateErr := s.credentials.Deactivate(ctx, cred.ID); deactivateErr != nil {
				s.logger.Error("failed to deactivate rejected credential",
					"error", deactivateErr, "credential_id", cred.ID)
			}
			s.logger.Warn("credential deactivated, reconnect required",
				"user_id", cred.UserID, "platform", cred.Platform, "account", cred.AccountName)
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		refreshToken := token.RefreshToken
		if refreshToken == cred.RefreshToken {
			// Not rotated: pass empty so the repo keeps the stored value
			refreshToken = ""
		}

		updated, err := s.credentials.UpdateTokens(ctx, cred.ID, token.AccessToken, refreshToken, tokenExpiry(token))
		if err != nil {
			return nil, fmt.Errorf("persist refreshed tokens: %w", err)
		}

		s.logger.Debug("credential refreshed", "credential_id", cred.ID, "platform", cred.Platform)
		return updated, nil
	})
	if err != nil {
		return models.Credential{}, err
	}
	return v.(models.Credential), nil
}

// RefreshByToken backs the internal service-to-service refresh endpoint: the
// caller holds a refresh token and wants a new access token persisted.
func (s *Service) RefreshByToken(ctx context.Context, userID uuid.UUID, platform models.Platform, refreshToken string) (models.Credential, error) {
	creds, err := s.credentials.ListForUser(ctx, userID, platform)
	if err != nil {
		return models.Credential{}, fmt.Errorf("list credentials: %w", err)
	}

	for _, cred := range creds {
		if cred.RefreshToken == refreshToken {
			return s.RefreshCredential(ctx, cred)
		}
	}
	return models.Credential{}, fmt.Errorf("refresh by token: %w", apperrors.ErrCredentialNotFound)
}

// Disconnect removes every credential of the pair and any pending
// authorization session. Idempotent: disconnecting nothing is fine.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID, platform models.Platform) error {
	removed, err := s.credentials.DeleteForUser(ctx, userID, platform)
	if err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	if err := s.sessions.DeleteForUser(ctx, userID, platform); err != nil {
		return fmt.Errorf("delete pending session: %w", err)
	}

	s.logger.Info("platform disconnected", "user_id", userID, "platform", platform, "credentials_removed", removed)
	return nil
}

func tokenExpiry(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	expiry := token.Expiry
	return &expiry
}
