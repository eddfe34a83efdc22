package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/handlers/render"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

type authFlowService interface {
	// Begin returns the platform's consent URL for the user
	Begin(ctx context.Context, userID uuid.UUID, platform models.Platform) (string, error)

	// Complete exchanges the callback code.
	// Replayed or expired states fail with apperrors.ErrInvalidState.
	Complete(ctx context.Context, code string, state string) (models.Credential, error)
}

type credentialService interface {
	// Disconnect is idempotent: removing nothing is still a success
	Disconnect(ctx context.Context, userID uuid.UUID, platform models.Platform) error

	RefreshByToken(ctx context.Context, userID uuid.UUID, platform models.Platform, refreshToken string) (models.Credential, error)
}

type AuthHandler struct {
	flow        authFlowService
	credentials credentialService
	frontendURL string
	logger      logger.Logger
}

func NewAuth(flow authFlowService, credentials credentialService, frontendURL string, logger logger.Logger) *AuthHandler {
	return &AuthHandler{
		flow:        flow,
		credentials: credentials,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// begin handles GET /auth/{platform}?user_id=...
// Redirects the browser to the platform's consent screen, or to the frontend
// error page when the flow can't start.
func (h *AuthHandler) begin(w http.ResponseWriter, r *http.Request) {
	platform, err := models.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		h.redirectError(w, r, r.PathValue("platform"), "unsupported platform")
		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.redirectError(w, r, platform.String(), "invalid user id")
		return
	}

	authURL, err := h.flow.Begin(r.Context(), userID, platform)
	if err != nil {
		h.logger.Error("failed to begin authorization", "error", err, "platform", platform)
		h.redirectError(w, r, platform.String(), "failed to start authorization")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback handles GET/POST /auth/{platform}/callback with code and state in
// the query or form body, whichever the platform sends.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")

	if errParam := r.FormValue("error"); errParam != "" {
		// User denied consent or the platform refused
		h.redirectError(w, r, platform, errParam)
		return
	}

	code, state := r.FormValue("code"), r.FormValue("state")
	if code == "" || state == "" {
		h.redirectError(w, r, platform, "missing code or state")
		return
	}

	cred, err := h.flow.Complete(r.Context(), code, state)
	switch {
	case errors.Is(err, apperrors.ErrInvalidState):
		h.redirectError(w, r, platform, "authorization session expired, please reconnect")
	case errors.Is(err, apperrors.ErrTokenExchangeFailed):
		h.redirectError(w, r, platform, "platform rejected the authorization")
	case err != nil:
		h.logger.Error("failed to complete authorization", "error", err, "platform", platform)
		h.redirectError(w, r, platform, "failed to complete authorization")
	default:
		target := fmt.Sprintf("%s/connect/success?platform=%s&account=%s",
			h.frontendURL, url.QueryEscape(platform), url.QueryEscape(cred.AccountName))
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// disconnect handles DELETE /auth/{platform}?user_id=...
func (h *AuthHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	platform, err := models.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		render.ServiceError(w, "Unsupported platform", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	if err := h.credentials.Disconnect(r.Context(), userID, platform); err != nil {
		h.logger.Error("failed to disconnect platform", "error", err, "platform", platform)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type refreshRequest struct {
	Platform     string `json:"platform" validate:"required"`
	UserID       string `json:"user_id" validate:"required,uuid"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type refreshResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// refresh handles POST /internal/token/refresh, the service-to-service
// endpoint. The new access token is persisted before it is returned.
func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	req, err := render.BindAndValidate[refreshRequest](w, r)
	if err != nil {
		return
	}

	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		render.ServiceError(w, "Unsupported platform", http.StatusBadRequest)
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	cred, err := h.credentials.RefreshByToken(r.Context(), userID, platform, req.RefreshToken)
	switch {
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		render.ServiceError(w, "Unknown refresh token", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrRefreshFailed):
		render.ServiceError(w, "Platform rejected the refresh token, reconnect required", http.StatusUnprocessableEntity)
	case err != nil:
		h.logger.Error("failed to refresh token", "error", err, "platform", platform)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	default:
		render.JSON(w, refreshResponse{
			AccessToken: cred.AccessToken,
			ExpiresAt:   cred.ExpiresAt,
		})
	}
}

// redirectError sends the browser to the frontend error page with a human
// readable reason. Never includes tokens or platform error bodies.
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, platform string, message string) {
	target := fmt.Sprintf("%s/connect/error?error=%s&platform=%s",
		h.frontendURL, url.QueryEscape(message), url.QueryEscape(platform))
	http.Redirect(w, r, target, http.StatusFound)
}
