package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/handlers/render"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/service/post"
)

type postService interface {
	Schedule(ctx context.Context, opts post.ScheduleOpts) (models.ScheduledPost, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.ScheduledPost, error)
	Cancel(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.ScheduledPost, error)
}

type PostHandler struct {
	posts  postService
	logger logger.Logger
}

func NewPosts(posts postService, logger logger.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type schedulePostRequest struct {
	UserID      string            `json:"user_id" validate:"required,uuid"`
	Content     string            `json:"content" validate:"required"`
	Platforms   []string          `json:"platforms" validate:"required,min=1"`
	MediaURLs   []string          `json:"media_urls"`
	Options     map[string]string `json:"options"`
	ScheduledAt time.Time         `json:"scheduled_at" validate:"required"`
}

type postResponse struct {
	ID              string            `json:"id"`
	Content         string            `json:"content"`
	Platforms       []models.Platform `json:"platforms"`
	MediaURLs       []string          `json:"media_urls,omitempty"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	Status          string            `json:"status"`
	ExternalPostIDs map[string]string `json:"external_post_ids,omitempty"`
	ExternalURLs    map[string]string `json:"external_urls,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	RetryCount      int               `json:"retry_count"`
	CreatedAt       time.Time         `json:"created_at"`
}

func toPostResponse(p models.ScheduledPost) postResponse {
	return postResponse{
		ID:              p.ID.String(),
		Content:         p.Content,
		Platforms:       p.Platforms,
		MediaURLs:       p.MediaURLs,
		ScheduledAt:     p.ScheduledAt,
		Status:          p.Status,
		ExternalPostIDs: p.ExternalPostIDs,
		ExternalURLs:    p.ExternalURLs,
		ErrorMessage:    p.ErrorMessage,
		RetryCount:      p.RetryCount,
		CreatedAt:       p.CreatedAt,
	}
}

// create handles POST /api/posts
func (h *PostHandler) create(w http.ResponseWriter, r *http.Request) {
	req, err := render.BindAndValidate[schedulePostRequest](w, r)
	if err != nil {
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	created, err := h.posts.Schedule(r.Context(), post.ScheduleOpts{
		UserID:      userID,
		Content:     req.Content,
		Platforms:   req.Platforms,
		MediaURLs:   req.MediaURLs,
		Options:     req.Options,
		ScheduledAt: req.ScheduledAt,
	})

	switch {
	case errors.Is(err, apperrors.ErrUnsupportedPlatform):
		render.ServiceError(w, "Unsupported platform", http.StatusBadRequest)
	case err != nil:
		h.logger.Error("failed to schedule post", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	default:
		render.JSONWithStatus(w, toPostResponse(created), http.StatusCreated)
	}
}

// list handles GET /api/posts?user_id=...
func (h *PostHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	posts, err := h.posts.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list posts", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	render.JSON(w, out)
}

// cancel handles DELETE /api/posts/{id}?user_id=...
// A post the dispatcher already claimed cannot be cancelled: the caller gets
// a conflict and the in-flight attempt decides the outcome.
func (h *PostHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Invalid post id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	_, err = h.posts.Cancel(r.Context(), id, userID)
	switch {
	case errors.Is(err, apperrors.ErrPostNotFound):
		render.ServiceError(w, "Post not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrPostNotCancellable):
		render.ServiceError(w, "Post already processing, cannot cancel", http.StatusConflict)
	case err != nil:
		h.logger.Error("failed to cancel post", "error", err, "post_id", id)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
