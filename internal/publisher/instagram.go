package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

type Instagram struct {
	APIBase string

	client *http.Client
	logger logger.Logger
}

func NewInstagram(client *http.Client, logger logger.Logger) *Instagram {
	return &Instagram{
		APIBase: defaultGraphAPI,
		client:  client,
		logger:  logger,
	}
}

func (i *Instagram) Platform() models.Platform {
	return models.PlatformInstagram
}

// Publish runs the two step container flow: create a media container with the
// image url, then publish it. Instagram has no text-only path, so a missing
// media URL fails fast and is never retried.
func (i *Instagram) Publish(ctx context.Context, req Request) (Result, error) {
	media := req.firstMedia()
	if media == "" {
		return Result{}, &Error{
			Code:    CodeMediaRequired,
			Message: "instagram posts require a media url",
			Err:     apperrors.ErrMediaRequired,
		}
	}

	// Step 1: media container
	form := url.Values{}
	form.Set("image_url", media)
	form.Set("caption", req.Content)
	form.Set("access_token", req.AccessToken)

	containerReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/media", i.APIBase, req.AccountID), strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	containerReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var container struct {
		ID string `json:"id"`
	}
	if err := doJSON(i.client, containerReq, &container); err != nil {
		return Result{}, err
	}

	// Step 2: publish the container
	form = url.Values{}
	form.Set("creation_id", container.ID)
	form.Set("access_token", req.AccessToken)

	publishReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/media_publish", i.APIBase, req.AccountID), strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	publishReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var published struct {
		ID string `json:"id"`
	}
	if err := doJSON(i.client, publishReq, &published); err != nil {
		return Result{}, err
	}

	i.logger.Debug("instagram media published", "media_id", published.ID)
	return Result{PostID: published.ID}, nil
}

func (i *Instagram) Identity(ctx context.Context, accessToken string) (Account, error) {
	endpoint := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", i.APIBase, url.QueryEscape(accessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Account{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := doJSON(i.client, httpReq, &resp); err != nil {
		return Account{}, err
	}

	return Account{ID: resp.ID, Name: resp.Username}, nil
}
