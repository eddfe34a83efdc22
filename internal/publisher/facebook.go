package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

const defaultGraphAPI = "https://graph.facebook.com/v19.0"

type Facebook struct {
	APIBase string

	client *http.Client
	logger logger.Logger
}

func NewFacebook(client *http.Client, logger logger.Logger) *Facebook {
	return &Facebook{
		APIBase: defaultGraphAPI,
		client:  client,
		logger:  logger,
	}
}

func (f *Facebook) Platform() models.Platform {
	return models.PlatformFacebook
}

// Publish posts to the page feed; with a media URL it goes through the photos
// edge which accepts a remote url directly.
func (f *Facebook) Publish(ctx context.Context, req Request) (Result, error) {
	form := url.Values{}
	endpoint := fmt.Sprintf("%s/%s/feed", f.APIBase, req.AccountID)

	if media := req.firstMedia(); media != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", f.APIBase, req.AccountID)
		form.Set("url", media)
		form.Set("caption", req.Content)
	} else {
		form.Set("message", req.Content)
	}
	form.Set("access_token", req.AccessToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := doJSON(f.client, httpReq, &resp); err != nil {
		return Result{}, err
	}

	// Photos edge returns the photo id plus a post_id, feed just the id
	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}

	f.logger.Debug("facebook post created", "post_id", postID)
	return Result{
		PostID: postID,
		URL:    fmt.Sprintf("https://www.facebook.com/%s", postID),
	}, nil
}

func (f *Facebook) Identity(ctx context.Context, accessToken string) (Account, error) {
	endpoint := fmt.Sprintf("%s/me?fields=id,name&access_token=%s", f.APIBase, url.QueryEscape(accessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Account{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := doJSON(f.client, httpReq, &resp); err != nil {
		return Account{}, err
	}

	return Account{ID: resp.ID, Name: resp.Name}, nil
}
