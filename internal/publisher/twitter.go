package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

const defaultTwitterAPI = "https://api.twitter.com"

type Twitter struct {
	// APIBase is overridable in tests
	APIBase string

	client *http.Client
	logger logger.Logger
}

func NewTwitter(client *http.Client, logger logger.Logger) *Twitter {
	return &Twitter{
		APIBase: defaultTwitterAPI,
		client:  client,
		logger:  logger,
	}
}

func (t *Twitter) Platform() models.Platform {
	return models.PlatformTwitter
}

// Publish posts a tweet via the v2 API. Media URLs are appended to the text:
// attaching binary media needs the separate upload API, which requires
// user-context v1.1 credentials this pipeline doesn't hold.
func (t *Twitter) Publish(ctx context.Context, req Request) (Result, error) {
	text := req.Content
	if media := req.firstMedia(); media != "" {
		text += "\n" + media
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.APIBase+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(t.client, httpReq, &resp); err != nil {
		return Result{}, err
	}

	t.logger.Debug("tweet created", "tweet_id", resp.Data.ID)
	return Result{
		PostID: resp.Data.ID,
		URL:    fmt.Sprintf("https://twitter.com/i/web/status/%s", resp.Data.ID),
	}, nil
}

func (t *Twitter) Identity(ctx context.Context, accessToken string) (Account, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.APIBase+"/2/users/me", nil)
	if err != nil {
		return Account{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	var resp struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := doJSON(t.client, httpReq, &resp); err != nil {
		return Account{}, err
	}

	return Account{ID: resp.Data.ID, Name: resp.Data.Username}, nil
}
