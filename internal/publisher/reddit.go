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

const defaultRedditAPI = "https://oauth.reddit.com"

// OptionSubreddit names the target community in ScheduledPost options
const OptionSubreddit = "subreddit"

// Reddit refuses requests with a default library user agent
const redditUserAgent = "postqueue/1.0"

type Reddit struct {
	APIBase string

	client *http.Client
	logger logger.Logger
}

func NewReddit(client *http.Client, logger logger.Logger) *Reddit {
	return &Reddit{
		APIBase: defaultRedditAPI,
		client:  client,
		logger:  logger,
	}
}

func (r *Reddit) Platform() models.Platform {
	return models.PlatformReddit
}

// Publish submits to the subreddit named in options: a link post when a media
// URL is present, a self post otherwise.
func (r *Reddit) Publish(ctx context.Context, req Request) (Result, error) {
	subreddit := req.Options[OptionSubreddit]
	if subreddit == "" {
		return Result{}, &Error{
			Code:    CodeOptionMissing,
			Message: "reddit posts require a target subreddit",
		}
	}

	// Reddit wants the first line as the title
	title, body, _ := strings.Cut(req.Content, "\n")

	form := url.Values{}
	form.Set("sr", subreddit)
	form.Set("title", title)
	form.Set("api_type", "json")
	if media := req.firstMedia(); media != "" {
		form.Set("kind", "link")
		form.Set("url", media)
	} else {
		form.Set("kind", "self")
		form.Set("text", body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.APIBase+"/api/submit", strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", redditUserAgent)

	var resp struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := doJSON(r.client, httpReq, &resp); err != nil {
		return Result{}, err
	}

	// api_type=json reports application errors inside a 200 body
	if len(resp.JSON.Errors) > 0 {
		return Result{}, &Error{
			Code:       CodePlatform,
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("reddit rejected submission: %v", resp.JSON.Errors),
		}
	}

	r.logger.Debug("reddit submission created", "submission_id", resp.JSON.Data.ID)
	return Result{PostID: resp.JSON.Data.ID, URL: resp.JSON.Data.URL}, nil
}

func (r *Reddit) Identity(ctx context.Context, accessToken string) (Account, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.APIBase+"/api/v1/me", nil)
	if err != nil {
		return Account{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("User-Agent", redditUserAgent)

	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := doJSON(r.client, httpReq, &resp); err != nil {
		return Account{}, err
	}

	return Account{ID: resp.ID, Name: resp.Name}, nil
}
