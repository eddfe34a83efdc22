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

const defaultLinkedInAPI = "https://api.linkedin.com"

type LinkedIn struct {
	APIBase string

	client *http.Client
	logger logger.Logger
}

func NewLinkedIn(client *http.Client, logger logger.Logger) *LinkedIn {
	return &LinkedIn{
		APIBase: defaultLinkedInAPI,
		client:  client,
		logger:  logger,
	}
}

func (l *LinkedIn) Platform() models.Platform {
	return models.PlatformLinkedIn
}

// Publish creates a UGC post for the member URN. A media URL becomes an
// ARTICLE share, plain text a NONE share.
func (l *LinkedIn) Publish(ctx context.Context, req Request) (Result, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]string{"text": req.Content},
		"shareMediaCategory": "NONE",
	}
	if media := req.firstMedia(); media != "" {
		shareContent["shareMediaCategory"] = "ARTICLE"
		shareContent["media"] = []map[string]any{
			{"status": "READY", "originalUrl": media},
		}
	}

	payload, err := json.Marshal(map[string]any{
		"author":         "urn:li:person:" + req.AccountID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.APIBase+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	var resp struct {
		ID string `json:"id"`
	}
	if err := doJSON(l.client, httpReq, &resp); err != nil {
		return Result{}, err
	}

	l.logger.Debug("linkedin share created", "share_id", resp.ID)
	return Result{
		PostID: resp.ID,
		URL:    fmt.Sprintf("https://www.linkedin.com/feed/update/%s", resp.ID),
	}, nil
}

// Identity uses the OpenID userinfo endpoint (requires the openid scope)
func (l *LinkedIn) Identity(ctx context.Context, accessToken string) (Account, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.APIBase+"/v2/userinfo", nil)
	if err != nil {
		return Account{}, &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	var resp struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := doJSON(l.client, httpReq, &resp); err != nil {
		return Account{}, err
	}

	return Account{ID: resp.Sub, Name: resp.Name}, nil
}
