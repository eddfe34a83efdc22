package publisher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/models"
)

// recordedRequest keeps what an adapter actually sent
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Form   map[string][]string
	JSON   map[string]any
}

// platformServer fakes a platform API: it records requests and answers each
// with the next scripted response
type platformServer struct {
	*httptest.Server

	requests  []recordedRequest
	responses []scriptedResponse
}

type scriptedResponse struct {
	status int
	body   string
}

func newPlatformServer(t *testing.T, responses ...scriptedResponse) *platformServer {
	t.Helper()

	ps := &platformServer{responses: responses}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}

		switch r.Header.Get("Content-Type") {
		case "application/json":
			_ = json.NewDecoder(r.Body).Decode(&rec.JSON)
		default:
			require.NoError(t, r.ParseForm())
			rec.Form = r.Form
		}
		ps.requests = append(ps.requests, rec)

		resp := scriptedResponse{status: http.StatusOK, body: "{}"}
		if len(ps.responses) > 0 {
			resp, ps.responses = ps.responses[0], ps.responses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func ok(body string) scriptedResponse {
	return scriptedResponse{status: http.StatusOK, body: body}
}

func TestTwitter(t *testing.T) {
	t.Run("publish", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"data":{"id":"1790000000000000001"}}`))
		tw := NewTwitter(srv.Client(), logger.NewNoOpLogger())
		tw.APIBase = srv.URL

		result, err := tw.Publish(t.Context(), Request{Content: "hello twitter", AccessToken: "tok"})

		require.NoError(t, err)
		assert.Equal(t, "1790000000000000001", result.PostID)
		assert.Contains(t, result.URL, "1790000000000000001")

		require.Len(t, srv.requests, 1)
		req := srv.requests[0]
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/2/tweets", req.Path)
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		assert.Equal(t, "hello twitter", req.JSON["text"])
	})

	t.Run("media url appended to text", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"data":{"id":"1"}}`))
		tw := NewTwitter(srv.Client(), logger.NewNoOpLogger())
		tw.APIBase = srv.URL

		_, err := tw.Publish(t.Context(), Request{
			Content:   "look",
			MediaURLs: []string{"https://img.example.com/a.png"},
		})

		require.NoError(t, err)
		assert.Equal(t, "look\nhttps://img.example.com/a.png", srv.requests[0].JSON["text"])
	})

	t.Run("platform rejection keeps status and body", func(t *testing.T) {
		srv := newPlatformServer(t, scriptedResponse{status: http.StatusForbidden, body: `{"detail":"duplicate content"}`})
		tw := NewTwitter(srv.Client(), logger.NewNoOpLogger())
		tw.APIBase = srv.URL

		_, err := tw.Publish(t.Context(), Request{Content: "hello"})

		var pubErr *Error
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, CodePlatform, pubErr.Code)
		assert.Equal(t, http.StatusForbidden, pubErr.StatusCode)
		assert.Contains(t, pubErr.Message, "duplicate content")
		assert.True(t, pubErr.Retryable())
	})

	t.Run("identity", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"data":{"id":"42","username":"gopher"}}`))
		tw := NewTwitter(srv.Client(), logger.NewNoOpLogger())
		tw.APIBase = srv.URL

		account, err := tw.Identity(t.Context(), "tok")

		require.NoError(t, err)
		assert.Equal(t, Account{ID: "42", Name: "gopher"}, account)
		assert.Equal(t, "/2/users/me", srv.requests[0].Path)
	})
}

func TestLinkedIn(t *testing.T) {
	t.Run("publish text share", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"id":"urn:li:share:123"}`))
		li := NewLinkedIn(srv.Client(), logger.NewNoOpLogger())
		li.APIBase = srv.URL

		result, err := li.Publish(t.Context(), Request{
			Content:     "hello linkedin",
			AccessToken: "tok",
			AccountID:   "member-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "urn:li:share:123", result.PostID)

		req := srv.requests[0]
		assert.Equal(t, "/v2/ugcPosts", req.Path)
		assert.Equal(t, "2.0.0", req.Header.Get("X-Restli-Protocol-Version"))
		assert.Equal(t, "urn:li:person:member-1", req.JSON["author"])
	})

	t.Run("media url becomes article share", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"id":"urn:li:share:124"}`))
		li := NewLinkedIn(srv.Client(), logger.NewNoOpLogger())
		li.APIBase = srv.URL

		_, err := li.Publish(t.Context(), Request{
			Content:   "read this",
			MediaURLs: []string{"https://example.com/article"},
			AccountID: "member-1",
		})

		require.NoError(t, err)

		specific := srv.requests[0].JSON["specificContent"].(map[string]any)
		share := specific["com.linkedin.ugc.ShareContent"].(map[string]any)
		assert.Equal(t, "ARTICLE", share["shareMediaCategory"])
	})
}

func TestFacebook(t *testing.T) {
	t.Run("text goes to the feed edge", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"id":"page_post_1"}`))
		fb := NewFacebook(srv.Client(), logger.NewNoOpLogger())
		fb.APIBase = srv.URL

		result, err := fb.Publish(t.Context(), Request{
			Content:     "hello page",
			AccessToken: "tok",
			AccountID:   "page-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "page_post_1", result.PostID)

		req := srv.requests[0]
		assert.Equal(t, "/page-1/feed", req.Path)
		assert.Equal(t, "hello page", req.Form["message"][0])
		assert.Equal(t, "tok", req.Form["access_token"][0])
	})

	t.Run("media goes to the photos edge", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"id":"photo_1","post_id":"page_post_2"}`))
		fb := NewFacebook(srv.Client(), logger.NewNoOpLogger())
		fb.APIBase = srv.URL

		result, err := fb.Publish(t.Context(), Request{
			Content:   "nice photo",
			MediaURLs: []string{"https://img.example.com/a.png"},
			AccountID: "page-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "page_post_2", result.PostID, "photos edge result must prefer post_id")

		req := srv.requests[0]
		assert.Equal(t, "/page-1/photos", req.Path)
		assert.Equal(t, "https://img.example.com/a.png", req.Form["url"][0])
		assert.Equal(t, "nice photo", req.Form["caption"][0])
	})
}

func TestInstagram(t *testing.T) {
	t.Run("container flow", func(t *testing.T) {
		srv := newPlatformServer(t,
			ok(`{"id":"container_1"}`),
			ok(`{"id":"media_1"}`),
		)
		ig := NewInstagram(srv.Client(), logger.NewNoOpLogger())
		ig.APIBase = srv.URL

		result, err := ig.Publish(t.Context(), Request{
			Content:     "caption",
			MediaURLs:   []string{"https://img.example.com/a.png"},
			AccessToken: "tok",
			AccountID:   "ig-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "media_1", result.PostID)

		require.Len(t, srv.requests, 2)
		assert.Equal(t, "/ig-1/media", srv.requests[0].Path)
		assert.Equal(t, "https://img.example.com/a.png", srv.requests[0].Form["image_url"][0])
		assert.Equal(t, "/ig-1/media_publish", srv.requests[1].Path)
		assert.Equal(t, "container_1", srv.requests[1].Form["creation_id"][0])
	})

	t.Run("no media fails fast and is not retryable", func(t *testing.T) {
		srv := newPlatformServer(t)
		ig := NewInstagram(srv.Client(), logger.NewNoOpLogger())
		ig.APIBase = srv.URL

		_, err := ig.Publish(t.Context(), Request{Content: "caption only"})

		var pubErr *Error
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, CodeMediaRequired, pubErr.Code)
		assert.False(t, pubErr.Retryable())
		assert.ErrorIs(t, err, apperrors.ErrMediaRequired)
		assert.Empty(t, srv.requests, "no request may leave the process without media")
	})
}

func TestReddit(t *testing.T) {
	t.Run("self post", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"json":{"errors":[],"data":{"id":"t3_abc","url":"https://reddit.com/r/golang/comments/abc"}}}`))
		rd := NewReddit(srv.Client(), logger.NewNoOpLogger())
		rd.APIBase = srv.URL

		result, err := rd.Publish(t.Context(), Request{
			Content:     "Title line\nbody text",
			AccessToken: "tok",
			Options:     map[string]string{OptionSubreddit: "golang"},
		})

		require.NoError(t, err)
		assert.Equal(t, "t3_abc", result.PostID)

		req := srv.requests[0]
		assert.Equal(t, "/api/submit", req.Path)
		assert.Equal(t, "postqueue/1.0", req.Header.Get("User-Agent"))
		assert.Equal(t, "golang", req.Form["sr"][0])
		assert.Equal(t, "Title line", req.Form["title"][0], "first content line is the title")
		assert.Equal(t, "body text", req.Form["text"][0])
		assert.Equal(t, "self", req.Form["kind"][0])
	})

	t.Run("media url submits a link post", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"json":{"errors":[],"data":{"id":"t3_def","url":"https://reddit.com/r/pics/comments/def"}}}`))
		rd := NewReddit(srv.Client(), logger.NewNoOpLogger())
		rd.APIBase = srv.URL

		_, err := rd.Publish(t.Context(), Request{
			Content:   "Look at this",
			MediaURLs: []string{"https://img.example.com/a.png"},
			Options:   map[string]string{OptionSubreddit: "pics"},
		})

		require.NoError(t, err)
		req := srv.requests[0]
		assert.Equal(t, "link", req.Form["kind"][0])
		assert.Equal(t, "https://img.example.com/a.png", req.Form["url"][0])
	})

	t.Run("missing subreddit is not retryable", func(t *testing.T) {
		srv := newPlatformServer(t)
		rd := NewReddit(srv.Client(), logger.NewNoOpLogger())
		rd.APIBase = srv.URL

		_, err := rd.Publish(t.Context(), Request{Content: "no target"})

		var pubErr *Error
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, CodeOptionMissing, pubErr.Code)
		assert.False(t, pubErr.Retryable())
		assert.Empty(t, srv.requests)
	})

	t.Run("application error inside 200 body", func(t *testing.T) {
		srv := newPlatformServer(t, ok(`{"json":{"errors":[["SUBREDDIT_NOTALLOWED","not allowed to post there","sr"]]}}`))
		rd := NewReddit(srv.Client(), logger.NewNoOpLogger())
		rd.APIBase = srv.URL

		_, err := rd.Publish(t.Context(), Request{
			Content: "Title",
			Options: map[string]string{OptionSubreddit: "private"},
		})

		var pubErr *Error
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, CodePlatform, pubErr.Code)
		assert.Contains(t, pubErr.Message, "SUBREDDIT_NOTALLOWED")
	})
}

func TestRegistry(t *testing.T) {
	t.Run("adapter per platform", func(t *testing.T) {
		r := NewRegistry(nil, logger.NewNoOpLogger())

		for _, platform := range models.Platforms {
			p, err := r.For(platform)

			require.NoError(t, err)
			assert.Equal(t, platform, p.Platform())
		}
	})

	t.Run("unknown platform", func(t *testing.T) {
		r := NewRegistry(nil, logger.NewNoOpLogger())

		_, err := r.For(models.Platform("myspace"))

		assert.ErrorIs(t, err, apperrors.ErrUnsupportedPlatform)
	})
}
