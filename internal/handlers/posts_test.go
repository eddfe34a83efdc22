package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrenko/postqueue/internal/apperrors"
	"github.com/mpetrenko/postqueue/internal/models"
	"github.com/mpetrenko/postqueue/internal/service/post"
)

type fakePostService struct {
	scheduleErr error
	cancelErr   error
	posts       []models.ScheduledPost

	scheduled []post.ScheduleOpts
}

func (f *fakePostService) Schedule(_ context.Context, opts post.ScheduleOpts) (models.ScheduledPost, error) {
	if f.scheduleErr != nil {
		return models.ScheduledPost{}, f.scheduleErr
	}
	f.scheduled = append(f.scheduled, opts)

	platforms := make([]models.Platform, 0, len(opts.Platforms))
	for _, p := range opts.Platforms {
		platforms = append(platforms, models.Platform(p))
	}
	return models.ScheduledPost{
		ID:          uuid.New(),
		UserID:      opts.UserID,
		Content:     opts.Content,
		Platforms:   platforms,
		ScheduledAt: opts.ScheduledAt,
		Status:      models.PostStatusScheduled,
	}, nil
}

func (f *fakePostService) List(context.Context, uuid.UUID) ([]models.ScheduledPost, error) {
	return f.posts, nil
}

func (f *fakePostService) Cancel(context.Context, uuid.UUID, uuid.UUID) (models.ScheduledPost, error) {
	if f.cancelErr != nil {
		return models.ScheduledPost{}, f.cancelErr
	}
	return models.ScheduledPost{Status: models.PostStatusCancelled}, nil
}

func Test_PostHandler(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			posts := &fakePostService{}
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, posts)

			body := `{
				"user_id": "` + uuid.NewString() + `",
				"content": "hello world",
				"platforms": ["twitter", "reddit"],
				"options": {"subreddit": "golang"},
				"scheduled_at": "2026-09-01T12:00:00Z"
			}`
			resp, err := client.Post(url+"/api/posts", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			respBody, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", string(respBody))
			assert.Contains(t, string(respBody), `"status":"scheduled"`)

			require.Len(t, posts.scheduled, 1)
			assert.Equal(t, []string{"twitter", "reddit"}, posts.scheduled[0].Platforms)
			assert.Equal(t, map[string]string{"subreddit": "golang"}, posts.scheduled[0].Options)
		})

		t.Run("unsupported platform", func(t *testing.T) {
			posts := &fakePostService{scheduleErr: apperrors.ErrUnsupportedPlatform}
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, posts)

			body := `{
				"user_id": "` + uuid.NewString() + `",
				"content": "hello",
				"platforms": ["myspace"],
				"scheduled_at": "2026-09-01T12:00:00Z"
			}`
			resp, err := client.Post(url+"/api/posts", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})

		t.Run("missing required fields", func(t *testing.T) {
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, &fakePostService{})

			resp, err := client.Post(url+"/api/posts", "application/json", strings.NewReader(`{"content": "hi"}`))
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(body), "validation_failed")
			assert.Contains(t, string(body), "user_id", "validation errors must use json field names")
		})

		t.Run("broken json", func(t *testing.T) {
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, &fakePostService{})

			resp, err := client.Post(url+"/api/posts", "application/json", strings.NewReader(`{`))
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(body), "decoding_failed")
		})
	})

	t.Run("list", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			posts := &fakePostService{posts: []models.ScheduledPost{
				{
					ID:          uuid.New(),
					Content:     "first",
					Platforms:   []models.Platform{models.PlatformTwitter},
					ScheduledAt: time.Now().Add(time.Hour),
					Status:      models.PostStatusScheduled,
				},
				{
					ID:              uuid.New(),
					Content:         "second",
					Platforms:       []models.Platform{models.PlatformReddit},
					Status:          models.PostStatusPublished,
					ExternalPostIDs: map[string]string{"reddit": "t3_abc"},
				},
			}}
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, posts)

			resp, err := client.Get(url + "/api/posts?user_id=" + uuid.NewString())
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), `"content":"first"`)
			assert.Contains(t, string(body), `"external_post_ids":{"reddit":"t3_abc"}`)
		})

		t.Run("invalid user id", func(t *testing.T) {
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, &fakePostService{})

			resp, err := client.Get(url + "/api/posts?user_id=not-a-uuid")
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	})

	t.Run("cancel", func(t *testing.T) {
		deletePost := func(t *testing.T, url string, client *http.Client, id string) *http.Response {
			t.Helper()

			req, err := http.NewRequest(http.MethodDelete, url+"/api/posts/"+id+"?user_id="+uuid.NewString(), nil)
			require.NoError(t, err)
			resp, err := client.Do(req)
			require.NoError(t, err)
			return resp
		}

		t.Run("ok", func(t *testing.T) {
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, &fakePostService{})

			resp := deletePost(t, url, client, uuid.NewString())
			defer resp.Body.Close() // nolint:errcheck

			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		})

		t.Run("not found", func(t *testing.T) {
			posts := &fakePostService{cancelErr: apperrors.ErrPostNotFound}
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, posts)

			resp := deletePost(t, url, client, uuid.NewString())
			defer resp.Body.Close() // nolint:errcheck

			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("already processing", func(t *testing.T) {
			posts := &fakePostService{cancelErr: apperrors.ErrPostNotCancellable}
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, posts)

			resp := deletePost(t, url, client, uuid.NewString())
			defer resp.Body.Close() // nolint:errcheck

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
			assert.Contains(t, string(body), "cannot cancel")
		})

		t.Run("invalid post id", func(t *testing.T) {
			url, client := startServer(t, &fakeAuthFlow{}, &fakeCredentials{}, &fakePostService{})

			resp := deletePost(t, url, client, "not-a-uuid")
			defer resp.Body.Close() // nolint:errcheck

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	})
}
