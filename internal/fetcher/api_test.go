package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/model"
)

func TestAPIFetcherPagesThroughSearch(t *testing.T) {
	created := time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC)
	var gotQuery, gotLimit, gotCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		gotCursor = r.URL.Query().Get("cursor")

		resp := model.SearchResponse{
			Results: []model.Tweet{{ID: "1", FromUser: "ada", Text: "hi #agileday", CreatedAt: created}},
			Count:   1,
		}
		if gotCursor == "" {
			resp.NextCursor = "c2"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	f := &APIFetcher{BaseURL: srv.URL + "/", Query: "#agileday", PageSize: 20}

	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.NoError(t, err)
	assert.Equal(t, "#agileday", gotQuery)
	assert.Equal(t, "20", gotLimit)
	assert.Empty(t, gotCursor)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ada", page.Items[0].FromUser)
	assert.True(t, page.Items[0].CreatedAt.Equal(created))
	assert.Equal(t, "c2", page.Next.Token())

	page, err = f.Fetch(context.Background(), page.Next)
	require.NoError(t, err)
	assert.Equal(t, "c2", gotCursor)
	assert.True(t, page.Next.IsEnd())
}

func TestAPIFetcherNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := &APIFetcher{BaseURL: srv.URL, Query: "x"}
	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Empty(t, page.Items)
}

func TestAPIFetcherMapsStatusToSentinel(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusInternalServerError, ErrUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		f := &APIFetcher{BaseURL: srv.URL, Query: "x"}
		_, err := f.Fetch(context.Background(), feed.StartCursor)
		srv.Close()

		require.Error(t, err, "status %d", tt.status)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestAPIFetcherUnmappedStatusHasNoSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := &APIFetcher{BaseURL: srv.URL, Query: "x"}
	_, err := f.Fetch(context.Background(), feed.StartCursor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestAPIFetcherDecodeErrorDeliversNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":"1"},`))
	}))
	defer srv.Close()

	f := &APIFetcher{BaseURL: srv.URL, Query: "x"}
	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.Error(t, err)
	assert.Empty(t, page.Items)
}

func TestAPIFetcherHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := &APIFetcher{BaseURL: srv.URL, Query: "x"}
	_, err := f.Fetch(ctx, feed.StartCursor)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSelectsSource(t *testing.T) {
	f, err := New(Config{Source: "api", APIURL: "http://localhost:8080"})
	require.NoError(t, err)
	api, ok := f.(*APIFetcher)
	require.True(t, ok)
	assert.Equal(t, model.DefaultHashtag, api.Query)
	assert.Equal(t, model.DefaultPageSize, api.PageSize)

	f, err = New(Config{Source: "Bluesky", Hashtag: "#gophercon"})
	require.NoError(t, err)
	assert.IsType(t, &BlueskyFetcher{}, f)

	f, err = New(Config{Source: "rss", RSSURL: "https://mastodon.social/tags/agileday.rss"})
	require.NoError(t, err)
	assert.IsType(t, &RSSFetcher{}, f)

	_, err = New(Config{Source: "rss"})
	require.Error(t, err)

	_, err = New(Config{Source: "myspace"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}
