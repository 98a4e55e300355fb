package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesky-social/indigo/atproto/atclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/confeed/internal/feed"
)

const searchPostsBody = `{
  "cursor": "25",
  "posts": [
    {
      "uri": "at://did:plc:abc/app.bsky.feed.post/3kq",
      "cid": "bafy1",
      "author": {"did": "did:plc:abc", "handle": "ada.bsky.social", "displayName": "Ada", "avatar": "https://cdn.example/ada.jpg"},
      "record": {"text": "Keynote starting #AgileDay", "createdAt": "2026-03-12T09:30:00.000Z"},
      "indexedAt": "2026-03-12T09:30:01.000Z"
    },
    {
      "uri": "at://did:plc:def/app.bsky.feed.post/3kr",
      "cid": "bafy2",
      "author": {"did": "did:plc:def", "handle": "bob.bsky.social"},
      "record": {"text": "no createdAt here"},
      "indexedAt": "2026-03-12T09:31:00Z"
    }
  ]
}`

func TestBlueskyFetcherSearchPosts(t *testing.T) {
	var gotQ, gotSort, gotCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/app.bsky.feed.searchPosts", r.URL.Path)
		gotQ = r.URL.Query().Get("q")
		gotSort = r.URL.Query().Get("sort")
		gotCursor = r.URL.Query().Get("cursor")
		w.Header().Set("Content-Type", "application/json")
		if gotCursor == "25" {
			_, _ = w.Write([]byte(`{"posts": []}`))
			return
		}
		_, _ = w.Write([]byte(searchPostsBody))
	}))
	defer srv.Close()

	f := NewBlueskyFetcher(srv.URL, "#agileday", 25)

	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.NoError(t, err)
	assert.Equal(t, "#agileday", gotQ)
	assert.Equal(t, "latest", gotSort)
	assert.Empty(t, gotCursor)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "ada.bsky.social", first.FromUser)
	assert.Equal(t, "Ada", first.FromUserName)
	assert.Equal(t, "https://cdn.example/ada.jpg", first.ProfileImageURL)
	assert.Equal(t, []string{"agileday"}, first.Hashtags)
	assert.Equal(t, 2026, first.CreatedAt.Year())
	assert.Equal(t, 30, first.CreatedAt.Minute())

	// Falls back to indexedAt.
	assert.Equal(t, 31, page.Items[1].CreatedAt.Minute())
	assert.Equal(t, "25", page.Next.Token())

	page, err = f.Fetch(context.Background(), page.Next)
	require.NoError(t, err)
	assert.Equal(t, "25", gotCursor)
	assert.Empty(t, page.Items)
	assert.True(t, page.Next.IsEnd())
}

func TestBlueskyFetcherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"UpstreamFailure","message":"appview down"}`))
	}))
	defer srv.Close()

	f := NewBlueskyFetcher(srv.URL, "#agileday", 25)
	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.Error(t, err)
	assert.Empty(t, page.Items)
}

func TestWrapAPIError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&atclient.APIError{StatusCode: 400, Message: "bad q"}, ErrBadRequest},
		{&atclient.APIError{StatusCode: 429, Message: "slow down"}, ErrRateLimited},
		{&atclient.APIError{StatusCode: 503, Message: "down"}, ErrUnavailable},
	}
	for _, tt := range tests {
		got := wrapAPIError(tt.err, "searchPosts")
		if !errors.Is(got, tt.want) {
			t.Fatalf("wrapAPIError(%v) = %v, want wrapping %v", tt.err, got, tt.want)
		}
	}

	plain := errors.New("dial tcp: refused")
	assert.ErrorIs(t, wrapAPIError(plain, "searchPosts"), plain)
	assert.NoError(t, wrapAPIError(nil, "searchPosts"))
}
