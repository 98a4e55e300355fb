package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/confeed/internal/feed"
)

const tagFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>#agileday</title>
    <link>https://mastodon.example/tags/agileday</link>
    <item>
      <guid>https://mastodon.example/@ada/111</guid>
      <link>https://mastodon.example/@ada/111</link>
      <pubDate>Thu, 12 Mar 2026 09:30:00 +0000</pubDate>
      <description>&lt;p&gt;Keynote &amp;amp; coffee&lt;/p&gt;&lt;p&gt;&lt;a href="https://mastodon.example/tags/agileday"&gt;#&lt;span&gt;AgileDay&lt;/span&gt;&lt;/a&gt;&lt;/p&gt;</description>
    </item>
    <item>
      <link>https://blog.example/post</link>
      <title>Only a title</title>
    </item>
    <item>
      <title>No id at all</title>
    </item>
  </channel>
</rss>`

func TestRSSFetcherSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(tagFeed))
	}))
	defer srv.Close()

	f := NewRSSFetcher(srv.URL, srv.Client())
	page, err := f.Fetch(context.Background(), feed.StartCursor)
	require.NoError(t, err)
	assert.True(t, page.Next.IsEnd())
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "https://mastodon.example/@ada/111", first.ID)
	assert.Equal(t, "ada@mastodon.example", first.FromUser)
	assert.Equal(t, "Keynote & coffee #AgileDay", first.Text)
	assert.Equal(t, []string{"agileday"}, first.Hashtags)
	assert.Equal(t, 9, first.CreatedAt.Hour())
	assert.Equal(t, SourceRSS, first.Source)

	second := page.Items[1]
	assert.Equal(t, "https://blog.example/post", second.ID)
	assert.Equal(t, "Only a title", second.Text)
	assert.Equal(t, "unknown", second.FromUser)
}

func TestRSSFetcherParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer srv.Close()

	f := NewRSSFetcher(srv.URL, nil)
	_, err := f.Fetch(context.Background(), feed.StartCursor)
	require.Error(t, err)
}
