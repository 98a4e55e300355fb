package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/atclient"
	"github.com/bluesky-social/indigo/atproto/syntax"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/model"
)

// BlueskyFetcher pages through app.bsky.feed.searchPosts for one query.
type BlueskyFetcher struct {
	apiClient *atclient.APIClient
	query     string
	pageSize  int
}

// NewBlueskyFetcher returns a fetcher for the unauthenticated AppView at host.
func NewBlueskyFetcher(host, query string, pageSize int) *BlueskyFetcher {
	return &BlueskyFetcher{
		apiClient: atclient.NewAPIClient(strings.TrimRight(host, "/")),
		query:     query,
		pageSize:  pageSize,
	}
}

type searchPostsOutput struct {
	Cursor string `json:"cursor"`
	Posts  []struct {
		URI    string `json:"uri"`
		CID    string `json:"cid"`
		Author struct {
			DID         string `json:"did"`
			Handle      string `json:"handle"`
			DisplayName string `json:"displayName"`
			Avatar      string `json:"avatar"`
		} `json:"author"`
		Record struct {
			Text      string `json:"text"`
			CreatedAt string `json:"createdAt"`
		} `json:"record"`
		IndexedAt string `json:"indexedAt"`
	} `json:"posts"`
}

func (f *BlueskyFetcher) Fetch(ctx context.Context, cursor feed.Cursor) (feed.Page[model.Tweet], error) {
	params := map[string]any{
		"q":    f.query,
		"sort": "latest",
	}
	if f.pageSize > 0 {
		params["limit"] = f.pageSize
	}
	if tok := cursor.Token(); tok != "" {
		params["cursor"] = tok
	}

	var out searchPostsOutput
	if err := f.apiClient.Get(ctx, syntax.NSID("app.bsky.feed.searchPosts"), params, &out); err != nil {
		return feed.Page[model.Tweet]{}, wrapAPIError(err, "searchPosts")
	}

	tweets := make([]model.Tweet, 0, len(out.Posts))
	for _, p := range out.Posts {
		created := parseATTime(p.Record.CreatedAt)
		if created.IsZero() {
			created = parseATTime(p.IndexedAt)
		}
		tweets = append(tweets, model.Tweet{
			ID:              p.URI,
			FromUser:        p.Author.Handle,
			FromUserName:    p.Author.DisplayName,
			Text:            p.Record.Text,
			CreatedAt:       created,
			ProfileImageURL: p.Author.Avatar,
			Source:          SourceBluesky,
			Hashtags:        model.Hashtags(p.Record.Text),
		})
	}

	return feed.Page[model.Tweet]{
		Items: tweets,
		Next:  feed.After(out.Cursor),
	}, nil
}

func parseATTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
