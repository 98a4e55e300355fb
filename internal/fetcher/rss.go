package fetcher

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/model"
)

var (
	blockBreak = regexp.MustCompile(`(?i)</p>|<br\s*/?>`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// RSSFetcher reads a hashtag RSS or Atom feed, such as Mastodon's
// /tags/<tag>.rss. The whole feed is one page.
type RSSFetcher struct {
	url    string
	parser *gofeed.Parser
	policy *bluemonday.Policy
}

// NewRSSFetcher returns a fetcher for feedURL. A nil client uses the gofeed default.
func NewRSSFetcher(feedURL string, client *http.Client) *RSSFetcher {
	fp := gofeed.NewParser()
	if client != nil {
		fp.Client = client
	}
	return &RSSFetcher{
		url:    feedURL,
		parser: fp,
		policy: bluemonday.StrictPolicy(),
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context, _ feed.Cursor) (feed.Page[model.Tweet], error) {
	parsed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return feed.Page[model.Tweet]{}, fmt.Errorf("parse feed %s: %w", f.url, err)
	}

	now := time.Now().UTC()
	tweets := make([]model.Tweet, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		body := item.Content
		if body == "" {
			body = item.Description
		}
		text := f.plainText(body)
		if text == "" {
			text = strings.TrimSpace(item.Title)
		}

		created := now
		switch {
		case item.PublishedParsed != nil:
			created = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			created = item.UpdatedParsed.UTC()
		}

		handle, name := rssAuthor(item)
		tw := model.Tweet{
			ID:           id,
			FromUser:     handle,
			FromUserName: name,
			Text:         text,
			CreatedAt:    created,
			Source:       SourceRSS,
			Hashtags:     model.Hashtags(text),
		}
		if item.Image != nil {
			tw.ProfileImageURL = item.Image.URL
		}
		tweets = append(tweets, tw)
	}

	return feed.Page[model.Tweet]{Items: tweets, Next: feed.EndCursor}, nil
}

func (f *RSSFetcher) plainText(s string) string {
	if s == "" {
		return ""
	}
	s = blockBreak.ReplaceAllString(s, " ")
	s = html.UnescapeString(f.policy.Sanitize(s))
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// rssAuthor derives a handle from the item author or, for Mastodon-style
// links like https://host/@user/123, from the link path.
func rssAuthor(item *gofeed.Item) (handle, name string) {
	if item.Author != nil {
		name = item.Author.Name
	}
	if u, err := url.Parse(item.Link); err == nil {
		for _, seg := range strings.Split(u.Path, "/") {
			if strings.HasPrefix(seg, "@") && len(seg) > 1 {
				handle = seg[1:]
				if u.Host != "" {
					handle += "@" + u.Host
				}
				break
			}
		}
	}
	if handle == "" {
		handle = name
	}
	if handle == "" {
		handle = "unknown"
	}
	return handle, name
}
