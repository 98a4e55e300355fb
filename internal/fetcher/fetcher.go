// Package fetcher provides feed.Fetcher implementations that page through
// tweets for one hashtag from a confeed service, Bluesky, or an RSS feed.
package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/model"
)

// ErrUnknownSource is returned by New for an unrecognised Config.Source.
var ErrUnknownSource = errors.New("fetcher: unknown source")

// Source names accepted by New.
const (
	SourceAPI     = "api"
	SourceBluesky = "bluesky"
	SourceRSS     = "rss"
)

// DefaultBlueskyHost serves unauthenticated app.bsky queries.
const DefaultBlueskyHost = "https://public.api.bsky.app"

// Config selects and configures a tweet source.
type Config struct {
	Source      string
	APIURL      string
	BlueskyHost string
	RSSURL      string
	Hashtag     string
	PageSize    int
	HTTPClient  *http.Client // nil = http.DefaultClient
}

// New builds the fetcher named by cfg.Source.
func New(cfg Config) (feed.Fetcher[model.Tweet], error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = model.DefaultPageSize
	}
	if cfg.Hashtag == "" {
		cfg.Hashtag = model.DefaultHashtag
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case SourceAPI, "":
		if cfg.APIURL == "" {
			return nil, errors.New("fetcher: api source requires an api url")
		}
		return &APIFetcher{
			BaseURL:  cfg.APIURL,
			Query:    cfg.Hashtag,
			PageSize: cfg.PageSize,
			Client:   cfg.HTTPClient,
		}, nil
	case SourceBluesky:
		host := cfg.BlueskyHost
		if host == "" {
			host = DefaultBlueskyHost
		}
		return NewBlueskyFetcher(host, cfg.Hashtag, cfg.PageSize), nil
	case SourceRSS:
		if cfg.RSSURL == "" {
			return nil, errors.New("fetcher: rss source requires a feed url")
		}
		return NewRSSFetcher(cfg.RSSURL, cfg.HTTPClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}
