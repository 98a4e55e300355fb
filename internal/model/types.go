package model

import "time"

// Tweet is a single post in a hashtag feed.
// It is the canonical type for storage, the HTTP API, and display.
type Tweet struct {
	ID              string    `json:"id" yaml:"id"`
	FromUser        string    `json:"from_user" yaml:"from_user"`           // handle without the leading @
	FromUserName    string    `json:"from_user_name" yaml:"from_user_name"` // display name
	Text            string    `json:"text" yaml:"text"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" yaml:"profile_image_url,omitempty"`
	Source          string    `json:"source,omitempty" yaml:"source,omitempty"` // "tcp", "stdin", "http", "seed", "bluesky", "rss"
	Hashtags        []string  `json:"hashtags,omitempty" yaml:"hashtags,omitempty"`
}

// SearchQuery selects one page of tweets whose text contains Query.
type SearchQuery struct {
	Query  string
	Cursor string // empty = first page
	Limit  int
}

// SearchPage is one page of search results, newest first.
// NextCursor is empty when there are no older tweets.
type SearchPage struct {
	Tweets     []Tweet
	NextCursor string
}

// HashtagCount represents a hashtag and how many stored tweets carry it.
type HashtagCount struct {
	Tag   string
	Count int64
}

// HourCount represents the number of tweets created in one hour.
type HourCount struct {
	Hour  time.Time
	Count int64
}

// SearchResponse is the JSON body of GET /api/search.
type SearchResponse struct {
	Results    []Tweet `json:"results"`
	NextCursor string  `json:"next_cursor,omitempty"`
	Count      int     `json:"count"`
}
