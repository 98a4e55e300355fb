package duckdb

import "github.com/tinytelemetry/confeed/internal/model"

// Type aliases re-export model types used in Store method signatures.
type (
	Tweet        = model.Tweet
	SearchQuery  = model.SearchQuery
	SearchPage   = model.SearchPage
	HashtagCount = model.HashtagCount
	HourCount    = model.HourCount
)

var _ model.TweetStore = (*Store)(nil)
