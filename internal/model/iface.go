package model

import "time"

// TweetQuerier provides read-only queries on stored tweets.
type TweetQuerier interface {
	SearchTweets(q SearchQuery) (SearchPage, error)
	TotalTweetCount() (int64, error)
	TweetsPerHour(hours int) ([]HourCount, error)
	TopHashtags(limit int) ([]HashtagCount, error)
}

// TweetWriter provides append-oriented write operations for ingested tweets.
type TweetWriter interface {
	InsertTweetBatch(tweets []*Tweet) error
}

// TweetStore is the full storage contract used by the service.
type TweetStore interface {
	TweetQuerier
	TweetWriter
	DeleteBefore(cutoff time.Time) (int64, error)
}
