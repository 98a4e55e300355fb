package duckdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/confeed/internal/model"
)

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// clampLimit maps a requested page size onto [1, model.MaxPageSize].
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return model.DefaultPageSize
	case limit > model.MaxPageSize:
		return model.MaxPageSize
	default:
		return limit
	}
}

// SearchTweets returns one page of tweets whose text contains q.Query,
// newest first. An empty query matches every tweet.
func (s *Store) SearchTweets(q SearchQuery) (SearchPage, error) {
	limit := clampLimit(q.Limit)

	var conds []string
	var args []any
	if needle := strings.TrimSpace(q.Query); needle != "" {
		conds = append(conds, "contains(lower(text), lower(?))")
		args = append(args, needle)
	}
	if q.Cursor != "" {
		k, err := decodeCursor(q.Cursor)
		if err != nil {
			return SearchPage{}, err
		}
		conds = append(conds, "(epoch_us(created_at) < ? OR (epoch_us(created_at) = ? AND seq < ?))")
		args = append(args, k.createdUS, k.createdUS, k.seq)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT id, seq, from_user, from_user_name, text, created_at, profile_image_url, source, epoch_us(created_at)
		FROM tweets
		%s
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, where)
	// One extra row tells us whether an older page exists.
	args = append(args, limit+1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search tweets: %w", err)
	}
	defer rows.Close()

	page, err := scanSearchPage(rows, limit)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search tweets: %w", err)
	}
	return page, nil
}

// rowScanner is the subset of *sql.Rows read by scanSearchPage.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanSearchPage reads up to limit+1 rows. A row that fails to scan fails the
// page, since dropping the look-ahead row would hide the next cursor.
func scanSearchPage(rows rowScanner, limit int) (SearchPage, error) {
	var (
		tweets []Tweet
		keys   []pageKey
	)
	for rows.Next() {
		var (
			t Tweet
			k pageKey
		)
		if err := rows.Scan(&t.ID, &k.seq, &t.FromUser, &t.FromUserName, &t.Text, &t.CreatedAt, &t.ProfileImageURL, &t.Source, &k.createdUS); err != nil {
			return SearchPage{}, fmt.Errorf("scan row %d: %w", len(tweets), err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.Hashtags = model.Hashtags(t.Text)
		tweets = append(tweets, t)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return SearchPage{}, err
	}

	page := SearchPage{Tweets: tweets}
	if len(tweets) > limit {
		page.Tweets = tweets[:limit]
		page.NextCursor = encodeCursor(keys[limit-1])
	}
	return page, nil
}

// TotalTweetCount returns the number of stored tweets.
func (s *Store) TotalTweetCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tweets`).Scan(&count)
	return count, err
}

// TweetsPerHour returns tweet counts per hour for the last hours hours,
// oldest first. Hours without tweets are omitted.
func (s *Store) TweetsPerHour(hours int) ([]HourCount, error) {
	if hours <= 0 {
		hours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('hour', created_at) AS hour, COUNT(*) AS n
		FROM tweets
		WHERE created_at >= ?
		GROUP BY hour ORDER BY hour`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("tweets per hour: scan: %w", err)
		}
		hc.Hour = hc.Hour.UTC()
		results = append(results, hc)
	}
	return results, rows.Err()
}

// TopHashtags returns hashtags by descending tweet count.
func (s *Store) TopHashtags(limit int) ([]HashtagCount, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS n
		FROM tweet_hashtags
		GROUP BY tag
		ORDER BY n DESC, tag
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HashtagCount
	for rows.Next() {
		var hc HashtagCount
		if err := rows.Scan(&hc.Tag, &hc.Count); err != nil {
			return nil, fmt.Errorf("top hashtags: scan: %w", err)
		}
		results = append(results, hc)
	}
	return results, rows.Err()
}

// DeleteBefore removes tweets created before cutoff and returns how many
// tweets were deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	cutoff = cutoff.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tweet_hashtags WHERE created_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("delete hashtags: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tweets WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete tweets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
