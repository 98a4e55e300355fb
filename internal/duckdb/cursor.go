package duckdb

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned by SearchTweets for a cursor it did not issue.
var ErrInvalidCursor = errors.New("duckdb: invalid cursor")

// pageKey is the keyset position of the last tweet on a page.
type pageKey struct {
	createdUS int64 // created_at as unix microseconds
	seq       int64
}

func encodeCursor(k pageKey) string {
	raw := strconv.FormatInt(k.createdUS, 10) + ":" + strconv.FormatInt(k.seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (pageKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, seq, ok := strings.Cut(string(raw), ":")
	if !ok {
		return pageKey{}, ErrInvalidCursor
	}
	var k pageKey
	if k.createdUS, err = strconv.ParseInt(ts, 10, 64); err != nil {
		return pageKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if k.seq, err = strconv.ParseInt(seq, 10, 64); err != nil || k.seq < 0 {
		return pageKey{}, ErrInvalidCursor
	}
	return k, nil
}
