package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/confeed/internal/ingest"
	"github.com/tinytelemetry/confeed/internal/model"
)

// maxPostBody bounds a POST /api/tweets body in bytes.
const maxPostBody = 1 << 20

// handlePostTweets accepts a JSON tweet object or an array of them. Every
// tweet is validated before any is stored.
func (s *Server) handlePostTweets(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPostBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxPostBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	tweets, err := decodeTweets(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(tweets) > maxPostedTweets {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many tweets in one request"})
		return
	}

	now := time.Now()
	for i, t := range tweets {
		if err := ingest.Normalize(t, "http", now); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
	}
	for _, t := range tweets {
		s.sink.Add(t)
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(tweets)})
}

func decodeTweets(body []byte) ([]*model.Tweet, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		var tweets []*model.Tweet
		if err := json.Unmarshal(trimmed, &tweets); err != nil {
			return nil, errors.New("invalid JSON array of tweets")
		}
		return tweets, nil
	}

	var t model.Tweet
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return nil, errors.New("invalid JSON tweet")
	}
	return []*model.Tweet{&t}, nil
}
