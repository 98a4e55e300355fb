// Package httpserver serves the confeed search and ingest API over HTTP.
package httpserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/confeed/internal/duckdb"
	"github.com/tinytelemetry/confeed/internal/ingest"
	"github.com/tinytelemetry/confeed/internal/model"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:3600"

// maxPostedTweets bounds one POST /api/tweets body.
const maxPostedTweets = 500

// Config holds tunable parameters for the HTTP server.
type Config struct {
	SearchRate  float64 // requests per second per client IP; <= 0 disables limiting
	SearchBurst int
}

// Server provides the HTTP API over a tweet store.
type Server struct {
	addr      string
	store     model.TweetQuerier
	sink      ingest.TweetSink
	limiter   *RateLimiter
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. sink receives tweets posted to
// /api/tweets; a nil sink disables that endpoint.
func NewServer(addr string, store model.TweetQuerier, sink ingest.TweetSink, conf ...Config) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	cfg := Config{SearchRate: 10, SearchBurst: 20}
	if len(conf) > 0 {
		cfg = conf[0]
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		sink:      sink,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if cfg.SearchRate > 0 {
		s.limiter = NewRateLimiter(rate.Limit(cfg.SearchRate), cfg.SearchBurst)
	}
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	if s.limiter != nil {
		api.GET("/search", s.limiter.Middleware(), s.handleSearch)
	} else {
		api.GET("/search", s.handleSearch)
	}
	if s.sink != nil {
		api.POST("/tweets", s.handlePostTweets)
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpserver: serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listen address, resolved once Start has run.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.TotalTweetCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"tweet_count": count,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	limit := model.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > model.MaxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(model.MaxPageSize)})
			return
		}
		limit = n
	}

	page, err := s.store.SearchTweets(model.SearchQuery{
		Query:  c.Query("q"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, duckdb.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		log.Printf("httpserver: search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := page.Tweets
	if results == nil {
		results = []model.Tweet{}
	}
	c.JSON(http.StatusOK, model.SearchResponse{
		Results:    results,
		NextCursor: page.NextCursor,
		Count:      len(results),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*14 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 336"})
			return
		}
		hours = n
	}

	total, err := s.store.TotalTweetCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count tweets"})
		return
	}
	tags, err := s.store.TopHashtags(10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read hashtags"})
		return
	}
	perHour, err := s.store.TweetsPerHour(hours)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read hourly counts"})
		return
	}

	topTags := make([]gin.H, 0, len(tags))
	for _, t := range tags {
		topTags = append(topTags, gin.H{"tag": t.Tag, "count": t.Count})
	}
	hourly := make([]gin.H, 0, len(perHour))
	for _, h := range perHour {
		hourly = append(hourly, gin.H{"hour": h.Hour.Format(time.RFC3339), "count": h.Count})
	}

	c.JSON(http.StatusOK, gin.H{
		"total":        total,
		"top_hashtags": topTags,
		"per_hour":     hourly,
	})
}
