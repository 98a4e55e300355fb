package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/model"
)

// maxErrorBody caps how much of a non-2xx response is quoted in errors.
const maxErrorBody = 512

// APIFetcher pages through GET {BaseURL}/api/search on a confeed service.
type APIFetcher struct {
	BaseURL  string
	Query    string
	PageSize int
	Client   *http.Client
}

func (f *APIFetcher) Fetch(ctx context.Context, cursor feed.Cursor) (feed.Page[model.Tweet], error) {
	endpoint, err := f.searchURL(cursor)
	if err != nil {
		return feed.Page[model.Tweet]{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return feed.Page[model.Tweet]{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return feed.Page[model.Tweet]{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return feed.Page[model.Tweet]{}, statusError("search", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out model.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return feed.Page[model.Tweet]{}, fmt.Errorf("decode search response: %w", err)
	}

	return feed.Page[model.Tweet]{
		Items: out.Results,
		Next:  feed.After(out.NextCursor),
	}, nil
}

func (f *APIFetcher) searchURL(cursor feed.Cursor) (string, error) {
	base, err := url.Parse(strings.TrimRight(f.BaseURL, "/") + "/api/search")
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	q := base.Query()
	q.Set("q", f.Query)
	if f.PageSize > 0 {
		q.Set("limit", strconv.Itoa(f.PageSize))
	}
	if tok := cursor.Token(); tok != "" {
		q.Set("cursor", tok)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
