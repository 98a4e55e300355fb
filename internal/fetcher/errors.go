package fetcher

import (
	"errors"
	"fmt"

	"github.com/bluesky-social/indigo/atproto/atclient"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("service unavailable")
)

// statusSentinel maps an HTTP status onto a sentinel error, or nil when the
// status has no dedicated sentinel.
func statusSentinel(code int) error {
	switch {
	case code == 400:
		return ErrBadRequest
	case code == 429:
		return ErrRateLimited
	case code >= 500:
		return ErrUnavailable
	}
	return nil
}

// wrapAPIError maps XRPC status codes onto sentinel errors.
func wrapAPIError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var apiErr *atclient.APIError
	if errors.As(err, &apiErr) {
		if sentinel := statusSentinel(apiErr.StatusCode); sentinel != nil {
			return fmt.Errorf("%s: %w: %s", operation, sentinel, apiErr.Message)
		}
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}

// statusError describes a non-2xx HTTP response, wrapping the matching
// sentinel when there is one.
func statusError(operation string, code int, body string) error {
	if sentinel := statusSentinel(code); sentinel != nil {
		return fmt.Errorf("%s: status %d: %w: %s", operation, code, sentinel, body)
	}
	return fmt.Errorf("%s: status %d: %s", operation, code, body)
}
