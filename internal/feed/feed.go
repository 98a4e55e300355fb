// Package feed implements an incremental, cursor-paginated feed controller.
//
// A Controller owns the loaded items and the resume cursor of one feed screen.
// It admits at most one page fetch at a time, brackets every fetch with
// loading placeholder instructions, and appends fetched pages to a Sink in
// order. Failed fetches leave the feed untouched so the next trigger can retry.
package feed

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is wrapped by FetchError when a fetch exceeds the controller timeout.
	ErrTimeout = errors.New("feed: fetch timed out")

	// ErrClosed is wrapped by FetchError when the controller was closed mid-fetch.
	ErrClosed = errors.New("feed: controller closed")
)

// Cursor is an opaque resume token for paginated fetching.
// The zero value is StartCursor.
type Cursor struct {
	token string
	end   bool
}

var (
	// StartCursor requests the first page.
	StartCursor = Cursor{}

	// EndCursor marks a feed with no further pages.
	EndCursor = Cursor{end: true}
)

// After returns the cursor that resumes after token.
// An empty token means the source has no more pages.
func After(token string) Cursor {
	if token == "" {
		return EndCursor
	}
	return Cursor{token: token}
}

// Token returns the raw resume token. It is empty for StartCursor and EndCursor.
func (c Cursor) Token() string { return c.token }

// IsEnd reports whether c is the terminal marker.
func (c Cursor) IsEnd() bool { return c.end }

// IsStart reports whether c requests the first page.
func (c Cursor) IsStart() bool { return !c.end && c.token == "" }

func (c Cursor) String() string {
	switch {
	case c.end:
		return "<end>"
	case c.token == "":
		return "<start>"
	default:
		return c.token
	}
}

// Page is one batch of items plus the cursor for the next batch.
// A zero Next is treated as EndCursor so a page never rewinds the feed.
type Page[T any] struct {
	Items []T
	Next  Cursor
}

// Fetcher retrieves one page starting at cursor.
//
// Implementations are called from a background goroutine and must not touch
// controller or UI state. On failure they return a non-nil error and the
// returned page is ignored.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, cursor Cursor) (Page[T], error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, cursor Cursor) (Page[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, cursor Cursor) (Page[T], error) {
	return f(ctx, cursor)
}

// Sink receives render instructions. It is implemented by the presentation
// layer and is only ever called from the controller's foreground context.
type Sink[T any] interface {
	ShowLoadingPlaceholder()
	HideLoadingPlaceholder()
	AppendItems(items []T)
	ShowTransientError(message string)
}

// NopSink discards every instruction.
type NopSink[T any] struct{}

func (NopSink[T]) ShowLoadingPlaceholder()   {}
func (NopSink[T]) HideLoadingPlaceholder()   {}
func (NopSink[T]) AppendItems([]T)           {}
func (NopSink[T]) ShowTransientError(string) {}

// FetchError reports a failed page fetch. No partial page is ever applied.
type FetchError struct {
	Cursor Cursor
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed: fetch at cursor %s: %v", e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome of one fetch as handed to Controller.OnFetchCompleted.
type Result[T any] struct {
	Page Page[T]
	Err  error

	seq uint64
}

// State is a read-only snapshot of a controller's feed.
type State[T any] struct {
	Items    []T
	Cursor   Cursor
	InFlight bool
}

// Exhausted reports whether the feed reached its terminal cursor.
func (s State[T]) Exhausted() bool { return s.Cursor.IsEnd() }

// NearEnd reports whether the visible window is within threshold rows of the
// end of a list of total rows. An empty list is always near its end.
func NearEnd(firstVisible, visibleCount, total, threshold int) bool {
	if total <= 0 {
		return true
	}
	if threshold < 0 {
		threshold = 0
	}
	return firstVisible+visibleCount+threshold >= total
}
