package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/fetcher"
	"github.com/tinytelemetry/confeed/internal/model"
)

var testNow = time.Date(2026, 5, 12, 10, 30, 0, 0, time.UTC)

func makeTweets(prefix string, n int) []model.Tweet {
	out := make([]model.Tweet, n)
	for i := range out {
		out[i] = model.Tweet{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			FromUser:  fmt.Sprintf("%s%d", prefix, i),
			Text:      fmt.Sprintf("tweet %d from %s #agileday", i, prefix),
			CreatedAt: testNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

type pagedFetcher struct {
	pages map[string]feed.Page[model.Tweet]
	calls atomic.Int32
}

func (f *pagedFetcher) Fetch(_ context.Context, c feed.Cursor) (feed.Page[model.Tweet], error) {
	f.calls.Add(1)
	if pg, ok := f.pages[c.Token()]; ok {
		return pg, nil
	}
	return feed.Page[model.Tweet]{}, errors.New("no such page")
}

func newTestFeedPage(t *testing.T, f feed.Fetcher[model.Tweet], opts ...func(*FeedConfig)) *FeedPage {
	t.Helper()
	cfg := FeedConfig{
		Title:             "#agileday",
		Fetcher:           f,
		PrefetchThreshold: 3,
		Logger:            log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(&cfg)
	}
	p := NewFeedPage(cfg)
	p.now = func() time.Time { return testNow }
	p.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	t.Cleanup(p.Close)
	return p
}

// deliver waits for the next fetch completion and applies it.
func deliver(t *testing.T, p *FeedPage) {
	t.Helper()
	got := make(chan tea.Msg, 1)
	go func() { got <- p.dispatch.Wait()() }()
	select {
	case msg := <-got:
		p.Update(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch completion dispatched")
	}
}

func press(p *FeedPage, k tea.KeyMsg) *PageNav {
	_, nav := p.Update(k)
	return nav
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyR     = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}
	keyC     = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")}
)

func TestFeedPage_InitialLoad(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"": {Items: makeTweets("a", 20), Next: feed.After("c1")},
	}}
	p := newTestFeedPage(t, f)

	p.Init()
	if !p.loading {
		t.Fatal("loading = false after Init, want true")
	}
	if view := p.View(80, 24); !strings.Contains(view, "Loading tweets") {
		t.Fatalf("view while loading = %q, want loading placeholder", view)
	}

	deliver(t, p)

	if p.loading {
		t.Fatal("loading = true after completion, want false")
	}
	if got := len(p.tweets); got != 20 {
		t.Fatalf("tweets = %d, want 20", got)
	}
	if got := p.Snapshot().Cursor.Token(); got != "c1" {
		t.Fatalf("cursor = %q, want c1", got)
	}
	view := p.View(80, 24)
	if !strings.Contains(view, "@a0") || !strings.Contains(view, "20 tweets") {
		t.Fatalf("view = %q, want rendered tweets and count", view)
	}
}

func TestFeedPage_InitOnlyLoadsOnce(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"":   {Items: makeTweets("a", 20), Next: feed.After("c1")},
		"c1": {Items: makeTweets("b", 2), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)

	p.Init()
	deliver(t, p)
	if cmd := p.Init(); cmd != nil {
		t.Fatal("second Init returned a command, want nil")
	}
	if p.loading {
		t.Fatal("second Init started a fetch")
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestFeedPage_ScrollNearEndPrefetches(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"":   {Items: makeTweets("a", 20), Next: feed.After("c1")},
		"c1": {Items: makeTweets("b", 5), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	// 24 rows leave 11 visible tweets; with a threshold of 3 the window is
	// near the end of 20 tweets once it starts at row 6.
	for i := 0; i < 15; i++ {
		press(p, keyDown)
	}
	if p.loading {
		t.Fatalf("prefetch started early at selection %d", p.selected)
	}

	press(p, keyDown)
	if !p.loading {
		t.Fatalf("no prefetch at selection %d offset %d", p.selected, p.offset)
	}

	// A second trigger while in flight is dropped.
	press(p, keyDown)
	deliver(t, p)

	if got := len(p.tweets); got != 25 {
		t.Fatalf("tweets = %d, want 25", got)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	if !p.Snapshot().Exhausted() {
		t.Fatal("feed not exhausted after last page")
	}
	if view := p.View(80, 24); !strings.Contains(view, "end of feed") {
		t.Fatalf("header = %q, want end of feed marker", view)
	}
}

func TestFeedPage_ShortPageFillsWindow(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"":   {Items: makeTweets("a", 2), Next: feed.After("c1")},
		"c1": {Items: makeTweets("b", 2), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	if !p.loading {
		t.Fatal("short first page did not start the next fetch")
	}
	deliver(t, p)

	if got := len(p.tweets); got != 4 {
		t.Fatalf("tweets = %d, want 4", got)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	if p.loading {
		t.Fatal("fetch started after end of feed")
	}
}

func TestFeedPage_ResizeFillsWindow(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"":   {Items: makeTweets("a", 20), Next: feed.After("c1")},
		"c1": {Items: makeTweets("b", 5), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	p.Init()
	deliver(t, p)

	if p.loading {
		t.Fatalf("fetch started with %d visible rows", p.visibleRows())
	}

	p.Update(tea.WindowSizeMsg{Width: 80, Height: 60})
	if !p.loading {
		t.Fatalf("resize to %d visible rows did not fetch", p.visibleRows())
	}
	deliver(t, p)
	if got := len(p.tweets); got != 25 {
		t.Fatalf("tweets = %d, want 25", got)
	}
}

func TestFeedPage_FetchErrorShowsToast(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	if p.toast == "" {
		t.Fatal("toast empty after failed fetch")
	}
	if len(p.tweets) != 0 || !p.Snapshot().Cursor.IsStart() {
		t.Fatal("failed fetch changed feed state")
	}
	if view := p.View(80, 24); !strings.Contains(view, "Couldn't load tweets") {
		t.Fatalf("view = %q, want toast", view)
	}

	// A stale expiry leaves the toast in place.
	p.Update(toastExpiredMsg{seq: p.toastSeq - 1})
	if p.toast == "" {
		t.Fatal("stale expiry cleared the toast")
	}

	// Any key dismisses the toast without acting.
	press(p, keyR)
	if p.toast != "" {
		t.Fatal("toast still shown after a key press")
	}
	if p.loading {
		t.Fatal("dismissing key also triggered a refresh")
	}

	// The next refresh retries from the same cursor.
	press(p, keyR)
	if !p.loading {
		t.Fatal("refresh after error did not start a fetch")
	}
	deliver(t, p)
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestFeedPage_ToastExpires(t *testing.T) {
	t.Parallel()

	p := newTestFeedPage(t, &pagedFetcher{})
	p.ShowTransientError("boom")
	p.Update(toastExpiredMsg{seq: p.toastSeq})
	if p.toast != "" {
		t.Fatalf("toast = %q after expiry, want empty", p.toast)
	}
}

func TestFeedPage_RefreshIgnoredAtEnd(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"": {Items: makeTweets("a", 3), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	press(p, keyR)
	if p.loading {
		t.Fatal("refresh after end of feed started a fetch")
	}
}

func TestFeedPage_EnterOpensTweet(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"": {Items: makeTweets("a", 3), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	press(p, keyDown)
	nav := press(p, keyEnter)
	if nav == nil || nav.PageID != TweetPageID {
		t.Fatalf("nav = %+v, want tweet page", nav)
	}
	tw, ok := nav.Params.(model.Tweet)
	if !ok || tw.ID != "a-1" {
		t.Fatalf("params = %+v, want tweet a-1", nav.Params)
	}
}

func TestFeedPage_ReverseScrollWheel(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"": {Items: makeTweets("a", 3), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f, func(c *FeedConfig) { c.ReverseScrollWheel = true })
	p.Init()
	deliver(t, p)

	p.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	if p.selected != 1 {
		t.Fatalf("selected = %d after reversed wheel up, want 1", p.selected)
	}
}

func TestFeedPage_ChartToggle(t *testing.T) {
	t.Parallel()

	f := &pagedFetcher{pages: map[string]feed.Page[model.Tweet]{
		"": {Items: makeTweets("a", 3), Next: feed.EndCursor},
	}}
	p := newTestFeedPage(t, f)
	p.Init()
	deliver(t, p)

	rows := p.visibleRows()
	press(p, keyC)
	if !p.showChart {
		t.Fatal("chart not shown after c")
	}
	if got := p.visibleRows(); got >= rows {
		t.Fatalf("visible rows = %d with chart, want fewer than %d", got, rows)
	}
	if view := p.View(80, 24); !strings.Contains(view, "Activity") {
		t.Fatalf("view = %q, want activity chart", view)
	}
}

func TestFeedPage_CloseStopsDispatch(t *testing.T) {
	t.Parallel()

	p := newTestFeedPage(t, &pagedFetcher{})
	p.Close()
	if p.dispatch.Dispatch(func() {}) {
		t.Fatal("Dispatch after Close = true, want false")
	}
	if p.ctrl.OnRefreshRequested() {
		t.Fatal("refresh after Close started a fetch")
	}
}

func TestFriendlyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &feed.FetchError{Err: fmt.Errorf("%w: %w", feed.ErrTimeout, context.DeadlineExceeded)}, "Timed out"},
		{"rate limited", &feed.FetchError{Err: fmt.Errorf("search: %w", fetcher.ErrRateLimited)}, "Rate limited"},
		{"unavailable", &feed.FetchError{Err: fetcher.ErrUnavailable}, "unavailable"},
		{"other", errors.New("boom"), "Couldn't load"},
	}
	for _, tt := range tests {
		if got := friendlyError(tt.err); !strings.Contains(got, tt.want) {
			t.Fatalf("%s: friendlyError = %q, want containing %q", tt.name, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("hello world", 6); got != "hello…" {
		t.Fatalf("truncate long = %q, want hello…", got)
	}
	if got := truncate("hello", 0); got != "" {
		t.Fatalf("truncate zero = %q, want empty", got)
	}
}
