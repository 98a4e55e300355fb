package tui

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/confeed/internal/feed"
	"github.com/tinytelemetry/confeed/internal/fetcher"
	"github.com/tinytelemetry/confeed/internal/model"
)

const (
	tweetRowHeight = 2
	toastDuration  = 5 * time.Second
)

// FeedConfig configures a FeedPage.
type FeedConfig struct {
	Title              string // shown in the header, usually the hashtag
	Fetcher            feed.Fetcher[model.Tweet]
	PrefetchThreshold  int
	FetchTimeout       time.Duration
	FollowUp           bool
	ReverseScrollWheel bool
	Logger             *log.Logger
}

// toastExpiredMsg clears the error toast it was scheduled for.
type toastExpiredMsg struct {
	seq int
}

func (toastExpiredMsg) targetPage() string { return FeedPageID }

// FeedPage renders the paginated tweet feed. It is the controller's sink, and
// every sink call happens on the Bubble Tea update goroutine.
type FeedPage struct {
	ctrl     *feed.Controller[model.Tweet]
	dispatch *Dispatch
	keys     KeyMap
	chart    *ActivityChart
	now      func() time.Time

	title         string
	threshold     int
	reverseScroll bool

	tweets   []model.Tweet
	loading  bool
	selected int
	offset   int // first visible tweet

	toast        string
	toastSeq     int
	toastPending bool

	spinning  bool
	showChart bool
	started   bool

	width  int
	height int
}

var _ feed.Sink[model.Tweet] = (*FeedPage)(nil)

// NewFeedPage creates the feed page and its controller.
func NewFeedPage(cfg FeedConfig) *FeedPage {
	threshold := cfg.PrefetchThreshold
	if threshold < 0 {
		threshold = model.DefaultPrefetchThreshold
	}
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = model.DefaultFetchTimeout
	}

	p := &FeedPage{
		dispatch:      NewDispatch(),
		keys:          DefaultKeyMap(),
		chart:         NewActivityChart(activityHours),
		now:           time.Now,
		title:         cfg.Title,
		threshold:     threshold,
		reverseScroll: cfg.ReverseScrollWheel,
	}

	opts := []feed.Option{
		feed.WithDispatcher(p.dispatch.Dispatch),
		feed.WithTimeout(timeout),
		feed.WithLogger(cfg.Logger),
		feed.WithErrorMessage(friendlyError),
	}
	if cfg.FollowUp {
		opts = append(opts, feed.WithFollowUp())
	}
	p.ctrl = feed.NewController[model.Tweet](cfg.Fetcher, p, opts...)
	return p
}

func (p *FeedPage) ID() string { return FeedPageID }

// Init performs the initial load the first time the page is shown.
func (p *FeedPage) Init() tea.Cmd {
	if p.started {
		return nil
	}
	p.started = true
	p.ctrl.OnRefreshRequested()
	return p.finish(p.dispatch.Wait())
}

// Close detaches the page from its controller and waits for the in-flight
// fetch goroutine to exit.
func (p *FeedPage) Close() {
	p.ctrl.Close()
	p.dispatch.Stop()
	p.ctrl.Wait()
}

// Snapshot exposes the controller state for the status line and tests.
func (p *FeedPage) Snapshot() feed.State[model.Tweet] {
	return p.ctrl.Snapshot()
}

func (p *FeedPage) ShowLoadingPlaceholder() { p.loading = true }

func (p *FeedPage) HideLoadingPlaceholder() { p.loading = false }

func (p *FeedPage) AppendItems(items []model.Tweet) {
	p.tweets = append(p.tweets, items...)
	p.chart.Add(items)
}

func (p *FeedPage) ShowTransientError(message string) {
	p.toast = message
	p.toastSeq++
	p.toastPending = true
}

func (p *FeedPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	var cmds []tea.Cmd
	var nav *PageNav

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.clampOffset()
		p.fillWindow()

	case dispatchMsg:
		msg.fn()
		p.fillWindow()
		cmds = append(cmds, p.dispatch.Wait())

	case SpinnerTickMsg:
		p.spinning = false

	case toastExpiredMsg:
		if msg.seq == p.toastSeq {
			p.toast = ""
		}

	case tea.KeyMsg:
		var cmd tea.Cmd
		cmd, nav = p.handleKey(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		p.handleMouse(msg)
	}

	return p.finish(cmds...), nav
}

func (p *FeedPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	// Any key dismisses the toast and is consumed by it.
	if p.toast != "" {
		p.toast = ""
		return nil, nil
	}

	switch {
	case key.Matches(msg, p.keys.Quit):
		return tea.Quit, nil
	case key.Matches(msg, p.keys.Up):
		p.move(-1)
	case key.Matches(msg, p.keys.Down):
		p.move(1)
	case key.Matches(msg, p.keys.PageUp):
		p.move(-p.visibleRows())
	case key.Matches(msg, p.keys.PageDown):
		p.move(p.visibleRows())
	case key.Matches(msg, p.keys.Home):
		p.move(-len(p.tweets))
	case key.Matches(msg, p.keys.End):
		p.move(len(p.tweets))
	case key.Matches(msg, p.keys.Refresh):
		p.ctrl.OnRefreshRequested()
	case key.Matches(msg, p.keys.Chart):
		p.showChart = !p.showChart
		p.clampOffset()
	case key.Matches(msg, p.keys.Enter):
		if p.selected < len(p.tweets) {
			return nil, &PageNav{PageID: TweetPageID, Params: p.tweets[p.selected]}
		}
	}
	return nil, nil
}

func (p *FeedPage) handleMouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		return
	}
	delta := 0
	switch msg.Button {
	case tea.MouseButtonWheelDown:
		delta = 1
	case tea.MouseButtonWheelUp:
		delta = -1
	default:
		return
	}
	if p.reverseScroll {
		delta = -delta
	}
	p.move(delta)
}

// move shifts the selection and asks for the next page once the visible
// window gets near the end of the loaded tweets.
func (p *FeedPage) move(delta int) {
	if n := len(p.tweets); n > 0 {
		p.selected = min(max(p.selected+delta, 0), n-1)
	}
	p.clampOffset()
	if feed.NearEnd(p.offset, p.visibleRows(), len(p.tweets), p.threshold) {
		p.ctrl.OnScrollNearEnd()
	}
}

// fillWindow keeps loading pages while the loaded tweets do not reach past
// the visible window. It stays idle while an error toast is shown so a
// failing source is retried only on user action.
func (p *FeedPage) fillWindow() {
	if !p.started || p.loading || p.toast != "" {
		return
	}
	if feed.NearEnd(p.offset, p.visibleRows(), len(p.tweets), p.threshold) {
		p.ctrl.OnScrollNearEnd()
	}
}

func (p *FeedPage) clampOffset() {
	rows := p.visibleRows()
	if p.selected < p.offset {
		p.offset = p.selected
	}
	if p.selected >= p.offset+rows {
		p.offset = p.selected - rows + 1
	}
	if p.offset < 0 {
		p.offset = 0
	}
}

// finish appends the timers the current state needs.
func (p *FeedPage) finish(cmds ...tea.Cmd) tea.Cmd {
	if p.loading && !p.spinning {
		p.spinning = true
		cmds = append(cmds, spinnerTick())
	}
	if p.toastPending {
		p.toastPending = false
		seq := p.toastSeq
		cmds = append(cmds, tea.Tick(toastDuration, func(_ time.Time) tea.Msg {
			return toastExpiredMsg{seq: seq}
		}))
	}
	return tea.Batch(cmds...)
}

func (p *FeedPage) chartHeight() int {
	if p.showChart {
		return activityChartHeight
	}
	return 0
}

func (p *FeedPage) bodyHeight() int {
	h := p.height - 2 - p.chartHeight() // header + status bar
	if p.toast != "" {
		h--
	}
	return max(h, tweetRowHeight)
}

func (p *FeedPage) visibleRows() int {
	return max(p.bodyHeight()/tweetRowHeight, 1)
}

func (p *FeedPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing..."
	}
	now := p.now()

	sections := []string{p.renderHeader(width)}
	if p.showChart {
		sections = append(sections, p.chart.Render(now, width, activityChartHeight))
	}

	body := p.bodyHeight()
	if len(p.tweets) == 0 && p.loading {
		sections = append(sections, renderLoadingPlaceholder(now, width, body))
	} else {
		sections = append(sections, p.renderTweets(now, width, body))
	}

	if p.toast != "" {
		sections = append(sections, toastStyle.Render(truncate(p.toast, width-2)))
	}
	sections = append(sections, p.renderStatusBar(width))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (p *FeedPage) renderHeader(width int) string {
	title := p.title
	if title == "" {
		title = model.DefaultHashtag
	}
	right := fmt.Sprintf("%d tweets", len(p.tweets))
	if p.ctrl.Snapshot().Exhausted() {
		right += " · end of feed"
	}
	header := title
	if spacer := width - lipgloss.Width(title) - lipgloss.Width(right); spacer > 0 {
		header = title + strings.Repeat(" ", spacer) + right
	}
	return titleStyle.Render(header)
}

func (p *FeedPage) renderTweets(now time.Time, width, height int) string {
	var lines []string
	if len(p.tweets) == 0 {
		lines = append(lines, mutedStyle.Render("  No tweets yet. Press r to load."))
	}

	end := min(p.offset+p.visibleRows(), len(p.tweets))
	for i := p.offset; i < end; i++ {
		marker := "  "
		if i == p.selected {
			marker = selectedMarkerStyle.Render("▌ ")
		}
		t := p.tweets[i]
		head := handleStyle.Render("@"+t.FromUser) + mutedStyle.Render(" · "+humanize.RelTime(t.CreatedAt, now, "ago", "from now"))
		lines = append(lines,
			marker+head,
			marker+truncate(singleLine(t.Text), width-2),
		)
	}

	if p.loading && end == len(p.tweets) && len(lines) < height {
		lines = append(lines, renderLoadingRow(now))
	}

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}

func (p *FeedPage) renderStatusBar(width int) string {
	help := "↑/↓ scroll · enter details · r load more · c chart · q quit"
	return statusBarStyle.Width(width).Render(truncate(help, width))
}

// friendlyError turns a fetch failure into toast text.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, feed.ErrTimeout):
		return "Timed out loading tweets. Scroll or press r to retry."
	case errors.Is(err, fetcher.ErrRateLimited):
		return "Rate limited by the feed source. Try again shortly."
	case errors.Is(err, fetcher.ErrUnavailable):
		return "Feed source unavailable. Try again shortly."
	default:
		return "Couldn't load tweets. Scroll or press r to retry."
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
