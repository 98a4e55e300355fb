package tui

import tea "github.com/charmbracelet/bubbletea"

const (
	FeedPageID  = "feed"
	TweetPageID = "tweet"
)

// Page represents a top-level screen in the TUI (feed, tweet details).
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch. Params is handed
// to the target page before its Init runs.
type PageNav struct {
	PageID string
	Params interface{}
}

// paramsReceiver is implemented by pages that accept PageNav.Params.
type paramsReceiver interface {
	SetParams(params interface{})
}

// targetedMsg is implemented by messages that belong to one page regardless
// of which page is active, such as fetch completions and timers.
type targetedMsg interface {
	targetPage() string
}
