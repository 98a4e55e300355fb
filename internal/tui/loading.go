package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 120 * time.Millisecond

func spinnerFrame(now time.Time) string {
	return spinnerFrames[now.UnixMilli()/spinnerInterval.Milliseconds()%int64(len(spinnerFrames))]
}

// renderLoadingPlaceholder renders an animated loading indicator centered in
// an empty body. The frame is selected from the clock so it animates on re-render.
func renderLoadingPlaceholder(now time.Time, width, height int) string {
	text := mutedStyle.Italic(true).Render(spinnerFrame(now) + " Loading tweets...")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

// renderLoadingRow renders the one-line placeholder shown below loaded tweets.
func renderLoadingRow(now time.Time) string {
	return mutedStyle.Italic(true).Render("  " + spinnerFrame(now) + " Loading more...")
}

// SpinnerTickMsg triggers a re-render for the loading spinner.
type SpinnerTickMsg struct{}

func (SpinnerTickMsg) targetPage() string { return FeedPageID }

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(_ time.Time) tea.Msg {
		return SpinnerTickMsg{}
	})
}
