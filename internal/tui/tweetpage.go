package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/confeed/internal/model"
)

// TweetPage shows one tweet in a scrollable viewport.
type TweetPage struct {
	vp     viewport.Model
	keys   KeyMap
	tweet  model.Tweet
	now    func() time.Time
	width  int
	height int
}

// NewTweetPage creates an empty detail page.
func NewTweetPage() *TweetPage {
	return &TweetPage{
		vp:   viewport.New(0, 0),
		keys: DefaultKeyMap(),
		now:  time.Now,
	}
}

func (p *TweetPage) ID() string { return TweetPageID }

func (p *TweetPage) Init() tea.Cmd {
	p.vp.GotoTop()
	return nil
}

// SetParams receives the tweet to show.
func (p *TweetPage) SetParams(params interface{}) {
	if t, ok := params.(model.Tweet); ok {
		p.tweet = t
	}
}

func (p *TweetPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return nil, nil
	case tea.KeyMsg:
		if key.Matches(msg, p.keys.Back) {
			return nil, &PageNav{PageID: FeedPageID}
		}
	}

	var cmd tea.Cmd
	p.vp, cmd = p.vp.Update(msg)
	return cmd, nil
}

func (p *TweetPage) View(width, height int) string {
	modalWidth := max(width-8, 20)
	modalHeight := max(height-4, 6)
	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	p.vp.Width = contentWidth
	p.vp.Height = contentHeight
	p.vp.SetContent(p.formatDetails(contentWidth))

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render("Tweet")

	statusBar := mutedStyle.Render(strings.Join([]string{"up/down/Wheel: Scroll", "PgUp/PgDn: Page", "ESC: Back"}, " | "))

	modal := lipgloss.JoinVertical(lipgloss.Left, header, p.vp.View(), statusBar)
	framed := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, framed)
}

func (p *TweetPage) formatDetails(width int) string {
	t := p.tweet
	if t.FromUser == "" {
		return mutedStyle.Render("No tweet selected.")
	}

	label := lipgloss.NewStyle().Foreground(ColorGray).Width(10)
	rows := []string{
		handleStyle.Render(t.FromUserName) + " " + mutedStyle.Render("@"+t.FromUser),
		"",
		lipgloss.NewStyle().Width(width).Render(t.Text),
		"",
		label.Render("Posted") + t.CreatedAt.Local().Format(time.RFC1123) + mutedStyle.Render(" ("+humanize.RelTime(t.CreatedAt, p.now(), "ago", "from now")+")"),
	}
	if t.Source != "" {
		rows = append(rows, label.Render("Source")+t.Source)
	}
	if len(t.Hashtags) > 0 {
		tags := make([]string, len(t.Hashtags))
		for i, h := range t.Hashtags {
			tags[i] = "#" + h
		}
		rows = append(rows, label.Render("Hashtags")+strings.Join(tags, " "))
	}
	if t.ProfileImageURL != "" {
		rows = append(rows, label.Render("Avatar")+t.ProfileImageURL)
	}
	if t.ID != "" {
		rows = append(rows, label.Render("ID")+t.ID)
	}
	return strings.Join(rows, "\n")
}
