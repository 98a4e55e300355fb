package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type stubPage struct {
	id     string
	inits  int
	msgs   []tea.Msg
	params interface{}
	nav    *PageNav
	closed bool
}

func (s *stubPage) ID() string { return s.id }

func (s *stubPage) Init() tea.Cmd {
	s.inits++
	return nil
}

func (s *stubPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	s.msgs = append(s.msgs, msg)
	nav := s.nav
	s.nav = nil
	return nil, nav
}

func (s *stubPage) View(int, int) string { return s.id }

func (s *stubPage) SetParams(p interface{}) { s.params = p }

func (s *stubPage) Close() { s.closed = true }

func TestApp_RoutesToActivePage(t *testing.T) {
	t.Parallel()

	a, b := &stubPage{id: "a"}, &stubPage{id: "b"}
	app := NewApp(a, b)
	app.Init()

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if len(a.msgs) != 1 || len(b.msgs) != 0 {
		t.Fatalf("msgs a=%d b=%d, want 1/0", len(a.msgs), len(b.msgs))
	}
	if a.inits != 1 {
		t.Fatalf("a inits = %d, want 1", a.inits)
	}
	if got := app.View(); got != "a" {
		t.Fatalf("view = %q, want a", got)
	}
}

func TestApp_NavigationPassesParams(t *testing.T) {
	t.Parallel()

	a, b := &stubPage{id: "a"}, &stubPage{id: "b"}
	app := NewApp(a, b)

	a.nav = &PageNav{PageID: "b", Params: 42}
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if got := app.ActivePage(); got != "b" {
		t.Fatalf("active page = %q, want b", got)
	}
	if b.params != 42 {
		t.Fatalf("params = %v, want 42", b.params)
	}
	if b.inits != 1 {
		t.Fatalf("b inits = %d, want 1", b.inits)
	}

	a.nav = nil
	b.nav = &PageNav{PageID: "missing"}
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := app.ActivePage(); got != "b" {
		t.Fatalf("active page = %q after unknown nav, want b", got)
	}
}

func TestApp_WindowSizeReachesAllPages(t *testing.T) {
	t.Parallel()

	a, b := &stubPage{id: "a"}, &stubPage{id: "b"}
	app := NewApp(a, b)
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	if len(a.msgs) != 1 || len(b.msgs) != 1 {
		t.Fatalf("msgs a=%d b=%d, want 1/1", len(a.msgs), len(b.msgs))
	}
}

func TestApp_TargetedMessagesBypassActivePage(t *testing.T) {
	t.Parallel()

	feedStub, other := &stubPage{id: FeedPageID}, &stubPage{id: "other"}
	app := NewApp(other, feedStub)

	app.Update(SpinnerTickMsg{})
	app.Update(toastExpiredMsg{seq: 1})
	if len(feedStub.msgs) != 2 {
		t.Fatalf("feed msgs = %d, want 2", len(feedStub.msgs))
	}
	if len(other.msgs) != 0 {
		t.Fatalf("active page got %d targeted msgs, want 0", len(other.msgs))
	}
}

func TestApp_CtrlCQuits(t *testing.T) {
	t.Parallel()

	a := &stubPage{id: "a"}
	app := NewApp(a)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c did not quit")
	}
	if len(a.msgs) != 0 {
		t.Fatal("ctrl+c reached the page")
	}
}

func TestApp_CloseClosesPages(t *testing.T) {
	t.Parallel()

	a, b := &stubPage{id: "a"}, &stubPage{id: "b"}
	app := NewApp(a, b)
	app.Close()
	if !a.closed || !b.closed {
		t.Fatal("Close did not reach every page")
	}
}
