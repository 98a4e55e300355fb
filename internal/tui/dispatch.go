package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// dispatchMsg carries a fetch completion into the Bubble Tea update loop.
type dispatchMsg struct {
	fn func()
}

func (dispatchMsg) targetPage() string { return FeedPageID }

// Dispatch hands functions from fetch goroutines to the update loop, which is
// the only goroutine that touches page state.
type Dispatch struct {
	ch       chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatch creates an unbuffered dispatcher.
func NewDispatch() *Dispatch {
	return &Dispatch{
		ch:   make(chan func()),
		done: make(chan struct{}),
	}
}

// Dispatch blocks until the update loop receives fn. It returns false once
// Stop has been called.
func (d *Dispatch) Dispatch(fn func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.ch <- fn:
		return true
	case <-d.done:
		return false
	}
}

// Wait returns a command that delivers the next dispatched function as a
// message. Exactly one Wait command should be outstanding at a time.
func (d *Dispatch) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case fn := <-d.ch:
			return dispatchMsg{fn: fn}
		case <-d.done:
			return nil
		}
	}
}

// Stop makes pending and future Dispatch calls return false.
func (d *Dispatch) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}
