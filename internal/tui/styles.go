package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBlue   = lipgloss.Color("39")
	ColorGray   = lipgloss.Color("244")
	ColorGreen  = lipgloss.Color("42")
	ColorNavy   = lipgloss.Color("17")
	ColorRed    = lipgloss.Color("196")
	ColorWhite  = lipgloss.Color("255")
	ColorYellow = lipgloss.Color("220")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	handleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(ColorGray)

	selectedMarkerStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	toastStyle = lipgloss.NewStyle().
			Background(ColorRed).
			Foreground(ColorWhite).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite)

	chartBarStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Background(ColorBlue)
)
