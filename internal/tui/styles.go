package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("39")
	muted  = lipgloss.Color("241")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	crumbStyle = lipgloss.NewStyle().
			Foreground(muted)

	eventStyle = lipgloss.NewStyle().
			Foreground(accent)

	categoryRowStyle = lipgloss.NewStyle().
				Foreground(accent).
				Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(muted)

	dimItalicStyle = lipgloss.NewStyle().
			Foreground(muted).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Bold(true)

	dividerStyle = lipgloss.NewStyle().
			Foreground(accent)

	statusStyle = lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)
