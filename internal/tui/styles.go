package tui

import "github.com/charmbracelet/lipgloss"

// One Dark Pro color palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")

	ColorRed     = lipgloss.Color("#E06C75")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorMagenta = lipgloss.Color("#C678DD")
	ColorCyan    = lipgloss.Color("#56B6C2")

	ColorBorder = lipgloss.Color("#3F4451")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true).
			PaddingLeft(1)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	FocusedPaneStyle = PaneStyle.
				BorderForeground(ColorMagenta)

	PaneTitleStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorBlue).
				Bold(true)

	ActiveMarkerStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	TagStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	ModelStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1)
)
