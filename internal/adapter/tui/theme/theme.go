// Package theme holds the terminal styles of the interactive CLI.
//
// NO_COLOR (https://no-color.org/) is respected by lipgloss through its
// color profile detection.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"lumen-agent/internal/domain"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

var (
	UserLabel = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	BotLabel  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	ToolLabel = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)

	// Reasoning is shown dimmed and italic so it reads apart from the answer.
	Reasoning = lipgloss.NewStyle().Foreground(ColorMuted).Faint(true).Italic(true)

	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
)

// StatusStyle returns the style for an activity indicator.
func StatusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusIdle:
		return TextMuted
	case domain.StatusCalculating, domain.StatusCoding:
		return TextWarning
	case domain.StatusGenerating:
		return TextAccent
	default:
		return TextInfo
	}
}

// TurnStatusStyle returns the style for a terminal turn state.
func TurnStatusStyle(s domain.TurnStatus) lipgloss.Style {
	switch s {
	case domain.TurnCompleted:
		return TextSuccess
	case domain.TurnMaxIterations:
		return TextWarning
	case domain.TurnCancelled:
		return TextMuted
	default:
		return TextError
	}
}

// Confidence renders a 0..1 score as a fixed-width bar.
func Confidence(v float64, width int) string {
	if width <= 0 {
		width = 10
	}
	filled := Clamp(int(v*float64(width)+0.5), 0, width)
	bar := make([]rune, width)
	for i := range width {
		if i < filled {
			bar[i] = SymbolBarFull
		} else {
			bar[i] = SymbolBarEmpty
		}
	}
	return string(bar)
}

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
