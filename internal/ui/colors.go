package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Colors are the 16-color ANSI codes so they follow the terminal's theme.

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// SuccessStyle renders text in the success color.
func SuccessStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorSuccess) }

// ErrorStyle renders text in the error color.
func ErrorStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorError) }

// WarningStyle renders text in the warning color.
func WarningStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorWarning) }

// InfoStyle renders text in the info color.
func InfoStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorInfo) }

// MutedStyle renders secondary text.
func MutedStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorMuted) }

// DisableColors switches every style to plain text.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
