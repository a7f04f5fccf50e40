package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	cellFull  = "█"
	cellEmpty = "░"
)

// Scale maps a percentage to a bar color.
type Scale func(percent float64) lipgloss.Color

// UsageScale is for load, where full is bad: red from 80%, yellow from 60%.
func UsageScale(percent float64) lipgloss.Color {
	if percent >= 80 {
		return ColorError
	}
	if percent >= 60 {
		return ColorWarning
	}
	return ColorSuccess
}

// CompletionScale is for progress, where full is good: green from 80%,
// yellow from 50%, blue below.
func CompletionScale(percent float64) lipgloss.Color {
	if percent >= 80 {
		return ColorSuccess
	}
	if percent >= 50 {
		return ColorWarning
	}
	return ColorSecondary
}

// Bar draws a horizontal gauge. The zero Width draws nothing.
type Bar struct {
	Width    int
	Brackets bool
	Scale    Scale // nil leaves the cells unstyled
	Label    bool  // append a right-aligned "NNN%"
}

// Render draws percent, clamped to 0-100.
func (b Bar) Render(percent float64) string {
	if b.Width <= 0 {
		return ""
	}
	percent = min(max(percent, 0), 100)
	full := int(percent / 100 * float64(b.Width))

	cells := strings.Repeat(cellFull, full) + strings.Repeat(cellEmpty, b.Width-full)
	if b.Brackets {
		cells = "[" + cells + "]"
	}
	if b.Scale != nil {
		cells = lipgloss.NewStyle().Foreground(b.Scale(percent)).Render(cells)
	}
	if b.Label {
		cells += fmt.Sprintf(" %3.0f%%", percent)
	}
	return cells
}

// RenderProgressBar draws an operation's completion, e.g.
// "████████░░░░  67%".
func RenderProgressBar(percent float64, width int) string {
	return Bar{Width: width, Scale: CompletionScale, Label: true}.Render(percent)
}

// RenderUsageBar draws a utilization gauge that turns red near 100%.
func RenderUsageBar(percent float64, width int) string {
	return Bar{Width: width, Scale: UsageScale, Label: true}.Render(percent)
}
