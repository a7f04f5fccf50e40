package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// Dashboard palette.
const (
	ColorDarkBg    = lipgloss.Color("#0A0A0F")
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent = lipgloss.Color("#76B900")
	ColorGraph  = lipgloss.Color("#00FFFF")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	HeaderStyle = fg(ColorTextPrimary).Background(ColorSurfaceBg).Bold(true).Padding(0, 1)
	FooterStyle = fg(ColorTextMuted).Padding(0, 1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			Margin(0, 1, 1, 0)
	CardSelectedStyle = CardStyle.BorderForeground(ColorAccent)

	NameStyle      = fg(ColorTextPrimary).Bold(true)
	LabelStyle     = fg(ColorTextSecondary)
	ValueStyle     = fg(ColorTextPrimary)
	MutedStyle     = fg(ColorTextMuted)
	ErrorTextStyle = fg(ColorCritical)

	borderStyle = fg(ColorBorder)
)

// GlyphError marks failures in the header and on cards.
const GlyphError = "✗"

// ConnectingFrames spin next to a connection while it dials.
var ConnectingFrames = []string{"◐", "◓", "◑", "◒"}

// StatusGlyph returns the glyph and style for a connection status.
func StatusGlyph(s models.ConnStatus) (string, lipgloss.Style) {
	switch s {
	case models.StatusOnline:
		return "◉", fg(ColorHealthy)
	case models.StatusError:
		return GlyphError, fg(ColorCritical)
	case models.StatusConnecting:
		return ConnectingFrames[0], fg(ColorWarning)
	}
	return "◌", fg(ColorTextMuted)
}

// graded picks healthy, warning, or critical by comparing v with the two
// thresholds.
func graded(v, warn, crit float64) lipgloss.Color {
	if v >= crit {
		return ColorCritical
	}
	if v >= warn {
		return ColorWarning
	}
	return ColorHealthy
}

// MetricColor grades a load percentage: amber from 70, red from 90.
func MetricColor(percent float64) lipgloss.Color { return graded(percent, 70, 90) }

// TempColor grades a GPU temperature: amber from 75°C, red from 85°C.
func TempColor(celsius int) lipgloss.Color { return graded(float64(celsius), 75, 85) }

// split divides width cells in proportion to percent, clamped to 0-100.
func split(width int, percent float64) (filled, rest int) {
	filled = int(min(max(percent, 0), 100) / 100 * float64(width))
	return filled, width - filled
}

// ProgressBar draws a load gauge colored by MetricColor.
func ProgressBar(width int, percent float64) string {
	filled, rest := split(max(width, 1), percent)
	return fg(MetricColor(percent)).Render(strings.Repeat("▰", filled) + strings.Repeat("▱", rest))
}

// OpProgressBar draws an operation's progress in the accent color, or a
// plain rule when progress is indeterminate.
func OpProgressBar(width, progress int) string {
	width = max(width, 1)
	if progress < 0 {
		return MutedStyle.Render(strings.Repeat("─", width))
	}
	filled, rest := split(width, float64(progress))
	return fg(ColorAccent).Render(strings.Repeat("━", filled)) + MutedStyle.Render(strings.Repeat("─", rest))
}

// SectionHeader draws "╭─ title ─── value ╮" across width.
func SectionHeader(title, value string, width int) string {
	width = max(width, 10)
	fill := max(width-lipgloss.Width(title)-lipgloss.Width(value)-7, 1)
	return borderStyle.Render("╭─ ") +
		fg(ColorAccent).Bold(true).Render(title) +
		borderStyle.Render(" "+strings.Repeat("─", fill)+" ") +
		fg(ColorGraph).Bold(true).Render(value) +
		borderStyle.Render(" ╮")
}

// SectionLine draws "│ content │" padded to width.
func SectionLine(content string, width int) string {
	pad := max(max(width, 4)-4-lipgloss.Width(content), 0)
	return borderStyle.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + borderStyle.Render("│")
}

// SectionFooter draws "╰───╯" across width.
func SectionFooter(width int) string {
	return borderStyle.Render("╰" + strings.Repeat("─", max(width, 2)-2) + "╯")
}
