package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	helpBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Background(ColorSurfaceBg).
		Padding(1, 2)
	helpTitle = fg(ColorAccent).Bold(true)
	helpKey   = fg(ColorTextPrimary).Bold(true).Width(14)
)

// renderHelpOverlay centers the key reference over the whole screen.
func (m Model) renderHelpOverlay() string {
	var b strings.Builder
	b.WriteString(helpTitle.Render("Keyboard Shortcuts") + "\n\n")
	for _, binding := range keys.helpRows() {
		h := binding.Help()
		b.WriteString(helpKey.Render(h.Key) + LabelStyle.Render(h.Desc) + "\n")
	}
	b.WriteString("\n" + MutedStyle.Render("Press ? to close"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		helpBox.Render(b.String()),
		lipgloss.WithWhitespaceForeground(ColorDarkBg))
}
