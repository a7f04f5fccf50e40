package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dgxops/internal/models"
)

func (m Model) renderDashboard() string {
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	if m.viewMode == ViewDetail && m.Selected() != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.detail.View(),
			m.renderFooter(),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderCards(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	online := 0
	for _, c := range m.conns {
		if c.Status == models.StatusOnline {
			online++
		}
	}

	title := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render("dgxops watch")
	counts := LabelStyle.Render(fmt.Sprintf("%d/%d online", online, len(m.conns)))
	updated := MutedStyle.Render("waiting for daemon")
	if !m.lastUpdate.IsZero() {
		updated = MutedStyle.Render("updated " + m.lastUpdate.Format("15:04:05"))
	}

	line := title + "  " + counts + "  " + updated
	if m.pollErr != "" {
		line += "  " + ErrorTextStyle.Render(GlyphError+" "+m.pollErr)
	}
	return HeaderStyle.Width(max(m.width, 1)).Render(line)
}

func (m Model) renderFooter() string {
	hints := "↑/↓ select  enter details  c connect  x disconnect  s sort: " + m.sortOrder.String() + "  r refresh  ? help  q quit"
	if m.viewMode == ViewDetail {
		hints = "↑/↓ scroll  esc back  c connect  x disconnect  q quit"
	}
	out := FooterStyle.Render(hints)
	if m.notice != "" {
		out = FooterStyle.Render(ErrorTextStyle.Render(m.notice)) + "\n" + out
	}
	return out
}

// cardColumns picks how many cards fit side by side.
func (m Model) cardColumns() int {
	switch {
	case m.width >= BreakpointWide:
		return 3
	case m.width >= BreakpointStandard:
		return 2
	default:
		return 1
	}
}

func (m Model) renderCards() string {
	if len(m.conns) == 0 {
		msg := "No connections yet. Add one with: dgxops connection add"
		if m.lastUpdate.IsZero() {
			msg = "Loading..."
		}
		return "\n" + MutedStyle.Render("  "+msg) + "\n"
	}

	cols := m.cardColumns()
	cardWidth := 40
	if m.width > 0 {
		cardWidth = max(m.width/cols-3, 30)
	}

	var rows []string
	var row []string
	for i, c := range m.conns {
		row = append(row, m.renderCard(c, i == m.selected, cardWidth))
		if len(row) == cols {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n")
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatMB renders a megabyte count as MB or GB.
func FormatMB(mb int64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.1f GB", float64(mb)/1024)
	}
	return fmt.Sprintf("%d MB", mb)
}

// FormatAge renders how long ago t was, coarsely.
func FormatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
