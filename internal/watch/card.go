package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// renderCard draws one connection. width is the card's outer width.
func (m Model) renderCard(c *models.Connection, selected bool, width int) string {
	inner := max(width-4, 10)

	var lines []string
	lines = append(lines, m.cardTitle(c, inner))

	snap := m.metrics[c.ID]
	switch {
	case c.Status != models.StatusOnline:
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("%s@%s:%d", c.Username, c.Hostname, c.Port)))
		if c.ErrorMessage != "" {
			lines = append(lines, ErrorTextStyle.Render(truncate(c.ErrorMessage, inner)))
		}
	case snap == nil || snap.Sample == nil:
		msg := "waiting for first sample"
		if snap != nil && snap.Error != "" {
			msg = snap.Error
		}
		lines = append(lines, MutedStyle.Render(truncate(msg, inner)))
	default:
		lines = append(lines, m.cardMetrics(c.ID, snap.Sample, inner)...)
		if snap.Error != "" {
			lines = append(lines, ErrorTextStyle.Render(truncate("last sample failed: "+snap.Error, inner)))
		}
	}

	if e, ok := m.errors[c.ID]; ok {
		lines = append(lines, ErrorTextStyle.Render(truncate(e, inner)))
	}
	if ops := m.ops[c.ID]; ops != nil {
		lines = append(lines, LabelStyle.Render(opsSummary(ops)))
	}

	style := CardStyle
	if selected {
		style = CardSelectedStyle
	}
	return style.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) cardTitle(c *models.Connection, inner int) string {
	glyph, gstyle := StatusGlyph(c.Status)
	if c.Status == models.StatusConnecting || m.pending[c.ID] {
		glyph = m.spinner.View()
	}
	left := gstyle.Render(glyph) + " " + NameStyle.Render(truncate(c.Name, inner-14))
	right := MutedStyle.Render(c.Status.String())
	gap := max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) cardMetrics(id string, s *models.Sample, inner int) []string {
	barWidth := max(inner-18, 5)
	mem := s.MemoryPercent()

	gpuName := s.GPUName
	if gpuName == "" {
		gpuName = "GPU"
	}
	if s.GPUCount > 1 {
		gpuName = fmt.Sprintf("%dx %s", s.GPUCount, gpuName)
	}

	lines := []string{
		MutedStyle.Render(truncate(gpuName, inner)),
		LabelStyle.Render("GPU ") + ProgressBar(barWidth, s.GPUUtilization) +
			ValueStyle.Render(fmt.Sprintf(" %5.1f%%", s.GPUUtilization)),
		LabelStyle.Render("MEM ") + ProgressBar(barWidth, mem) +
			ValueStyle.Render(fmt.Sprintf(" %5.1f%%", mem)),
	}

	if h := m.gpuHist[id]; len(h) > 1 {
		lines = append(lines, LabelStyle.Render("    ")+RenderSparkline(h, barWidth))
	}

	temp := lipgloss.NewStyle().Foreground(TempColor(s.TemperatureC)).Render(fmt.Sprintf("%d°C", s.TemperatureC))
	power := fmt.Sprintf("%.0fW", s.PowerDrawW)
	if s.PowerLimitW > 0 {
		power = fmt.Sprintf("%.0f/%.0fW", s.PowerDrawW, s.PowerLimitW)
	}
	lines = append(lines,
		LabelStyle.Render("TEMP ")+temp+LabelStyle.Render("  PWR ")+ValueStyle.Render(power),
		LabelStyle.Render("NET ")+ValueStyle.Render(fmt.Sprintf("↓%s ↑%s",
			FormatBytes(s.SessionRxBytes), FormatBytes(s.SessionTxBytes))),
	)
	return lines
}

func opsSummary(g *models.OperationGroups) string {
	running, total := 0, 0
	for _, group := range [][]*models.Operation{g.Servers, g.Jobs, g.Scripts} {
		for _, op := range group {
			total++
			if op.Status == models.OpRunning {
				running++
			}
		}
	}
	if total == 0 {
		return "no operations"
	}
	return fmt.Sprintf("%d running / %d operations", running, total)
}

func truncate(s string, n int) string {
	if n <= 1 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) > n-1 {
		r = r[:n-1]
	}
	return string(r) + "…"
}
