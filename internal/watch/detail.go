package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// renderDetailContent builds the scrollable detail page for the selected
// connection: GPU and memory graphs, network counters and every operation.
func (m Model) renderDetailContent() string {
	c := m.Selected()
	if c == nil {
		return ""
	}
	width := max(m.width, 40)
	graphWidth := max(width-6, 10)

	var out []string
	glyph, gstyle := StatusGlyph(c.Status)
	out = append(out,
		gstyle.Render(glyph)+" "+NameStyle.Render(c.Name)+"  "+
			MutedStyle.Render(fmt.Sprintf("%s@%s  %s", c.Username, c.Address(), c.Status)),
		"",
	)
	if c.ErrorMessage != "" {
		out = append(out, ErrorTextStyle.Render(c.ErrorMessage), "")
	}

	snap := m.metrics[c.ID]
	if snap != nil && snap.Sample != nil {
		s := snap.Sample
		out = append(out, m.graphSection("GPU", fmt.Sprintf("%.1f%%", s.GPUUtilization), m.gpuHist[c.ID], width, graphWidth)...)
		out = append(out, m.graphSection("Memory",
			fmt.Sprintf("%s / %s", FormatMB(s.MemoryUsedMB), FormatMB(s.MemoryTotalMB)),
			m.memHist[c.ID], width, graphWidth)...)

		out = append(out, SectionHeader("Host", s.Timestamp.Local().Format("15:04:05"), width))
		out = append(out,
			SectionLine(LabelStyle.Render("GPU       ")+ValueStyle.Render(fmt.Sprintf("%d x %s", max(s.GPUCount, 1), s.GPUName)), width),
			SectionLine(LabelStyle.Render("Temp      ")+
				lipgloss.NewStyle().Foreground(TempColor(s.TemperatureC)).Render(fmt.Sprintf("%d°C", s.TemperatureC)), width),
			SectionLine(LabelStyle.Render("Power     ")+ValueStyle.Render(fmt.Sprintf("%.1f W of %.0f W", s.PowerDrawW, s.PowerLimitW)), width),
			SectionLine(LabelStyle.Render("System RAM ")+ValueStyle.Render(
				fmt.Sprintf("%s / %s", FormatMB(s.SystemMemUsedMB), FormatMB(s.SystemMemTotalMB))), width),
			SectionLine(LabelStyle.Render("Network   ")+ValueStyle.Render(fmt.Sprintf("%s  ↓%s (%d pkts)  ↑%s (%d pkts)",
				s.Interface, FormatBytes(s.SessionRxBytes), s.SessionRxPackets,
				FormatBytes(s.SessionTxBytes), s.SessionTxPackets)), width),
			SectionFooter(width),
			"",
		)
	} else if snap != nil && snap.Error != "" {
		out = append(out, ErrorTextStyle.Render("metrics: "+snap.Error), "")
	}

	out = append(out, m.operationsSection(c.ID, width)...)
	return strings.Join(out, "\n")
}

func (m Model) graphSection(title, value string, hist []float64, width, graphWidth int) []string {
	lines := []string{SectionHeader(title, value, width)}
	if len(hist) == 0 {
		lines = append(lines, SectionLine(MutedStyle.Render("no history yet"), width))
	} else {
		for _, row := range strings.Split(RenderBraille(hist, graphWidth, 3, ColorGraph), "\n") {
			lines = append(lines, SectionLine(row, width))
		}
	}
	return append(lines, SectionFooter(width), "")
}

func (m Model) operationsSection(id string, width int) []string {
	g := m.ops[id]
	if g == nil {
		return []string{MutedStyle.Render("operations unavailable while offline")}
	}

	lines := []string{}
	now := time.Now()
	for _, grp := range []struct {
		title string
		ops   []*models.Operation
	}{
		{"Servers", g.Servers},
		{"Jobs", g.Jobs},
		{"Scripts", g.Scripts},
	} {
		lines = append(lines, SectionHeader(grp.title, fmt.Sprintf("%d", len(grp.ops)), width))
		if len(grp.ops) == 0 {
			lines = append(lines, SectionLine(MutedStyle.Render("none"), width))
		}
		for _, op := range grp.ops {
			lines = append(lines, SectionLine(opLine(op, width-4, now), width))
			if op.ProgressMessage != "" && op.Status == models.OpRunning {
				lines = append(lines, SectionLine(MutedStyle.Render("  "+truncate(op.ProgressMessage, width-8)), width))
			}
		}
		lines = append(lines, SectionFooter(width))
	}
	return lines
}

func opLine(op *models.Operation, width int, now time.Time) string {
	status := opStatusStyle(op.Status).Render(fmt.Sprintf("%-9s", op.Status))
	name := truncate(op.Name, 24)
	line := status + " " + NameStyle.Render(fmt.Sprintf("%-24s", name))

	switch {
	case op.Status == models.OpRunning && op.URL != "":
		line += " " + LabelStyle.Render(op.URL)
	case op.Status == models.OpRunning:
		bar := max(width-lipgloss.Width(line)-8, 5)
		line += " " + OpProgressBar(bar, op.Progress)
		if op.Progress >= 0 {
			line += ValueStyle.Render(fmt.Sprintf(" %3d%%", op.Progress))
		}
	case op.CompletedAt != nil:
		line += " " + MutedStyle.Render(FormatAge(*op.CompletedAt, now))
		if op.ExitCode != nil {
			line += MutedStyle.Render(fmt.Sprintf(" exit %d", *op.ExitCode))
		}
	}
	return line
}

func opStatusStyle(s models.OpStatus) lipgloss.Style {
	switch s {
	case models.OpRunning, models.OpStarting:
		return lipgloss.NewStyle().Foreground(ColorHealthy)
	case models.OpWarning:
		return lipgloss.NewStyle().Foreground(ColorWarning)
	case models.OpFailed:
		return lipgloss.NewStyle().Foreground(ColorCritical)
	default:
		return MutedStyle
	}
}
