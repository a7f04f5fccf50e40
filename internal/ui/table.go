package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionRow is one line of the connection table.
type ConnectionRow struct {
	Status   string // offline, connecting, online, error
	Name     string
	Address  string // user@host:port
	LastSeen string
	Error    string
}

// RenderConnectionTable renders connections with a status glyph per row.
// A connection in error gets its message on an indented line below.
func RenderConnectionTable(rows []ConnectionRow) string {
	if len(rows) == 0 {
		return "No connections configured\n"
	}

	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	nameWidth := 16
	for _, r := range rows {
		if w := lipgloss.Width(r.Name) + 2; w > nameWidth {
			nameWidth = w
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("  " + padRight("STATUS", 13) + padRight("NAME", nameWidth) + padRight("ADDRESS", 34) + "LAST CONNECTED"))
	b.WriteString("\n")

	for _, r := range rows {
		b.WriteString("  " + padRight(StatusSymbol(r.Status)+" "+r.Status, 13) +
			padRight(r.Name, nameWidth) +
			padRight(r.Address, 34) +
			mutedStyle.Render(r.LastSeen) + "\n")
		if r.Error != "" {
			b.WriteString("    " + errorStyle.Render(r.Error) + "\n")
		}
	}
	return b.String()
}

// StatusSymbol returns the colored glyph for a connection or operation
// status name.
func StatusSymbol(status string) string {
	switch status {
	case "online", "running", "completed":
		return lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolComplete)
	case "connecting", "starting", "warning":
		return lipgloss.NewStyle().Foreground(ColorWarning).Render(SymbolProgress)
	case "error", "failed":
		return lipgloss.NewStyle().Foreground(ColorError).Render(SymbolFail)
	case "cancelled":
		return lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolSkipped)
	default:
		return lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolPending)
	}
}

// OperationRow is one line of the operation table.
type OperationRow struct {
	ID       string
	Name     string
	Type     string
	Status   string
	Progress int // -1 when unknown
	Detail   string
}

// RenderOperationTable renders operations with an inline progress bar for
// running ones.
func RenderOperationTable(rows []OperationRow) string {
	if len(rows) == 0 {
		return "No operations\n"
	}

	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	var b strings.Builder
	b.WriteString(headerStyle.Render("  " + padRight("STATUS", 13) + padRight("NAME", 22) + padRight("TYPE", 10) + padRight("ID", 38) + "PROGRESS"))
	b.WriteString("\n")
	for _, r := range rows {
		progress := ""
		if r.Status == "running" && r.Progress >= 0 {
			progress = RenderProgressBar(float64(r.Progress), 12)
		}
		b.WriteString("  " + padRight(StatusSymbol(r.Status)+" "+r.Status, 13) +
			padRight(r.Name, 22) +
			padRight(r.Type, 10) +
			padRight(mutedStyle.Render(r.ID), 38) +
			progress + "\n")
		if r.Detail != "" {
			b.WriteString("    " + mutedStyle.Render(r.Detail) + "\n")
		}
	}
	return b.String()
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	// Account for ANSI codes when calculating visible length
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	padding := width - visibleLen
	for i := 0; i < padding; i++ {
		s += " "
	}
	return s
}
