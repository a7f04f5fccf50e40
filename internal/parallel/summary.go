package parallel

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/dgxops/internal/ui"
)

// Brief is the one-line form of r used in logs.
func (r *Result) Brief() string {
	if r == nil {
		return "no result"
	}
	took := roundDuration(r.Duration)
	if r.Failed == 0 {
		return fmt.Sprintf("%s: %d/%d ok in %s", r.Action, r.Succeeded, r.Total, took)
	}
	names := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s: %d/%d ok in %s, failed: %s",
		r.Action, r.Succeeded, r.Total, took, strings.Join(names, ", "))
}

// RenderSummaryTo prints the tally of a fan-out, then each failure with
// its error and how to retry.
func RenderSummaryTo(w io.Writer, r *Result) {
	if r == nil {
		return
	}
	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	bad := lipgloss.NewStyle().Foreground(ui.ColorError)

	if r.Total == 0 {
		fmt.Fprintln(w, muted.Render("Nothing to "+string(r.Action)))
		return
	}

	failMark := muted.Render(ui.SymbolFail)
	if r.Failed > 0 {
		failMark = bad.Render(ui.SymbolFail)
	}
	fmt.Fprintf(w, "%s %d succeeded  %s %d failed  %s %d total  %s\n",
		lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess), r.Succeeded,
		failMark, r.Failed,
		muted.Render(ui.SymbolComplete), r.Total,
		muted.Render("("+roundDuration(r.Duration).String()+")"))

	if r.Failed == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s\n    %s\n", bad.Render(ui.SymbolFail), f.Name, muted.Render(f.Error))
	}
	fmt.Fprintf(w, "\n%s\n  %s dgxops reconnect\n",
		lipgloss.NewStyle().Foreground(ui.ColorSecondary).Bold(true).Render("Retry with:"),
		muted.Render("$"))
}

// roundDuration keeps two significant places: 250ms, 1.5s, 1m5s.
func roundDuration(d time.Duration) time.Duration {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond)
	case d < time.Minute:
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Second)
}
