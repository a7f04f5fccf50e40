package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/internal/watch"
)

var metricsHours float64

// MetricsView is what `metrics` prints in machine mode.
type MetricsView struct {
	Current *models.MetricsSnapshot `json:"current"`
	History []*models.Sample        `json:"history,omitempty"`
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <connection>",
	Short: "Show a host's GPU telemetry",
	Long: `Show the latest telemetry sample for a host, with sparklines of GPU and
memory use over the last --hours.

For a live view of every host, use: dgxops watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		snap, err := cl.Metrics(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		view := MetricsView{Current: snap}
		if metricsHours > 0 {
			if view.History, err = cl.MetricsHistory(cmd.Context(), args[0], metricsHours); err != nil {
				return err
			}
		}
		return render(cmd.OutOrStdout(), view, func(w io.Writer) {
			printMetrics(w, view, time.Now())
		})
	},
}

func init() {
	metricsCmd.Flags().Float64Var(&metricsHours, "hours", 1, "history window (0 for the current sample only)")
	rootCmd.AddCommand(metricsCmd)
}

func printMetrics(w io.Writer, v MetricsView, now time.Time) {
	label := lipgloss.NewStyle().Foreground(ui.ColorMuted).Width(10)
	snap := v.Current

	if snap.Error != "" {
		fmt.Fprintf(w, "%s last sample failed %s: %s\n", ui.SymbolWarning, watch.FormatAge(snap.ErrorAt, now), snap.Error)
	}
	s := snap.Sample
	if s == nil {
		fmt.Fprintln(w, "No samples yet. Connect the host and wait for the next collection.")
		return
	}

	name := s.GPUName
	if s.GPUCount > 1 {
		name = fmt.Sprintf("%s x%d", name, s.GPUCount)
	}
	fmt.Fprintf(w, "%s%s  %s\n", label.Render("gpu"), name, lipgloss.NewStyle().Foreground(ui.ColorMuted).Render(watch.FormatAge(s.Timestamp, now)))
	fmt.Fprintf(w, "%s%s\n", label.Render("util"), ui.RenderUsageBar(s.GPUUtilization, 24))
	fmt.Fprintf(w, "%s%s  %s / %s\n", label.Render("memory"), ui.RenderUsageBar(s.MemoryPercent(), 24),
		watch.FormatMB(s.MemoryUsedMB), watch.FormatMB(s.MemoryTotalMB))
	fmt.Fprintf(w, "%s%d°C\n", label.Render("temp"), s.TemperatureC)
	if s.PowerLimitW > 0 {
		fmt.Fprintf(w, "%s%.0fW / %.0fW\n", label.Render("power"), s.PowerDrawW, s.PowerLimitW)
	} else {
		fmt.Fprintf(w, "%s%.0fW\n", label.Render("power"), s.PowerDrawW)
	}
	if s.SystemMemTotalMB > 0 {
		fmt.Fprintf(w, "%s%s / %s\n", label.Render("ram"), watch.FormatMB(s.SystemMemUsedMB), watch.FormatMB(s.SystemMemTotalMB))
	}
	if s.Interface != "" {
		fmt.Fprintf(w, "%s%s ↓%s ↑%s this session\n", label.Render("net"), s.Interface,
			watch.FormatBytes(s.SessionRxBytes), watch.FormatBytes(s.SessionTxBytes))
	}

	if len(v.History) < 2 {
		return
	}
	gpu := make([]float64, len(v.History))
	mem := make([]float64, len(v.History))
	for i, h := range v.History {
		gpu[i] = h.GPUUtilization
		mem[i] = h.MemoryPercent()
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%s\n", label.Render("gpu hist"), watch.RenderSparkline(gpu, 40))
	fmt.Fprintf(w, "%s%s\n", label.Render("mem hist"), watch.RenderSparkline(mem, 40))
	fmt.Fprintf(w, "%s%d samples\n", label.Render(""), len(v.History))
}
