package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/doctor"
	"github.com/rileyhilliard/dgxops/internal/require"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/internal/util"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

var (
	doctorFix    bool
	doctorRemote bool
)

// doctorDialer opens the direct sessions --remote uses.
var doctorDialer = func(c *config.Config) sshutil.Dialer {
	return sshutil.NetDialer{Options: sshutil.DialOptions{
		Timeout:               c.SSH.DialTimeout,
		StrictHostKeyChecking: c.SSH.StrictHostKeyChecking,
	}}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration, SSH and host problems",
	Long: `Check the config, local SSH keys, the daemon and every connection.

With --remote, each host is also dialed directly to check the tools and
log directory operations need. With --fix, issues that can be fixed
automatically are, and the checks run again.`,
	Args: cobra.NoArgs,
	// doctor has to run when the config is broken; it reports that itself.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		out := runDoctor(cmd.Context(), doctorFix, doctorRemote)
		return render(cmd.OutOrStdout(), out, func(w io.Writer) {
			outputDoctorText(w, out, doctorFix)
		})
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes where possible")
	doctorCmd.Flags().BoolVar(&doctorRemote, "remote", false, "dial every host and check its environment")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorOutput is the report doctor renders.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Fixed      []string         `json:"fixed,omitempty"`
	Summary    doctor.Tally     `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// categoryOrder is the order categories are reported in.
var categoryOrder = []string{"CONFIG", "SSH", "DAEMON", "CONNECTIONS", "REMOTE"}

func runDoctor(ctx context.Context, fix, remote bool) DoctorOutput {
	// A broken config is reported by the CONFIG checks; carry on with
	// defaults so the rest still runs.
	c, path, err := config.LoadOrDefault(configFlag)
	if err != nil {
		c = config.DefaultConfig()
	}
	cfg, configPath = c, path

	cl := newClient()
	checks := doctor.NewConfigChecks(configFlag, c)
	checks = append(checks, doctor.NewSSHChecks(c.SSH.StrictHostKeyChecking)...)
	checks = append(checks, &doctor.DaemonCheck{Addr: daemonAddr(), Daemon: cl})

	connChecks, err := doctor.NewConnectionChecks(ctx, cl)
	if err == nil {
		checks = append(checks, connChecks...)
	}

	var hosts []*doctor.RemoteHost
	if remote && err == nil {
		dialer := doctorDialer(c)
		cache := require.NewCache()
		for _, cc := range connChecks {
			h := &doctor.RemoteHost{Conn: cc.(*doctor.ConnectionCheck).Conn, Dialer: dialer}
			hosts = append(hosts, h)
			checks = append(checks, doctor.NewRemoteChecks(h, c.Operations.LogDir, cache)...)
		}
	}
	defer func() {
		for _, h := range hosts {
			h.Close() //nolint:errcheck // best-effort
		}
	}()

	results := doctor.RunAll(ctx, checks, doctor.DefaultParallelism)

	var fixed []string
	if fix {
		fixed, _ = doctor.FixAll(checks, results)
		if len(fixed) > 0 {
			results = doctor.RunAll(ctx, checks, doctor.DefaultParallelism)
		}
	}

	return buildDoctorOutput(checks, results, fixed)
}

func buildDoctorOutput(checks []doctor.Check, results []doctor.CheckResult, fixed []string) DoctorOutput {
	grouped := make(map[string][]doctor.CheckResult)
	for i, check := range checks {
		grouped[check.Category()] = append(grouped[check.Category()], results[i])
	}

	out := DoctorOutput{Fixed: fixed}
	for _, cat := range categoryOrder {
		if rs, ok := grouped[cat]; ok {
			out.Categories = append(out.Categories, CategoryOutput{Name: cat, Results: rs})
		}
	}

	out.Summary = doctor.Count(results)
	return out
}

// outputDoctorText renders the report grouped by category.
func outputDoctorText(w io.Writer, out DoctorOutput, fixRequested bool) {
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("dgxops Diagnostic Report"))
	fmt.Fprintln(w)

	for _, cat := range out.Categories {
		fmt.Fprintln(w, headerStyle.Render(cat.Name))
		for _, r := range cat.Results {
			renderCheckResult(w, r)
		}
		fmt.Fprintln(w)
	}

	if len(out.Fixed) > 0 {
		fmt.Fprintf(w, "%s Fixed: %s\n\n", ui.SuccessStyle().Render(ui.SymbolSuccess), strings.Join(out.Fixed, ", "))
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintln(w)

	if out.Summary.AllClear {
		fmt.Fprintf(w, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), "Everything looks good")
	} else {
		total := out.Summary.Issues()
		fmt.Fprintf(w, "%s %d %s found\n", ui.ErrorStyle().Render(ui.SymbolFail), total, util.Pluralize(total, "issue", "issues"))

		if out.Summary.Fixable > 0 && !fixRequested {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  Run with %s to attempt automatic fixes where possible.\n",
				ui.MutedStyle().Render("--fix"))
		}
	}
	fmt.Fprintln(w)
}

// renderCheckResult renders a single check result.
func renderCheckResult(w io.Writer, result doctor.CheckResult) {
	var symbol string
	var style lipgloss.Style

	switch result.Status {
	case doctor.StatusPass:
		symbol, style = ui.SymbolComplete, ui.SuccessStyle()
	case doctor.StatusWarn:
		symbol, style = ui.SymbolWarning, ui.WarningStyle()
	default:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}
