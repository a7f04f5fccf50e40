package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/rileyhilliard/dgxops/internal/service"
	"github.com/rileyhilliard/dgxops/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [connection]",
	Short: "Show connection status",
	Long: `Show the cached status of every host, or one host in detail.

Status is refreshed by the daemon in the background; this never opens a
session itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		if len(args) == 0 {
			conns, err := cl.ListConnections(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), conns, func(w io.Writer) {
				fmt.Fprint(w, ui.RenderConnectionTable(connectionRows(conns, time.Now())))
			})
		}

		st, err := cl.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), st, func(w io.Writer) {
			printStatus(w, st, time.Now())
		})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <connection>",
	Short: "Open a host's SSH session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connAction(cmd, args[0], "Connecting to "+args[0], func(ctx context.Context) (*models.Connection, error) {
			return newClient().Connect(ctx, args[0])
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <connection>",
	Short: "Close a host's SSH session",
	Long: `Close a host's SSH session. Processes started by dgxops keep running
on the host; their status catches up on the next connect.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connAction(cmd, args[0], "Disconnecting "+args[0], func(ctx context.Context) (*models.Connection, error) {
			return newClient().Disconnect(ctx, args[0])
		})
	},
}

var connectAllCmd = &cobra.Command{
	Use:   "connect-all",
	Short: "Connect every host in parallel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(cmd, newClient().ConnectAll)
	},
}

var disconnectAllCmd = &cobra.Command{
	Use:   "disconnect-all",
	Short: "Disconnect every host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(cmd, newClient().DisconnectAll)
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Retry hosts that dropped or failed to connect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchAction(cmd, newClient().ReconnectFailed)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, connectCmd, disconnectCmd, connectAllCmd, disconnectAllCmd, reconnectCmd)
}

// interactive reports whether to draw spinners on w.
func interactive(w io.Writer) bool {
	if machineMode {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// connAction runs a single-connection action behind a spinner.
func connAction(cmd *cobra.Command, ref, label string, fn func(context.Context) (*models.Connection, error)) error {
	w := cmd.OutOrStdout()

	var spinner *ui.Spinner
	if interactive(w) {
		spinner = ui.NewSpinner(w, label)
		spinner.Start()
	}

	c, err := fn(cmd.Context())
	if spinner != nil {
		if err != nil || c.Status == models.StatusError {
			spinner.Fail()
		} else {
			spinner.Success()
		}
	}
	if err != nil {
		return err
	}

	return render(w, c, func(w io.Writer) {
		if spinner == nil {
			fmt.Fprintf(w, "%s %s is %s\n", ui.StatusSymbol(c.Status.String()), c.Name, c.Status)
		}
		if c.ErrorMessage != "" {
			fmt.Fprintf(w, "  %s\n", c.ErrorMessage)
		}
	})
}

// batchAction runs a fleet-wide action and prints its per-host summary.
func batchAction(cmd *cobra.Command, fn func(context.Context) (*parallel.Result, error)) error {
	res, err := fn(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), res, func(w io.Writer) {
		parallel.RenderSummaryTo(w, res)
	})
}

func printStatus(w io.Writer, st *service.StatusView, now time.Time) {
	fmt.Fprintf(w, "%s %s  %s\n", ui.StatusSymbol(st.Status.String()), st.Name, st.Status)
	if st.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s\n", st.ErrorMessage)
	}
	if st.LastPing != nil {
		fmt.Fprintf(w, "  last ping: %s\n", formatAgo(now.Sub(*st.LastPing)))
	} else {
		fmt.Fprintln(w, "  last ping: never")
	}
}
