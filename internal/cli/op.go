package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/ui"
)

// OpRunFlags are the options of `op run`.
type OpRunFlags struct {
	Type      string
	Name      string
	Dir       string
	Port      int
	Websocket string
	Model     string
	Epochs    int
}

// Spec builds the operation spec for connID running command.
func (f OpRunFlags) Spec(connID, command string) (models.OperationSpec, error) {
	t, err := models.ParseOpType(f.Type)
	if err != nil {
		return models.OperationSpec{}, errors.Validation(err.Error())
	}
	spec := models.OperationSpec{
		ConnectionID: connID,
		Name:         f.Name,
		Type:         t,
		Command:      command,
		WorkingDir:   f.Dir,
		WebsocketURL: f.Websocket,
		ModelName:    f.Model,
	}
	if f.Port > 0 {
		p := f.Port
		spec.Port = &p
	}
	if f.Epochs > 0 {
		e := f.Epochs
		spec.Epochs = &e
	}
	return spec, nil
}

var (
	opRunFlags    OpRunFlags
	opListConn    string
	opKillSignal  string
	opLogsLines   int
	opRunNoLaunch bool
)

var opCmd = &cobra.Command{
	Use:     "op",
	Aliases: []string{"ops", "operation"},
	Short:   "Run and track processes on hosts",
}

var opListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List operations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		var ops []*models.Operation
		if opListConn != "" {
			groups, err := cl.ConnectionOperations(cmd.Context(), opListConn)
			if err != nil {
				return err
			}
			ops = flattenGroups(groups)
		} else {
			all, err := cl.ListOperations(cmd.Context())
			if err != nil {
				return err
			}
			ops = all
		}
		return render(cmd.OutOrStdout(), ops, func(w io.Writer) {
			fmt.Fprint(w, ui.RenderOperationTable(operationRows(ops, time.Now())))
		})
	},
}

var opRunCmd = &cobra.Command{
	Use:   "run <connection> <command>",
	Short: "Create and launch an operation",
	Long: `Create an operation on a host and launch it.

The command runs detached under nohup with its output in a log file, so it
survives disconnects. Servers get a URL from --port; jobs report progress
from their log.

Examples:
  dgxops op run spark-1 --type server --name comfy --port 8188 "python main.py --listen"
  dgxops op run spark-1 --type job --name lora --model llama3 --epochs 3 "python train.py"
  dgxops op run spark-1 --type script --name setup --no-launch "./setup.sh"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		conn, err := cl.GetConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		spec, err := opRunFlags.Spec(conn.ID, args[1])
		if err != nil {
			return err
		}

		op, err := cl.CreateOperation(cmd.Context(), spec)
		if err != nil {
			return err
		}
		if !opRunNoLaunch && op.Status == models.OpPending {
			launched, err := cl.LaunchOperation(cmd.Context(), op.ID)
			switch {
			case errors.IsCode(err, errors.ErrState):
				// A daemon with auto_launch got there first.
				if launched, err = cl.GetOperation(cmd.Context(), op.ID); err != nil {
					return err
				}
			case err != nil:
				return err
			}
			op = launched
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			printOperation(w, op, time.Now())
		})
	},
}

var opShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := newClient().GetOperation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			printOperation(w, op, time.Now())
		})
	},
}

var opLaunchCmd = &cobra.Command{
	Use:   "launch <id>",
	Short: "Start a pending operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := newClient().LaunchOperation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			printOperation(w, op, time.Now())
		})
	},
}

var opKillCmd = &cobra.Command{
	Use:   "kill <id>",
	Short: "Stop an operation",
	Long: `Send a signal to an operation's process. TERM is sent by default; use
--signal KILL when a process ignores it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := newClient().KillOperation(cmd.Context(), args[0], opKillSignal)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			fmt.Fprintf(w, "%s Stopped %s\n", ui.SymbolSuccess, op.Name)
		})
	},
}

var opRestartCmd = &cobra.Command{
	Use:   "restart <id>",
	Short: "Run a finished operation again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := newClient().RestartOperation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			printOperation(w, op, time.Now())
		})
	},
}

var opLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Print the tail of an operation's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := newClient().OperationLogs(cmd.Context(), args[0], opLogsLines)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]string{"logs": logs}, func(w io.Writer) {
			fmt.Fprint(w, logs)
		})
	},
}

var opProgressCmd = &cobra.Command{
	Use:   "progress <id>",
	Short: "Refresh and show a job's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := newClient().OperationProgress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), op, func(w io.Writer) {
			if op.Progress == models.ProgressIndeterminate {
				fmt.Fprintf(w, "%s: progress unknown\n", op.Name)
			} else {
				fmt.Fprintf(w, "%s %s\n", op.Name, ui.RenderProgressBar(float64(op.Progress), 24))
			}
			if op.ProgressMessage != "" {
				fmt.Fprintf(w, "  %s\n", op.ProgressMessage)
			}
		})
	},
}

var opSyncCmd = &cobra.Command{
	Use:   "sync <connection>",
	Short: "Reconcile a host's running operations",
	Long: `Check every running operation on a host against its processes and
mark the ones that exited as completed or failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Sync(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), res, func(w io.Writer) {
			fmt.Fprintf(w, "%s checked %d, synced %d, errors %d\n",
				ui.SymbolComplete, res.Checked, res.Synced, res.Errors)
			if res.Unmanaged > 0 {
				fmt.Fprintf(w, "  %s %d running without a PID; dgxops can't track them\n",
					ui.SymbolWarning, res.Unmanaged)
			}
			for _, f := range res.Failures {
				fmt.Fprintf(w, "  %s %s: %s\n", ui.SymbolFail, f.Name, f.Error)
			}
		})
	},
}

func init() {
	opListCmd.Flags().StringVarP(&opListConn, "connection", "c", "", "only this host's operations")

	opRunCmd.Flags().StringVarP(&opRunFlags.Type, "type", "t", "script", "server, job or script")
	opRunCmd.Flags().StringVarP(&opRunFlags.Name, "name", "n", "", "display name (required)")
	opRunCmd.Flags().StringVar(&opRunFlags.Dir, "dir", "", "working directory on the host")
	opRunCmd.Flags().IntVar(&opRunFlags.Port, "port", 0, "port a server listens on")
	opRunCmd.Flags().StringVar(&opRunFlags.Websocket, "websocket", "", "websocket URL a server exposes")
	opRunCmd.Flags().StringVar(&opRunFlags.Model, "model", "", "model name a job trains")
	opRunCmd.Flags().IntVar(&opRunFlags.Epochs, "epochs", 0, "epochs a job runs")
	opRunCmd.Flags().BoolVar(&opRunNoLaunch, "no-launch", false, "create the operation without starting it")
	_ = opRunCmd.MarkFlagRequired("name")

	opKillCmd.Flags().StringVarP(&opKillSignal, "signal", "s", "TERM", "signal to send")
	opLogsCmd.Flags().IntVarP(&opLogsLines, "lines", "n", 100, "lines to show")

	opCmd.AddCommand(opListCmd, opRunCmd, opShowCmd, opLaunchCmd, opKillCmd,
		opRestartCmd, opLogsCmd, opProgressCmd, opSyncCmd)
	rootCmd.AddCommand(opCmd)
}

func flattenGroups(g *models.OperationGroups) []*models.Operation {
	if g == nil {
		return nil
	}
	out := make([]*models.Operation, 0, len(g.Servers)+len(g.Jobs)+len(g.Scripts))
	out = append(out, g.Servers...)
	out = append(out, g.Jobs...)
	return append(out, g.Scripts...)
}

func operationRows(ops []*models.Operation, now time.Time) []ui.OperationRow {
	rows := make([]ui.OperationRow, len(ops))
	for i, op := range ops {
		rows[i] = ui.OperationRow{
			ID:       op.ID,
			Name:     op.Name,
			Type:     string(op.Type),
			Status:   string(op.Status),
			Progress: op.Progress,
			Detail:   operationDetail(op, now),
		}
	}
	return rows
}

// operationDetail is the one-line context shown under an operation.
func operationDetail(op *models.Operation, now time.Time) string {
	switch {
	case op.ErrorMessage != "":
		return op.ErrorMessage
	case op.Status == models.OpRunning && op.URL != "":
		return op.URL
	case op.Status == models.OpRunning && op.ProgressMessage != "":
		return op.ProgressMessage
	case op.CompletedAt != nil && op.ExitCode != nil:
		return fmt.Sprintf("exit %d, %s", *op.ExitCode, formatAgo(now.Sub(*op.CompletedAt)))
	case op.CompletedAt != nil:
		return formatAgo(now.Sub(*op.CompletedAt))
	}
	return ""
}

func printOperation(w io.Writer, op *models.Operation, now time.Time) {
	fmt.Fprintf(w, "%s %s  %s\n", ui.StatusSymbol(string(op.Status)), op.Name, op.Status)
	fmt.Fprintf(w, "  id:      %s\n", op.ID)
	fmt.Fprintf(w, "  type:    %s\n", op.Type)
	fmt.Fprintf(w, "  command: %s\n", op.Command)
	if op.PID != nil {
		fmt.Fprintf(w, "  pid:     %d\n", *op.PID)
	}
	if op.URL != "" {
		fmt.Fprintf(w, "  url:     %s\n", op.URL)
	}
	if op.LogFile != "" {
		fmt.Fprintf(w, "  log:     %s\n", op.LogFile)
	}
	if d := operationDetail(op, now); d != "" && d != op.URL {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
