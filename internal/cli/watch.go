package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/watch"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"dashboard", "top"},
	Short:   "Live dashboard of every host",
	Long: `Open a full-screen dashboard of every host's status, GPU telemetry and
operations, refreshed from the daemon.

Press ? inside the dashboard for key bindings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if machineMode {
			return errors.Validation("watch is interactive; use `dgxops metrics --json` instead")
		}
		cl := newClient()
		if err := cl.Health(cmd.Context()); err != nil {
			return err
		}
		return watch.Run(cmd.Context(), cl, watchInterval)
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", watch.DefaultInterval, "refresh interval")
	rootCmd.AddCommand(watchCmd)
}
