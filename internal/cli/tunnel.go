package cli

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel <connection> <[local:]remote>",
	Short: "Forward a local port to a host",
	Long: `Forward a local port to a port on a host over SSH, so a web UI started
with ` + "`dgxops op run --type server`" + ` can be opened locally.

The tunnel runs from this terminal with its own SSH session and stops on
Ctrl+C.

Examples:
  dgxops tunnel spark-1 8188
  dgxops tunnel spark-1 9000:8188`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, remote, err := parsePortSpec(args[1])
		if err != nil {
			return err
		}

		conn, err := newClient().GetConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := sshutil.DialTarget(ctx, connectionTarget(conn), sshutil.DialOptions{
			Timeout:               cfg.SSH.DialTimeout,
			StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		ready := make(chan net.Addr, 1)
		go func() {
			addr, ok := <-ready
			if !ok {
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s http://%s -> %s:%d (Ctrl+C to stop)\n",
				ui.SymbolSuccess, addr, conn.Name, remote)
		}()

		err = sshutil.Forward(ctx, client, fmt.Sprintf("127.0.0.1:%d", local), fmt.Sprintf("127.0.0.1:%d", remote), ready)
		close(ready)
		return err
	},
}

func init() {
	rootCmd.AddCommand(tunnelCmd)
}

// parsePortSpec reads "remote" or "local:remote".
func parsePortSpec(spec string) (local, remote int, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 2 {
		return 0, 0, errors.Validation(fmt.Sprintf("invalid port spec %q (want remote or local:remote)", spec))
	}
	ports := make([]int, len(parts))
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return 0, 0, errors.Validation(fmt.Sprintf("invalid port %q in %q", p, spec))
		}
		ports[i] = n
	}
	if len(ports) == 1 {
		return ports[0], ports[0], nil
	}
	return ports[0], ports[1], nil
}
