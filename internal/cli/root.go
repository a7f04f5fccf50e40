package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/client"
	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/internal/util"
)

// Global flags
var (
	configFlag   string
	addrFlag     string
	logLevelFlag string
	noColorFlag  bool
)

// Loaded by the root PersistentPreRunE.
var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "dgxops",
	Short: "Manage remote GPU hosts, their processes and telemetry",
	Long: `dgxops keeps SSH sessions to a fleet of GPU hosts, launches and tracks
long-running processes on them, and samples GPU telemetry.

Run the daemon once, then drive it from any terminal:

  dgxops serve
  dgxops connection add --name spark-1 --host spark-1.lan --user ops
  dgxops connect spark-1
  dgxops op run spark-1 --type training --name lora "python train.py"
  dgxops watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: ./dgxops.yaml or ~/.config/dgxops/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "daemon address (default: server.listen from config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "print the raw {success, data, error} envelope")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output (also NO_COLOR)")

	cobra.OnInitialize(func() {
		if noColorFlag || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
	})
}

// loadConfig reads the config file and configures the shared logger.
func loadConfig() error {
	c, path, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return err
	}
	cfg, configPath = c, path

	level := cfg.Log.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger.Configure(logger.Options{Level: level, Format: cfg.Log.Format})
	return nil
}

// daemonAddr is --addr, falling back to the configured listen address.
func daemonAddr() string {
	if addrFlag != "" {
		return addrFlag
	}
	if cfg != nil && cfg.Server.Listen != "" {
		return cfg.Server.Listen
	}
	return config.DefaultConfig().Server.Listen
}

func newClient() *client.Client {
	return client.New(daemonAddr())
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// ExecuteContext runs the root command with ctx and reports any error the
// way the current output mode expects.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	if machineMode {
		_ = writeFailure(rootCmd.OutOrStdout(), err)
		return err
	}

	if isUnknownCommandError(err) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), errors.New(errors.ErrValidation,
			err.Error(),
			suggestCommand(extractUnknownCommand(err))).Error())
		return err
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		fmt.Fprint(rootCmd.ErrOrStderr(), e.Error())
	} else {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "✗ %v\n", err)
	}
	return err
}

// isUnknownCommandError reports whether cobra rejected the command line
// itself rather than a command failing.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls foo out of `unknown command "foo" for "dgxops"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// suggestCommand names close matches for a mistyped command.
func suggestCommand(name string) string {
	var names []string
	for _, c := range rootCmd.Commands() {
		if c.IsAvailableCommand() {
			names = append(names, c.Name())
			names = append(names, c.Aliases...)
		}
	}
	if near := util.SuggestSimilar(name, names, 3); len(near) > 0 {
		return "Did you mean: " + strings.Join(near, ", ") + "?"
	}
	return "Run 'dgxops --help' to see available commands."
}
