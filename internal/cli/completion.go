package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/errors"
)

// completionTimeout bounds the daemon lookups behind tab completion. A
// stopped daemon just means no suggestions.
const completionTimeout = 2 * time.Second

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for dgxops. Connection names and
operation ids complete from the running daemon.

Examples:
  dgxops completion bash > /etc/bash_completion.d/dgxops
  dgxops completion zsh > "${fpath[1]}/_dgxops"
  dgxops completion fish > ~/.config/fish/completions/dgxops.fish`,
	ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
	Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return errors.New(errors.ErrValidation,
			"Unknown shell: "+args[0],
			"Supported shells: bash, zsh, fish, powershell")
	},
}

func init() {
	for _, c := range []*cobra.Command{
		statusCmd, connectCmd, disconnectCmd, metricsCmd, tunnelCmd, opRunCmd, opSyncCmd,
		connectionShowCmd, connectionEditCmd, connectionRemoveCmd, connectionSetupKeyCmd,
	} {
		c.ValidArgsFunction = completeConnections
	}
	for _, c := range []*cobra.Command{
		opShowCmd, opLaunchCmd, opKillCmd, opRestartCmd, opLogsCmd, opProgressCmd,
	} {
		c.ValidArgsFunction = completeOperations
	}
	_ = opListCmd.RegisterFlagCompletionFunc("connection", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return completeConnections(cmd, nil, toComplete)
	})
	rootCmd.AddCommand(completionCmd)
}

func completionContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, completionTimeout)
}

// completeConnections offers connection names, with the status as the
// description, for a command's first argument.
func completeConnections(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := completionContext(cmd)
	defer cancel()

	conns, err := newClient().ListConnections(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, c := range conns {
		if strings.HasPrefix(c.Name, toComplete) {
			out = append(out, c.Name+"\t"+c.Status.String())
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeOperations offers operation ids, described by name and status.
func completeOperations(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := completionContext(cmd)
	defer cancel()

	ops, err := newClient().ListOperations(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, op := range ops {
		if strings.HasPrefix(op.ID, toComplete) {
			out = append(out, op.ID+"\t"+op.Name+" ("+string(op.Status)+")")
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
