package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/ui"
)

// InitOptions are init's flags. Listen and Database skip the prompts
// when given.
type InitOptions struct {
	Path           string // empty means ./dgxops.yaml, or the global path with Global
	Global         bool
	Listen         string
	Database       string
	Overwrite      bool
	NonInteractive bool
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a dgxops config file",
	Long: `Write a config file with sensible defaults.

By default the file goes to ./dgxops.yaml; --global writes the per-user
config instead. Values not given as flags are prompted for when running in
a terminal.

Examples:
  dgxops init
  dgxops init --global --listen 0.0.0.0:7420
  dgxops init --force --yes`,
	Args: cobra.NoArgs,
	// init must work even when the existing config is broken.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			opts.NonInteractive = true
		}
		return Init(cmd.OutOrStdout(), opts)
	},
}

func init() {
	initCmd.Flags().BoolVar(&initOpts.Global, "global", false, "write the per-user config")
	initCmd.Flags().StringVar(&initOpts.Path, "path", "", "write the config to this path")
	initCmd.Flags().StringVar(&initOpts.Listen, "listen", "", "daemon listen address")
	initCmd.Flags().StringVar(&initOpts.Database, "db", "", "database path")
	initCmd.Flags().BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().BoolVarP(&initOpts.NonInteractive, "yes", "y", false, "don't prompt, use defaults")
	rootCmd.AddCommand(initCmd)
}

// initTarget resolves where init writes.
func initTarget(opts InitOptions) (string, error) {
	switch {
	case opts.Path != "":
		return opts.Path, nil
	case opts.Global:
		p := config.GlobalConfigPath()
		if p == "" {
			return "", errors.New(errors.ErrConfig,
				"Can't find your home directory",
				"Pass an explicit --path instead of --global")
		}
		return p, nil
	default:
		return filepath.Join(".", config.ConfigFileName), nil
	}
}

// Init writes a new config file.
func Init(w io.Writer, opts InitOptions) error {
	path, err := initTarget(opts)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		ok, err := confirmOverwrite(path, opts.NonInteractive)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	c := config.DefaultConfig()
	if opts.Listen != "" {
		c.Server.Listen = opts.Listen
	}
	if opts.Database != "" {
		c.Database.Path = opts.Database
	}
	if !opts.NonInteractive && opts.Listen == "" && opts.Database == "" {
		if err := promptSettings(c); err != nil {
			return err
		}
	}

	if err := config.Validate(c); err != nil {
		return err
	}
	// Overwriting was settled above, so Save may clobber.
	if err := config.Save(c, path, true); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write config",
			"Check you can write to "+filepath.Dir(path))
	}

	return render(w, map[string]string{"path": path}, func(w io.Writer) {
		fmt.Fprintf(w, "%s Wrote %s\n", ui.SymbolSuccess, path)
		fmt.Fprintln(w, "  Start the daemon with: dgxops serve")
	})
}

// confirmOverwrite asks before replacing path. Without a terminal the
// answer is an error pointing at --force.
func confirmOverwrite(path string, nonInteractive bool) (bool, error) {
	if nonInteractive {
		return false, errors.New(errors.ErrConfig, "Config file already exists: "+path,
			"Use --force to overwrite")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)).
		Value(&ok).
		Run()
	if err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig, "Prompt failed",
			"Pass --force to overwrite without asking")
	}
	return ok, nil
}

// promptSettings lets the user edit the defaults that most often change.
func promptSettings(c *config.Config) error {
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Daemon listen address").
			Description("Where `dgxops serve` listens and the CLI connects").
			Value(&c.Server.Listen),
		huh.NewInput().
			Title("Database path").
			Description("SQLite file holding connections, operations and samples").
			Value(&c.Database.Path),
		huh.NewConfirm().
			Title("Launch operations as soon as they're created?").
			Value(&c.Operations.AutoLaunch),
	))
	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Prompt failed",
			"Pass --yes to accept the defaults")
	}
	return nil
}
