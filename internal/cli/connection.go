package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// ConnectionFlags are the user-supplied fields for add and edit.
type ConnectionFlags struct {
	Name    string
	Host    string
	User    string
	KeyPath string
	Port    int
}

// Input converts the flags to a ConnectionInput.
func (f ConnectionFlags) Input() models.ConnectionInput {
	return models.ConnectionInput{
		Name:       f.Name,
		Hostname:   f.Host,
		Username:   f.User,
		SSHKeyPath: f.KeyPath,
		Port:       f.Port,
	}
}

// merge overlays the flags that were set onto an existing connection.
func (f ConnectionFlags) merge(c *models.Connection) models.ConnectionInput {
	in := models.ConnectionInput{
		Name:       c.Name,
		Hostname:   c.Hostname,
		Username:   c.Username,
		SSHKeyPath: c.SSHKeyPath,
		Port:       c.Port,
	}
	if f.Name != "" {
		in.Name = f.Name
	}
	if f.Host != "" {
		in.Hostname = f.Host
	}
	if f.User != "" {
		in.Username = f.User
	}
	if f.KeyPath != "" {
		in.SSHKeyPath = f.KeyPath
	}
	if f.Port != 0 {
		in.Port = f.Port
	}
	return in
}

func addConnectionFlags(cmd *cobra.Command, f *ConnectionFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "display name")
	cmd.Flags().StringVar(&f.Host, "host", "", "hostname or IP")
	cmd.Flags().StringVar(&f.User, "user", "", "SSH user")
	cmd.Flags().StringVar(&f.KeyPath, "key", "", "private key path (default: ssh-agent and ~/.ssh keys)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "SSH port (default 22)")
}

var (
	connAddFlags    ConnectionFlags
	connEditFlags   ConnectionFlags
	connRemoveForce bool
	connImportAll   bool
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn", "connections"},
	Short:   "Manage configured hosts",
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a host",
	Long: `Add a host to dgxops. Missing fields are prompted for in a terminal.

Examples:
  dgxops connection add --name spark-1 --host 10.0.0.21 --user ops
  dgxops connection add --name spark-2 --host spark-2.lan --user ops --port 2222 --key ~/.ssh/dgx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := connAddFlags.Input()
		if term.IsTerminal(int(os.Stdin.Fd())) && !machineMode {
			if err := promptConnection(&in); err != nil {
				return err
			}
		}
		c, err := newClient().CreateConnection(cmd.Context(), in)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), c, func(w io.Writer) {
			fmt.Fprintf(w, "%s Added %s (%s)\n", ui.SymbolSuccess, c.Name, c.ID)
			fmt.Fprintf(w, "  Connect with: dgxops connect %s\n", c.Name)
		})
	},
}

var connectionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List hosts and their status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conns, err := newClient().ListConnections(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), conns, func(w io.Writer) {
			fmt.Fprint(w, ui.RenderConnectionTable(connectionRows(conns, time.Now())))
		})
	},
}

var connectionShowCmd = &cobra.Command{
	Use:   "show <connection>",
	Short: "Show one host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient().GetConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), c, func(w io.Writer) {
			printConnection(w, c)
		})
	},
}

var connectionEditCmd = &cobra.Command{
	Use:   "edit <connection>",
	Short: "Change a host's settings",
	Long: `Change a host's settings. Only the flags given are changed.

Editing an online host drops its session; connect again afterwards.

Examples:
  dgxops connection edit spark-1 --host 10.0.0.99
  dgxops connection edit spark-1 --name spark-a`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		existing, err := cl.GetConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		c, err := cl.UpdateConnection(cmd.Context(), existing.ID, connEditFlags.merge(existing))
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), c, func(w io.Writer) {
			fmt.Fprintf(w, "%s Updated %s\n", ui.SymbolSuccess, c.Name)
		})
	},
}

var connectionRemoveCmd = &cobra.Command{
	Use:     "remove <connection>",
	Aliases: []string{"rm"},
	Short:   "Remove a host",
	Long: `Remove a host. A host with recorded operations or samples is kept
unless --force is given, which deletes those too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteConnection(cmd.Context(), args[0], connRemoveForce); err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]interface{}{"id": args[0], "deleted": true}, func(w io.Writer) {
			fmt.Fprintf(w, "%s Removed %s\n", ui.SymbolSuccess, args[0])
		})
	},
}

var connectionImportCmd = &cobra.Command{
	Use:   "import [alias...]",
	Short: "Add hosts from ~/.ssh/config",
	Long: `Add hosts from ~/.ssh/config. Name the aliases to import, use --all,
or pick one interactively.

Examples:
  dgxops connection import spark-1 spark-2
  dgxops connection import --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := sshutil.ParseSSHConfig()
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't read ~/.ssh/config",
				"Check the file exists and is readable")
		}

		picked, err := pickSSHEntries(entries, args, connImportAll)
		if err != nil {
			return err
		}

		cl := newClient()
		var added []*models.Connection
		for _, e := range picked {
			c, err := cl.CreateConnection(cmd.Context(), inputFromSSHEntry(e))
			if err != nil {
				return err
			}
			added = append(added, c)
		}

		return render(cmd.OutOrStdout(), added, func(w io.Writer) {
			if len(added) == 0 {
				fmt.Fprintln(w, "Nothing imported.")
				return
			}
			for _, c := range added {
				fmt.Fprintf(w, "%s Added %s (%s@%s)\n", ui.SymbolSuccess, c.Name, c.Username, c.Address())
			}
		})
	},
}

func init() {
	addConnectionFlags(connectionAddCmd, &connAddFlags)
	addConnectionFlags(connectionEditCmd, &connEditFlags)
	connectionRemoveCmd.Flags().BoolVarP(&connRemoveForce, "force", "f", false, "also delete the host's operations and samples")
	connectionImportCmd.Flags().BoolVar(&connImportAll, "all", false, "import every concrete host")

	connectionCmd.AddCommand(connectionAddCmd, connectionListCmd, connectionShowCmd,
		connectionEditCmd, connectionRemoveCmd, connectionImportCmd)
	rootCmd.AddCommand(connectionCmd)
}

// promptConnection asks for whatever in is missing.
func promptConnection(in *models.ConnectionInput) error {
	var fields []huh.Field
	if in.Name == "" {
		fields = append(fields, huh.NewInput().Title("Name").Value(&in.Name))
	}
	if in.Hostname == "" {
		fields = append(fields, huh.NewInput().Title("Hostname or IP").Value(&in.Hostname))
	}
	if in.Username == "" {
		fields = append(fields, huh.NewInput().Title("SSH user").Value(&in.Username))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Pass --name, --host and --user instead")
	}
	return nil
}

// pickSSHEntries selects ssh_config entries by alias, all of them, or via
// the interactive picker.
func pickSSHEntries(entries []sshutil.HostEntry, aliases []string, all bool) ([]sshutil.HostEntry, error) {
	if all {
		return entries, nil
	}

	byAlias := make(map[string]sshutil.HostEntry, len(entries))
	for _, e := range entries {
		byAlias[e.Alias] = e
	}

	if len(aliases) > 0 {
		out := make([]sshutil.HostEntry, 0, len(aliases))
		for _, a := range aliases {
			e, ok := byAlias[a]
			if !ok {
				return nil, errors.New(errors.ErrNotFound,
					fmt.Sprintf("No host '%s' in ~/.ssh/config", a),
					"Check the alias, or run without arguments to pick one")
			}
			out = append(out, e)
		}
		return out, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.Validation("name the aliases to import, or pass --all")
	}

	choices := make([]ui.HostChoice, len(entries))
	for i, e := range entries {
		choices[i] = ui.HostChoice{Alias: e.Alias, Detail: e.Description()}
	}
	picked, err := ui.PickHosts(choices)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrValidation, "Host picker failed", "Name the aliases to import instead")
	}
	out := make([]sshutil.HostEntry, 0, len(picked))
	for _, a := range picked {
		out = append(out, byAlias[a])
	}
	return out, nil
}

// inputFromSSHEntry maps an ssh_config entry to a connection. The alias
// becomes the name; a missing HostName means the alias is the hostname.
func inputFromSSHEntry(e sshutil.HostEntry) models.ConnectionInput {
	hostname := e.Hostname
	if hostname == "" {
		hostname = e.Alias
	}
	user := e.User
	if user == "" {
		user = os.Getenv("USER")
	}
	return models.ConnectionInput{
		Name:       e.Alias,
		Hostname:   hostname,
		Username:   user,
		SSHKeyPath: e.IdentityFile,
		Port:       e.Port,
	}
}

func connectionRows(conns []*models.Connection, now time.Time) []ui.ConnectionRow {
	rows := make([]ui.ConnectionRow, len(conns))
	for i, c := range conns {
		seen := "never"
		if c.LastConnectedAt != nil {
			seen = formatAgo(now.Sub(*c.LastConnectedAt))
		}
		rows[i] = ui.ConnectionRow{
			Status:   c.Status.String(),
			Name:     c.Name,
			Address:  fmt.Sprintf("%s@%s", c.Username, c.Address()),
			LastSeen: seen,
			Error:    c.ErrorMessage,
		}
	}
	return rows
}

func printConnection(w io.Writer, c *models.Connection) {
	label := lipgloss.NewStyle().Foreground(ui.ColorMuted).Width(12)
	fmt.Fprintf(w, "%s%s\n", label.Render("name"), c.Name)
	fmt.Fprintf(w, "%s%s\n", label.Render("id"), c.ID)
	fmt.Fprintf(w, "%s%s@%s\n", label.Render("address"), c.Username, c.Address())
	if c.SSHKeyPath != "" {
		fmt.Fprintf(w, "%s%s\n", label.Render("key"), c.SSHKeyPath)
	}
	fmt.Fprintf(w, "%s%s\n", label.Render("status"), c.Status)
	if c.ErrorMessage != "" {
		fmt.Fprintf(w, "%s%s\n", label.Render("error"), c.ErrorMessage)
	}
	if c.LastConnectedAt != nil {
		fmt.Fprintf(w, "%s%s\n", label.Render("connected"), c.LastConnectedAt.Local().Format(time.RFC1123))
	}
}

// formatAgo renders a duration as a coarse "ago" string.
func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
