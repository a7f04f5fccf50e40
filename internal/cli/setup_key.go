package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/setup"
	"github.com/rileyhilliard/dgxops/internal/ui"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

var setupKeyPath string

// SetupKeyResult reports what setup-key did.
type SetupKeyResult struct {
	Connection *models.Connection `json:"connection"`
	KeyPath    string             `json:"key_path"`
	PublicPath string             `json:"public_path"`
	Generated  bool               `json:"generated"`
}

var connectionSetupKeyCmd = &cobra.Command{
	Use:   "setup-key <connection>",
	Short: "Install an SSH key on a host for passwordless login",
	Long: `Install an SSH key on a host so the daemon can connect without a password.

Uses --key, or the best key in ~/.ssh, generating an ed25519 key when there
is none. The key is copied with ssh-copy-id, which asks for the host's
password once, and the connection is updated to use it.

Examples:
  dgxops connection setup-key spark-1
  dgxops connection setup-key spark-1 --key ~/.ssh/spark_ed25519`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl := newClient()
		conn, err := cl.GetConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		keyPath := setupKeyPath
		if keyPath == "" {
			keyPath = conn.SSHKeyPath
		}
		key, generated, err := setup.EnsureKey(keyPath)
		if err != nil {
			return err
		}
		if generated && !machineMode {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Generated %s\n", ui.SymbolSuccess, key.Path)
		}

		target := connectionTarget(conn)
		pub, err := setup.InstallKey(cmd.Context(), target, key.Path)
		if err != nil {
			return err
		}

		in := ConnectionFlags{KeyPath: key.Path}.merge(conn)
		updated, err := cl.UpdateConnection(cmd.Context(), conn.ID, in)
		if err != nil {
			return err
		}

		res := SetupKeyResult{Connection: updated, KeyPath: key.Path, PublicPath: pub, Generated: generated}
		return render(cmd.OutOrStdout(), res, func(w io.Writer) {
			fmt.Fprintf(w, "%s Installed %s on %s\n", ui.SymbolSuccess, pub, target)
			fmt.Fprintf(w, "  Connect with: dgxops connect %s\n", updated.Name)
		})
	},
}

func init() {
	connectionSetupKeyCmd.Flags().StringVar(&setupKeyPath, "key", "", "private key to install (default: best key in ~/.ssh)")
	connectionCmd.AddCommand(connectionSetupKeyCmd)
}

// connectionTarget is the SSH target for a stored connection.
func connectionTarget(c *models.Connection) sshutil.Target {
	return sshutil.Target{
		Host:    c.Hostname,
		User:    c.Username,
		Port:    c.Port,
		KeyPath: c.SSHKeyPath,
	}
}
