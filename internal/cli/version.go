package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// versionProbeTimeout bounds the daemon lookup in `version`.
const versionProbeTimeout = time.Second

// VersionInfo is what `version --json` prints. Daemon is empty when no
// daemon answered.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OSArch  string `json:"os_arch"`
	Daemon  string `json:"daemon,omitempty"`
}

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the build of this binary and, when one is running, the version
of the daemon it talks to. A mismatch usually means the daemon needs a
restart after an upgrade.`,
	Args: cobra.NoArgs,
	// version must work without a readable config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		info := VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
			Go:      runtime.Version(),
			OSArch:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		if !versionShort {
			info.Daemon = daemonVersion(cmd.Context())
		}
		return render(cmd.OutOrStdout(), info, func(w io.Writer) {
			if versionShort {
				fmt.Fprintln(w, version)
				return
			}
			fmt.Fprintf(w, "dgxops %s\n", formatVersion(version))
			fmt.Fprintf(w, "  commit:  %s\n", commit)
			fmt.Fprintf(w, "  built:   %s\n", date)
			fmt.Fprintf(w, "  go:      %s %s\n", info.Go, info.OSArch)
			switch {
			case info.Daemon == "":
				fmt.Fprintf(w, "  daemon:  not running at %s\n", daemonAddr())
			case info.Daemon != version:
				fmt.Fprintf(w, "  daemon:  %s (differs, restart `dgxops serve`)\n", formatVersion(info.Daemon))
			default:
				fmt.Fprintf(w, "  daemon:  %s\n", formatVersion(info.Daemon))
			}
		})
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

// daemonVersion asks the daemon for its version, or returns "" when it
// doesn't answer in time.
func daemonVersion(ctx context.Context) string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	v, err := newClient().DaemonVersion(ctx)
	if err != nil {
		return ""
	}
	if v == "" {
		return "unknown"
	}
	return v
}

// formatVersion adds a v prefix to release versions.
func formatVersion(v string) string {
	if v == "" || v == "dev" || v == "unknown" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// SetVersionInfo records the build information; main calls it first.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
