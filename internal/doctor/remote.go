package doctor

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/require"
	"github.com/rileyhilliard/dgxops/internal/util"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

const remoteCategory = "REMOTE"

// NewRemoteChecks returns the checks for one host. The connect check
// comes first so its failure explains the others.
func NewRemoteChecks(host *RemoteHost, logDir string, cache *require.Cache) []Check {
	return []Check{
		&RemoteConnectCheck{Host: host},
		&RemoteToolsCheck{Host: host, Cache: cache},
		&RemoteLogDirCheck{Host: host, Dir: logDir},
	}
}

// RemoteHost is one host's session, dialed on first use and shared by
// its checks. Doctor dials directly rather than through the daemon so it
// works while the daemon is down.
type RemoteHost struct {
	Conn   *models.Connection
	Dialer sshutil.Dialer

	once   sync.Once
	client sshutil.SSHClient
	err    error
}

func (h *RemoteHost) Client(ctx context.Context) (sshutil.SSHClient, error) {
	h.once.Do(func() {
		h.client, h.err = h.Dialer.Dial(ctx, sshutil.Target{
			Host:    h.Conn.Hostname,
			User:    h.Conn.Username,
			Port:    h.Conn.Port,
			KeyPath: h.Conn.SSHKeyPath,
		})
	})
	return h.client, h.err
}

func (h *RemoteHost) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

// session returns the client only when an earlier dial succeeded. Fixes
// use it so they never dial on their own.
func (h *RemoteHost) session() sshutil.SSHClient {
	if h == nil || h.err != nil {
		return nil
	}
	return h.client
}

func (h *RemoteHost) name() string { return h.Conn.Name }

// RemoteConnectCheck opens the session.
type RemoteConnectCheck struct {
	Host *RemoteHost
}

func (c *RemoteConnectCheck) Name() string     { return "remote_ssh_" + c.Host.name() }
func (c *RemoteConnectCheck) Category() string { return remoteCategory }
func (c *RemoteConnectCheck) Fix() error       { return nil }

func (c *RemoteConnectCheck) Run(ctx context.Context) CheckResult {
	r := CheckResult{Name: c.Name(), Status: StatusPass}
	conn := c.Host.Conn
	if _, err := c.Host.Client(ctx); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%s: %s", conn.Name, errors.Summary(err))
		r.Suggestion = "Install a key with: dgxops connection setup-key " + conn.Name
		return r
	}
	r.Message = fmt.Sprintf("%s: SSH to %s@%s", conn.Name, conn.Username, conn.Address())
	return r
}

// RemoteToolsCheck looks for the programs operations and metrics need.
// Installing them needs root, so there's no fix.
type RemoteToolsCheck struct {
	Host  *RemoteHost
	Tools []require.Tool // defaults to require.HostTools
	Cache *require.Cache
}

func (c *RemoteToolsCheck) Name() string     { return "remote_tools_" + c.Host.name() }
func (c *RemoteToolsCheck) Category() string { return remoteCategory }
func (c *RemoteToolsCheck) Fix() error       { return nil }

func (c *RemoteToolsCheck) Run(ctx context.Context) CheckResult {
	r := CheckResult{Name: c.Name(), Status: StatusFail}
	client, err := c.Host.Client(ctx)
	if err != nil {
		r.Message = fmt.Sprintf("Tools (%s): no connection", c.Host.name())
		return r
	}

	tools := c.Tools
	if len(tools) == 0 {
		tools = require.HostTools
	}
	cache := c.Cache
	if cache == nil {
		cache = require.NewCache()
	}
	results, err := require.Check(ctx, client, tools, cache, c.Host.Conn.ID)
	if err != nil {
		r.Message = fmt.Sprintf("Tools (%s): %v", c.Host.name(), err)
		return r
	}

	missing := results.Missing()
	switch {
	case results.Blocking():
		r.Message = fmt.Sprintf("Missing on %s: %s", c.Host.name(), missing)
		r.Suggestion = "Install them with the host's package manager (coreutils, util-linux)"
	case len(missing) > 0:
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("Missing on %s: %s", c.Host.name(), missing)
		r.Suggestion = "GPU metrics need the NVIDIA driver installed"
	default:
		r.Status = StatusPass
		r.Message = fmt.Sprintf("%d tools present on %s", len(results), c.Host.name())
	}
	return r
}

// RemoteLogDirCheck makes sure operations can write their logs.
type RemoteLogDirCheck struct {
	Host *RemoteHost
	Dir  string
}

func (c *RemoteLogDirCheck) Name() string     { return "remote_logs_" + c.Host.name() }
func (c *RemoteLogDirCheck) Category() string { return remoteCategory }

func (c *RemoteLogDirCheck) Run(ctx context.Context) CheckResult {
	r := CheckResult{Name: c.Name(), Status: StatusFail}
	client, err := c.Host.Client(ctx)
	if err != nil {
		r.Message = fmt.Sprintf("Log directory (%s): no connection", c.Host.name())
		return r
	}

	_, _, code, err := client.ExecContext(ctx, "test -d "+util.ShellQuotePreserveTilde(c.Dir))
	switch {
	case err != nil:
		r.Message = "Can't check the log directory: " + errors.Summary(err)
		r.Suggestion = "Check the SSH connection"
		return r
	case code != 0:
		r.Status = StatusWarn
		r.Message = "Log directory doesn't exist: " + c.Dir
		r.Suggestion = "It's created on first launch, or fix with: dgxops doctor --remote --fix"
		r.Fixable = true
		return r
	}

	probe := util.ShellQuotePreserveTilde(path.Join(c.Dir, ".dgxops-write-test"))
	_, _, code, err = client.ExecContext(ctx, fmt.Sprintf("touch %s && rm -f %s", probe, probe))
	if err != nil || code != 0 {
		r.Message = fmt.Sprintf("Can't write to %s on %s", c.Dir, c.Host.name())
		r.Suggestion = "Check the directory's owner, or point operations.log_dir elsewhere"
		return r
	}

	r.Status = StatusPass
	r.Message = "Log directory writable: " + c.Dir
	return r
}

func (c *RemoteLogDirCheck) Fix() error {
	client := c.Host.session()
	if client == nil {
		return fmt.Errorf("%s: no connection", c.Host.name())
	}
	_, _, code, err := client.Exec("mkdir -p " + util.ShellQuotePreserveTilde(c.Dir))
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	if code != 0 {
		return fmt.Errorf("mkdir %s: exit %d", c.Dir, code)
	}
	return nil
}
