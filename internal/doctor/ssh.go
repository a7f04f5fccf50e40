package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rileyhilliard/dgxops/internal/setup"
	"github.com/rileyhilliard/dgxops/internal/util"
)

const sshCategory = "SSH"

// NewSSHChecks returns the local SSH checks. strict mirrors
// ssh.strict_host_key_checking.
func NewSSHChecks(strict bool) []Check {
	return []Check{
		&SSHKeyCheck{},
		&SSHAgentCheck{},
		&SSHKeyPermissionsCheck{},
		&KnownHostsCheck{Strict: strict},
	}
}

// SSHKeyCheck looks for a key pair dgxops can authenticate with.
type SSHKeyCheck struct{}

func (c *SSHKeyCheck) Name() string     { return "ssh_key" }
func (c *SSHKeyCheck) Category() string { return sshCategory }
func (c *SSHKeyCheck) Fix() error       { return nil }

func (c *SSHKeyCheck) Run(context.Context) CheckResult {
	r := CheckResult{Name: c.Name()}
	switch key := setup.PreferredKey(); {
	case key == nil:
		r.Status = StatusFail
		r.Message = "No SSH key found"
		r.Suggestion = "Generate one and install it with: dgxops connection setup-key <connection>"
	case !key.HasPublic:
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("%s has no .pub alongside it", displayPath(key.Path))
		r.Suggestion = fmt.Sprintf("Rebuild it with: ssh-keygen -y -f %s > %s", key.Path, key.PublicPath)
	default:
		r.Message = fmt.Sprintf("Using %s (%s)", displayPath(key.Path), key.Type)
	}
	return r
}

// SSHAgentCheck asks the agent which keys it holds. Keys on disk work
// without an agent, so every problem here is a warning.
type SSHAgentCheck struct{}

func (c *SSHAgentCheck) Name() string     { return "ssh_agent" }
func (c *SSHAgentCheck) Category() string { return sshCategory }
func (c *SSHAgentCheck) Fix() error       { return nil }

func (c *SSHAgentCheck) Run(ctx context.Context) CheckResult {
	warn := func(msg, suggestion string) CheckResult {
		return CheckResult{Name: c.Name(), Status: StatusWarn, Message: msg, Suggestion: suggestion}
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return warn("No SSH agent (SSH_AUTH_SOCK is unset)",
			"Unencrypted keys in ~/.ssh still work. For passphrase keys: eval $(ssh-agent) && ssh-add")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sock)
	if err != nil {
		return warn("Can't open the SSH agent socket", "Restart it: eval $(ssh-agent) && ssh-add")
	}
	defer conn.Close()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return warn("SSH agent didn't answer: "+err.Error(), "Check it with: ssh-add -l")
	}
	if len(keys) == 0 {
		return warn("SSH agent has no keys loaded", "Load one with: ssh-add")
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH agent holds %d %s", len(keys), util.Pluralize(len(keys), "key", "keys")),
	}
}

// SSHKeyPermissionsCheck flags private keys readable by group or others.
// KeyPaths defaults to the standard locations.
type SSHKeyPermissionsCheck struct {
	KeyPaths []string
}

func (c *SSHKeyPermissionsCheck) Name() string     { return "ssh_key_permissions" }
func (c *SSHKeyPermissionsCheck) Category() string { return sshCategory }

// scan returns the existing keys with loose modes and how many exist.
func (c *SSHKeyPermissionsCheck) scan() (loose []string, existing int) {
	paths := c.KeyPaths
	if len(paths) == 0 {
		paths = setup.DefaultKeyPaths()
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		existing++
		if info.Mode().Perm()&0o077 != 0 {
			loose = append(loose, p)
		}
	}
	return loose, existing
}

func (c *SSHKeyPermissionsCheck) Run(context.Context) CheckResult {
	loose, existing := c.scan()
	r := CheckResult{Name: c.Name(), Status: StatusPass}
	switch {
	case existing == 0:
		// ssh_key reports the missing key.
		r.Message = "No private keys to check"
	case len(loose) > 0:
		names := make([]string, len(loose))
		for i, p := range loose {
			names[i] = filepath.Base(p)
		}
		r.Status = StatusWarn
		r.Message = "Private keys readable by others: " + strings.Join(names, ", ")
		r.Suggestion = "chmod 600 them, or run: dgxops doctor --fix"
		r.Fixable = true
	default:
		r.Message = fmt.Sprintf("%d private %s locked down", existing, util.Pluralize(existing, "key", "keys"))
	}
	return r
}

func (c *SSHKeyPermissionsCheck) Fix() error {
	loose, _ := c.scan()
	for _, p := range loose {
		if err := os.Chmod(p, 0o600); err != nil {
			return fmt.Errorf("chmod %s: %w", p, err)
		}
	}
	return nil
}

// KnownHostsCheck makes sure strict host key checking has a readable
// known_hosts to verify against. Path defaults to ~/.ssh/known_hosts.
type KnownHostsCheck struct {
	Strict bool
	Path   string
}

func (c *KnownHostsCheck) Name() string     { return "ssh_known_hosts" }
func (c *KnownHostsCheck) Category() string { return sshCategory }

func (c *KnownHostsCheck) path() string {
	if c.Path != "" {
		return c.Path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "known_hosts")
}

func (c *KnownHostsCheck) Run(context.Context) CheckResult {
	r := CheckResult{Name: c.Name(), Status: StatusPass}
	if !c.Strict {
		r.Status = StatusWarn
		r.Message = "Host keys aren't verified (ssh.strict_host_key_checking is off)"
		r.Suggestion = "Turn it on in your config once your hosts are in known_hosts"
		return r
	}

	path := c.path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.Status = StatusWarn
		r.Message = displayPath(path) + " doesn't exist, so every host will be rejected"
		r.Suggestion = fmt.Sprintf("Record each host's key: ssh-keyscan <host> >> %s", path)
		return r
	}
	if _, err := knownhosts.New(path); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("Can't parse %s: %v", displayPath(path), err)
		r.Suggestion = "Fix or remove the bad line; ssh-keygen -R <host> drops an entry"
		return r
	}
	r.Message = "Verifying host keys against " + displayPath(path)
	return r
}

func (c *KnownHostsCheck) Fix() error { return nil }
