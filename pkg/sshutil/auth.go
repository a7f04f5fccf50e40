package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var errEncryptedKey = stderrors.New("private key is passphrase protected")

// defaultKeyNames are tried in ~/.ssh after the agent.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// authPlan is the ordered list of auth methods for one dial. Keys that
// exist but need a passphrase are remembered for the error hint.
type authPlan struct {
	methods   []ssh.AuthMethod
	encrypted []string
}

// planAuth offers identity first, then the agent, then the default keys.
// An explicit key leads so a crowded agent can't use up the server's
// MaxAuthTries before it is tried.
func planAuth(identity string) *authPlan {
	p := &authPlan{}
	if identity != "" {
		p.addKey(identity)
	}
	if m := agentAuth(); m != nil {
		p.methods = append(p.methods, m)
	}
	for _, name := range defaultKeyNames {
		path := filepath.Join(homeDir(), ".ssh", name)
		if path != identity {
			p.addKey(path)
		}
	}
	return p
}

func (p *authPlan) addKey(path string) {
	signer, err := loadKey(path)
	switch {
	case stderrors.Is(err, errEncryptedKey):
		p.encrypted = append(p.encrypted, path)
	case err == nil:
		p.methods = append(p.methods, ssh.PublicKeys(signer))
	}
}

// err explains why nothing can be offered, or returns nil.
func (p *authPlan) err() error {
	if len(p.methods) > 0 {
		return nil
	}
	if len(p.encrypted) > 0 {
		return errors.New(errors.ErrSSH,
			"Found SSH keys but they're encrypted: "+strings.Join(p.encrypted, ", "),
			sshAddHint("Load them into the agent:", p.encrypted))
	}
	return errors.New(errors.ErrSSH,
		"No SSH auth methods available",
		"Load a key into the agent (ssh-add -l lists them) or set a key path on the connection")
}

func loadKey(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if stderrors.As(err, &missing) || bytes.Contains(pem, []byte("ENCRYPTED")) {
		return nil, errEncryptedKey
	}
	return nil, err
}

// sshAddHint lists the ssh-add commands that load keys.
func sshAddHint(header string, keys []string) string {
	cmd := "ssh-add"
	if runtime.GOOS == "darwin" {
		cmd = "ssh-add --apple-use-keychain"
	}
	lines := []string{header}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s %s", cmd, k))
	}
	return strings.Join(lines, "\n")
}

// The agent socket is dialed once and shared by every connection.
var (
	agentOnce   sync.Once
	agentConn   net.Conn
	agentClient agent.ExtendedAgent
)

// agentAuth returns nil when there's no agent or it holds no keys. An
// empty agent ahead of key files only burns auth attempts.
func agentAuth() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	agentOnce.Do(func() {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			log.Debug("ssh agent unavailable: %v", err)
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})
	if agentClient == nil {
		return nil
	}
	if signers, err := agentClient.Signers(); err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent drops the shared agent connection. Call it on shutdown.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// hostKeyCallback verifies against ~/.ssh/known_hosts when strict, and
// accepts any key otherwise. A missing known_hosts is created empty.
func hostKeyCallback(strict bool) (ssh.HostKeyCallback, error) {
	if !strict {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opted out in config
	}

	path := filepath.Join(homeDir(), ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, err
		}
	}

	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return &hostKeyMismatch{host: hostname, got: key.Type(), file: path, want: keyErr.Want}
		}
		return err
	}, nil
}

// hostKeyMismatch is a known host presenting a key known_hosts doesn't
// list for it.
type hostKeyMismatch struct {
	host string
	got  string
	file string
	want []knownhosts.KnownKey
}

func (e *hostKeyMismatch) Error() string {
	return fmt.Sprintf("Host key for %s doesn't match known_hosts (server sent %s)", e.host, e.got)
}

func (e *hostKeyMismatch) fix() string {
	host := e.host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	known := make([]string, 0, len(e.want))
	for _, k := range e.want {
		known = append(known, k.Key.Type())
	}
	return fmt.Sprintf("known_hosts has %s. If the host was reinstalled, drop the old entry:\n"+
		"  ssh-keygen -R %s\n"+
		"then record the new keys:\n"+
		"  ssh-keyscan %s >> %s",
		strings.Join(known, ", "), host, host, e.file)
}

type hint struct {
	needles []string
	text    string
}

var dialHints = []hint{
	{[]string{"connection refused"}, "Nothing is accepting SSH there. Check sshd is running on the host"},
	{[]string{"no route to host", "network is unreachable"}, "The host isn't routable from here. Check the network or VPN"},
	{[]string{"timeout", "deadline exceeded"}, "Timed out. The host may be off or behind a firewall"},
	{[]string{"no such host"}, "The name doesn't resolve. Check the host field or your ssh_config alias"},
}

var handshakeHints = []hint{
	{[]string{"unable to authenticate", "no supported methods"}, "The host rejected every key. List loaded keys with: ssh-add -l"},
	{[]string{"host key"}, "Host key problem. Connect once by hand to inspect it: ssh <host>"},
}

func match(err error, hints []hint, fallback string) string {
	msg := err.Error()
	for _, h := range hints {
		for _, n := range h.needles {
			if strings.Contains(msg, n) {
				return h.text
			}
		}
	}
	return fallback
}

func dialHint(err error) string {
	return match(err, dialHints, "Check the host answers: ping <host>")
}

func handshakeHint(err error, encrypted []string) string {
	msg := err.Error()
	if len(encrypted) > 0 && (strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods")) {
		return sshAddHint("Your keys are encrypted. Load them into the agent:", encrypted)
	}
	return match(err, handshakeHints, "Try the same login by hand: ssh <host>")
}
