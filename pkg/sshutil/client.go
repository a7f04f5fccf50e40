package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"golang.org/x/crypto/ssh"
)

// DefaultDialTimeout applies when DialOptions leaves Timeout unset.
const DefaultDialTimeout = 10 * time.Second

// Client is a live SSH connection to one host.
type Client struct {
	*ssh.Client
	Host    string // what the caller asked for, possibly an ssh_config alias
	Address string // host:port actually dialed
}

// Target names the host to dial. Empty fields are filled from
// ~/.ssh/config, then from defaults (port 22, $USER).
type Target struct {
	Host    string // hostname, IP, or ssh_config alias
	User    string
	Port    int
	KeyPath string
}

func (t Target) String() string {
	s := t.Host
	if t.User != "" {
		s = t.User + "@" + s
	}
	if t.Port != 0 && t.Port != 22 {
		s = fmt.Sprintf("%s:%d", s, t.Port)
	}
	return s
}

// DialOptions tune a single dial.
type DialOptions struct {
	// Timeout bounds the TCP connect and the SSH handshake together.
	Timeout time.Duration

	// StrictHostKeyChecking verifies host keys against ~/.ssh/known_hosts.
	// When false any host key is accepted.
	StrictHostKeyChecking bool
}

var (
	log       = logger.New("ssh")
	matchWarn sync.Once
)

// endpoint is a Target with ssh_config and defaults applied.
type endpoint struct {
	host     string
	port     int
	user     string
	identity string
}

func (e endpoint) addr() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// resolveTarget fills in t from ~/.ssh/config. Fields set on t win over
// the file.
func resolveTarget(t Target) endpoint {
	ep := endpoint{host: t.Host, port: 22, user: currentUser()}

	if e, ok := lookupAlias(t.Host); ok {
		if e.Hostname != "" {
			ep.host = e.Hostname
		}
		if e.Port != 0 {
			ep.port = e.Port
		}
		if e.User != "" {
			ep.user = e.User
		}
		ep.identity = e.IdentityFile
	}

	if t.User != "" {
		ep.user = t.User
	}
	if t.Port != 0 {
		ep.port = t.Port
	}
	if t.KeyPath != "" {
		ep.identity = expandPath(t.KeyPath)
	}
	return ep
}

// lookupAlias reads alias from ~/.ssh/config. ok is false when the file
// is missing, unreadable, or says nothing about alias.
func lookupAlias(alias string) (HostEntry, bool) {
	content, matchLine, err := readSSHConfig(filepath.Join(homeDir(), ".ssh", "config"))
	if err != nil {
		return HostEntry{}, false
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		log.Debug("ignoring unparsable ssh config: %v", err)
		return HostEntry{}, false
	}

	e := entryFor(cfg, alias)
	found := e.Hostname != "" || e.User != "" || e.Port != 0 || e.IdentityFile != ""
	if !found && matchLine > 0 {
		matchWarn.Do(func() {
			log.Warn("%s isn't in ~/.ssh/config before its Match block at line %d; entries after that line are ignored",
				alias, matchLine)
		})
	}
	return e, found
}

// DialTarget opens an SSH connection to target. The dial is abandoned
// when ctx ends or opts.Timeout elapses, whichever comes first.
func DialTarget(ctx context.Context, target Target, opts DialOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ep := resolveTarget(target)
	label := target.String()

	auth := planAuth(ep.identity)
	if err := auth.err(); err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(opts.StrictHostKeyChecking)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't load ~/.ssh/known_hosts",
			"Check the file is readable, or turn off ssh.strict_host_key_checking")
	}
	cfg := &ssh.ClientConfig{
		User:            ep.user,
		Auth:            auth.methods,
		HostKeyCallback: hostKeys,
		Timeout:         opts.Timeout,
	}

	addr := ep.addr()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", label, addr),
			dialHint(err))
	}

	// The handshake ignores ctx, so the raw conn carries the deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		var mismatch *hostKeyMismatch
		if stderrors.As(err, &mismatch) {
			return nil, errors.New(errors.ErrSSH, mismatch.Error(), mismatch.fix())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' failed", label),
			handshakeHint(err, auth.encrypted))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sc, chans, reqs),
		Host:    target.Host,
		Address: addr,
	}, nil
}

// NetDialer is the production Dialer backed by DialTarget.
type NetDialer struct {
	Options DialOptions
}

// Dial implements Dialer.
func (d NetDialer) Dial(ctx context.Context, target Target) (SSHClient, error) {
	c, err := DialTarget(ctx, target, d.Options)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the connection. Closing a zero Client is a no-op.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

func (c *Client) GetHost() string    { return c.Host }
func (c *Client) GetAddress() string { return c.Address }

func (c *Client) NewSession() (Session, error) {
	return c.Client.NewSession()
}

// SendRequest sends a global request without opening a session.
func (c *Client) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	return c.Client.SendRequest(name, wantReply, payload)
}

// Dial opens a connection from the remote host to addr.
func (c *Client) Dial(network, addr string) (net.Conn, error) {
	return c.Client.Dial(network, addr)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}

func expandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(homeDir(), rest)
	}
	return path
}
