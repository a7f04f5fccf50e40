package sshutil

import (
	"context"
	"io"
	"net"
)

// SSHClient is a live connection to one host. *Client and the mocks in
// sshutil/testing both satisfy it.
type SSHClient interface {
	// Exec runs cmd to completion. A non-zero exit comes back as exitCode
	// with a nil error; exitCode is -1 only when cmd never ran.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecContext is Exec that gives up, closing the session, when ctx
	// ends.
	ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecStream is Exec with output copied to the writers as it arrives.
	ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error)

	Close() error

	GetHost() string
	GetAddress() string

	// NewSession opens a bare session. Its only use is a liveness probe,
	// so it's just a Closer.
	NewSession() (Session, error)

	// SendRequest sends a global request, the cheapest keepalive there is.
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)

	// Dial connects from the host to addr, for port forwarding.
	Dial(network, addr string) (net.Conn, error)
}

// Session is the part of *ssh.Session the registry needs.
type Session interface {
	io.Closer
}

// Dialer opens SSH connections. The registry depends on this rather than
// on DialTarget directly so tests can substitute a mock.
type Dialer interface {
	Dial(ctx context.Context, target Target) (SSHClient, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target Target) (SSHClient, error)

func (f DialerFunc) Dial(ctx context.Context, target Target) (SSHClient, error) {
	return f(ctx, target)
}
